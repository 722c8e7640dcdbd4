package domain

import "time"

// PlanTier is the owner account's subscription level. It determines how many
// active delegate accounts the owner may have at once.
type PlanTier string

const (
	PlanTierDefault    PlanTier = "DEFAULT"
	PlanTierSubscribed PlanTier = "SUBSCRIBED"
	PlanTierAdmin      PlanTier = "ADMIN"
)

// DelegateLimit returns the maximum number of active delegates for the tier.
// Unknown tiers fall back to the default limit.
func (t PlanTier) DelegateLimit() int {
	switch t {
	case PlanTierAdmin:
		return 10
	case PlanTierSubscribed:
		return 5
	default:
		return 1
	}
}

// Owner represents a doctor account, the primary account type. Owners create
// and manage delegate (secretary) accounts and own all patient records.
type Owner struct {
	ID                    string     `bson:"_id,omitempty"`
	Email                 string     `bson:"email,unique"`
	DisplayName           string     `bson:"display_name"`
	Tier                  PlanTier   `bson:"tier"`
	ActiveDelegateCount   int        `bson:"active_delegate_count"`
	HasDelegates          bool       `bson:"has_delegates"`
	LastDelegateCreatedAt *time.Time `bson:"last_delegate_created_at,omitempty"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
	LastLoginAt           *time.Time `bson:"last_login_at,omitempty"`
}
