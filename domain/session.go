package domain

import "time"

// AccountType distinguishes owner and delegate sessions.
type AccountType string

const (
	AccountTypeOwner    AccountType = "owner"
	AccountTypeDelegate AccountType = "delegate"
)

// Session represents an active login session. Stored in MongoDB with a TTL
// index on expires_at; the session cache sits in front for token validation.
type Session struct {
	ID          string      `bson:"_id,omitempty"` // also the JWT JTI
	AccountID   string      `bson:"account_id"`
	AccountType AccountType `bson:"account_type"`
	UserAgent   string      `bson:"user_agent,omitempty"`
	IPAddress   string      `bson:"ip_address,omitempty"`
	ExpiresAt   time.Time   `bson:"expires_at"`
	CreatedAt   time.Time   `bson:"created_at"`
	LastUsedAt  time.Time   `bson:"last_used_at,omitempty"`
	IsRevoked   bool        `bson:"is_revoked,omitempty"`
}
