package domain

import "time"

// Delegate represents a secretary account. The document key is the
// provider-issued credential ID, and the owning doctor's ID is immutable
// after creation. Delegates are never hard-deleted; deactivation is the
// deletion mechanism.
type Delegate struct {
	ID                   string        `bson:"_id"` // provider-issued credential ID
	DoctorID             string        `bson:"doctor_id"`
	Name                 string        `bson:"name"`
	Email                string        `bson:"email,unique"`
	Active               bool          `bson:"active"`
	Permissions          PermissionMap `bson:"permissions"`
	CreatedAt            time.Time     `bson:"created_at"`
	DeactivatedAt        *time.Time    `bson:"deactivated_at,omitempty"`
	ReactivatedAt        *time.Time    `bson:"reactivated_at,omitempty"`
	PermissionsUpdatedBy string        `bson:"permissions_updated_by,omitempty"`
	PermissionsUpdatedAt *time.Time    `bson:"permissions_updated_at,omitempty"`
	LoginCount           int           `bson:"login_count"`
	LastLoginAt          *time.Time    `bson:"last_login_at,omitempty"`
}
