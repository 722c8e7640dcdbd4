package domain

import (
	"context"
	"time"
)

// OwnerRepository defines access to doctor account documents.
type OwnerRepository interface {
	GetOwnerByID(ctx context.Context, id string) (*Owner, error)
	GetOwnerByEmail(ctx context.Context, email string) (*Owner, error)
	CreateOwner(ctx context.Context, owner *Owner) error
	UpdateOwner(ctx context.Context, owner *Owner) error
	// UpdateDelegateAggregates rewrites the owner's delegate counters.
	UpdateDelegateAggregates(ctx context.Context, ownerID string, activeCount int, lastCreatedAt *time.Time) error
}

// DelegateRepository defines access to secretary account documents.
type DelegateRepository interface {
	GetDelegateByID(ctx context.Context, id string) (*Delegate, error)
	GetDelegateByEmail(ctx context.Context, email string) (*Delegate, error)
	CreateDelegate(ctx context.Context, delegate *Delegate) error
	UpdateDelegate(ctx context.Context, delegate *Delegate) error
	// ListDelegatesByOwner returns the owner's delegates, optionally
	// including deactivated ones.
	ListDelegatesByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]*Delegate, error)
	// CountActiveDelegates counts delegates with doctor_id == ownerID and
	// active == true.
	CountActiveDelegates(ctx context.Context, ownerID string) (int, error)
}

// PatientRepository defines access to patient record documents.
type PatientRepository interface {
	GetPatientByID(ctx context.Context, id string) (*Patient, error)
	CreatePatient(ctx context.Context, patient *Patient) error
	UpdatePatient(ctx context.Context, patient *Patient) error
	DeletePatient(ctx context.Context, id string) error
	ListPatientsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Patient, error)
	CountPatientsByOwner(ctx context.Context, ownerID string) (int, error)
}

// SessionRepository defines access to login session documents.
type SessionRepository interface {
	StoreSession(ctx context.Context, session *Session) error
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string) error
	TouchSession(ctx context.Context, id string, usedAt time.Time) error
}
