package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/audit"
	"github.com/praxima-health/praxis/internal/identity"
	"github.com/praxima-health/praxis/internal/metrics"
)

// emailShape is a deliberately loose address check; the identity provider is
// the authority on what it will accept.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProvisionDelegateInput carries the fields needed to provision a delegate
// account. Permissions may be nil, in which case the defaults apply.
type ProvisionDelegateInput struct {
	Name        string
	Email       string
	Password    string
	Permissions domain.PermissionMap
}

// ProvisionDelegateResult echoes back the created account for confirmation.
type ProvisionDelegateResult struct {
	DelegateID       string               `json:"delegate_id"`
	Name             string               `json:"name"`
	Email            string               `json:"email"`
	Permissions      domain.PermissionMap `json:"permissions"`
	OwnerDisplayName string               `json:"owner_display_name"`
}

// DelegateStatus is the structured answer to "is this caller a delegate?".
type DelegateStatus struct {
	IsDelegate bool   `json:"is_delegate"`
	IsActive   bool   `json:"is_active,omitempty"`
	DoctorID   string `json:"doctor_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// OperationCheck is the structured answer to a permission query. A routine
// authorization check returns this instead of an error.
type OperationCheck struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Type    string `json:"type"` // "owner", "delegate", or "unknown"
}

// ProvisioningService orchestrates delegate account lifecycle: provisioning
// through an isolated identity-provider context, deactivation, reactivation,
// and permission management.
type ProvisioningService struct {
	owners     domain.OwnerRepository
	delegates  domain.DelegateRepository
	idpFactory *identity.Factory
	primary    *identity.Client
}

// NewProvisioningService creates a ProvisioningService. primary is the
// process-wide identity client whose session must never be disturbed by
// provisioning operations.
func NewProvisioningService(
	owners domain.OwnerRepository,
	delegates domain.DelegateRepository,
	idpFactory *identity.Factory,
	primary *identity.Client,
) *ProvisioningService {
	return &ProvisioningService{
		owners:     owners,
		delegates:  delegates,
		idpFactory: idpFactory,
		primary:    primary,
	}
}

// ProvisionDelegate creates a new delegate account for the owner. The new
// credential is minted inside an isolated identity-provider context so the
// caller's own session is untouched; the context is torn down on every exit
// path. Preconditions are checked before any mutation occurs.
//
// The capacity check and the later counter write are not atomic: two
// concurrent calls for the same owner can both pass the check and overshoot
// the tier limit by one. The counter is recomputed from a live count on
// every mutation, so the aggregate itself stays truthful.
func (s *ProvisioningService) ProvisionDelegate(ctx context.Context, ownerID, callerID string, input ProvisionDelegateInput) (*ProvisionDelegateResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	// 1. Input shape.
	if input.Name == "" {
		return nil, domain.NewValidationError("name", "name must not be empty")
	}
	if input.Email == "" || !emailShape.MatchString(input.Email) {
		return nil, domain.NewValidationError("email", "a valid email address is required")
	}
	if len(input.Password) < identity.MinPasswordLength {
		return nil, domain.NewValidationError("password", "password must be at least 6 characters")
	}
	if input.Permissions != nil {
		if err := input.Permissions.Validate(); err != nil {
			return nil, err
		}
	}

	// 2. Owner existence.
	owner, err := s.owners.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// 3. Capacity against the tier-derived limit.
	activeCount, err := s.delegates.CountActiveDelegates(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active delegates: %w", err)
	}
	limit := owner.Tier.DelegateLimit()
	if activeCount >= limit {
		return nil, domain.NewCapacityExceededError(
			fmt.Sprintf("delegate limit reached for plan tier (%d of %d active)", activeCount, limit))
	}

	// 4. Caller identity.
	if callerID != ownerID {
		return nil, domain.NewAuthorizationError("only the owner may provision delegate accounts")
	}

	// 5. Email uniqueness across owners and active delegates.
	if _, err := s.owners.GetOwnerByEmail(ctx, input.Email); err == nil {
		return nil, domain.NewConflictError("email already registered as owner")
	} else if !domain.IsNotFound(err) {
		return nil, err
	}
	if existing, err := s.delegates.GetDelegateByEmail(ctx, input.Email); err == nil {
		if existing.Active {
			return nil, domain.NewConflictError("email already registered as delegate")
		}
		// A deactivated delegate still owns its credential; reuse is not
		// supported, the account should be reactivated instead.
		return nil, domain.NewConflictError("email belongs to a deactivated delegate account")
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	permissions := input.Permissions
	if permissions == nil {
		permissions = domain.DefaultPermissions()
	}

	primaryBefore := s.primary.CurrentSession()

	var delegateID string
	err = identity.WithIsolatedContext(ctx, s.idpFactory, func(client *identity.Client) error {
		providerID, createErr := client.CreateIdentity(ctx, input.Email, input.Password)
		if createErr != nil {
			return createErr
		}
		delegateID = providerID

		// The new credential must never become the active session in any
		// shared client.
		if signOutErr := client.SignOut(ctx); signOutErr != nil {
			log.Warn().Err(signOutErr).Msg("Failed to sign out freshly minted delegate credential")
		}

		now := time.Now().UTC()
		delegate := &domain.Delegate{
			ID:          providerID,
			DoctorID:    ownerID,
			Name:        input.Name,
			Email:       input.Email,
			Active:      true,
			Permissions: permissions,
			CreatedAt:   now,
		}
		if storeErr := s.delegates.CreateDelegate(ctx, delegate); storeErr != nil {
			// Compensate: a credential without an application record is an
			// orphan. Best effort; the original error is what propagates.
			if delErr := client.DeleteIdentity(ctx, providerID); delErr != nil {
				log.Error().Err(delErr).Str("credential_id", providerID).
					Msg("Failed to delete orphaned delegate credential after document write failure")
				audit.Log("ProvisioningService", "CompensateOrphanCredential", ownerID, providerID, "", false, delErr)
			}
			return storeErr
		}

		newCount, countErr := s.delegates.CountActiveDelegates(ctx, ownerID)
		if countErr != nil {
			// The delegate exists; the aggregate is recomputed on the next
			// mutation. Report but do not fail the provisioning.
			log.Warn().Err(countErr).Str("owner_id", ownerID).Msg("Failed to recount active delegates after provisioning")
			newCount = activeCount + 1
		}
		if aggErr := s.owners.UpdateDelegateAggregates(ctx, ownerID, newCount, &now); aggErr != nil {
			log.Warn().Err(aggErr).Str("owner_id", ownerID).Msg("Failed to update owner delegate aggregates after provisioning")
		}
		metrics.ActiveDelegatesGauge.Set(float64(newCount))
		return nil
	})
	if err != nil {
		metrics.ProvisionFailureTotal.Inc()
		audit.Log("ProvisioningService", "ProvisionDelegate", callerID, input.Email, "", false, err)
		return nil, err
	}

	// Defensive: the whole point of the isolated context is that the
	// caller's session is unaffected.
	if s.primary.CurrentSession() != primaryBefore {
		err := domain.NewSessionIntegrityError("caller session changed during delegate provisioning")
		log.Error().Str("owner_id", ownerID).Msg("Primary identity session was disturbed by provisioning")
		audit.Log("ProvisioningService", "ProvisionDelegate", callerID, delegateID, "session integrity violation", false, err)
		return nil, err
	}

	metrics.DelegatesProvisionedTotal.Inc()
	audit.Log("ProvisioningService", "ProvisionDelegate", callerID, delegateID, input.Email, true, nil)
	log.Info().Str("owner_id", ownerID).Str("delegate_id", delegateID).Msg("Delegate account provisioned")

	return &ProvisionDelegateResult{
		DelegateID:       delegateID,
		Name:             input.Name,
		Email:            input.Email,
		Permissions:      permissions,
		OwnerDisplayName: owner.DisplayName,
	}, nil
}

// DeactivateDelegate sets the delegate inactive and refreshes the owner's
// aggregates. Deactivating an already-inactive delegate is harmless.
func (s *ProvisioningService) DeactivateDelegate(ctx context.Context, ownerID, delegateID string) error {
	delegate, err := s.delegates.GetDelegateByID(ctx, delegateID)
	if err != nil {
		return err
	}
	if delegate.DoctorID != ownerID {
		return domain.NewAuthorizationError("delegate does not belong to this owner")
	}

	if delegate.Active {
		now := time.Now().UTC()
		delegate.Active = false
		delegate.DeactivatedAt = &now
		if err := s.delegates.UpdateDelegate(ctx, delegate); err != nil {
			return err
		}
	}

	if err := s.refreshAggregates(ctx, ownerID); err != nil {
		return err
	}

	metrics.DelegatesDeactivatedTotal.Inc()
	audit.Log("ProvisioningService", "DeactivateDelegate", ownerID, delegateID, "", true, nil)
	log.Info().Str("owner_id", ownerID).Str("delegate_id", delegateID).Msg("Delegate account deactivated")
	return nil
}

// ReactivateDelegate re-enables a deactivated delegate, re-validating the
// owner's tier capacity first.
func (s *ProvisioningService) ReactivateDelegate(ctx context.Context, ownerID, delegateID string) error {
	delegate, err := s.delegates.GetDelegateByID(ctx, delegateID)
	if err != nil {
		return err
	}
	if delegate.DoctorID != ownerID {
		return domain.NewAuthorizationError("delegate does not belong to this owner")
	}
	if delegate.Active {
		return nil
	}

	owner, err := s.owners.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return err
	}
	activeCount, err := s.delegates.CountActiveDelegates(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to count active delegates: %w", err)
	}
	limit := owner.Tier.DelegateLimit()
	if activeCount >= limit {
		return domain.NewCapacityExceededError(
			fmt.Sprintf("reactivating would exceed the delegate limit for plan tier (%d of %d active)", activeCount, limit))
	}

	now := time.Now().UTC()
	delegate.Active = true
	delegate.ReactivatedAt = &now
	if err := s.delegates.UpdateDelegate(ctx, delegate); err != nil {
		return err
	}
	if err := s.refreshAggregates(ctx, ownerID); err != nil {
		return err
	}

	audit.Log("ProvisioningService", "ReactivateDelegate", ownerID, delegateID, "", true, nil)
	log.Info().Str("owner_id", ownerID).Str("delegate_id", delegateID).Msg("Delegate account reactivated")
	return nil
}

// UpdatePermissions replaces the delegate's permission map. Only the owning
// account may do this, and every key must be a recognized module/action.
func (s *ProvisioningService) UpdatePermissions(ctx context.Context, ownerID, callerID, delegateID string, permissions domain.PermissionMap) error {
	if callerID != ownerID {
		return domain.NewAuthorizationError("only the owner may update delegate permissions")
	}
	if err := permissions.Validate(); err != nil {
		return err
	}

	delegate, err := s.delegates.GetDelegateByID(ctx, delegateID)
	if err != nil {
		return err
	}
	if delegate.DoctorID != ownerID {
		return domain.NewAuthorizationError("delegate does not belong to this owner")
	}

	now := time.Now().UTC()
	delegate.Permissions = permissions
	delegate.PermissionsUpdatedBy = callerID
	delegate.PermissionsUpdatedAt = &now
	if err := s.delegates.UpdateDelegate(ctx, delegate); err != nil {
		return err
	}

	audit.Log("ProvisioningService", "UpdatePermissions", callerID, delegateID, "", true, nil)
	return nil
}

// ListDelegates returns the owner's delegates, optionally including
// deactivated ones.
func (s *ProvisioningService) ListDelegates(ctx context.Context, ownerID string, includeInactive bool) ([]*domain.Delegate, error) {
	return s.delegates.ListDelegatesByOwner(ctx, ownerID, includeInactive)
}

// GetDelegateDetails fetches one delegate. When ownerID is non-empty the
// delegate must belong to that owner.
func (s *ProvisioningService) GetDelegateDetails(ctx context.Context, delegateID, ownerID string) (*domain.Delegate, error) {
	delegate, err := s.delegates.GetDelegateByID(ctx, delegateID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && delegate.DoctorID != ownerID {
		return nil, domain.NewAuthorizationError("delegate does not belong to this owner")
	}
	return delegate, nil
}

// CheckCallerIsDelegate reports whether the caller is acting as a delegate.
// This is a routine check, so absence is a normal answer, not an error.
func (s *ProvisioningService) CheckCallerIsDelegate(ctx context.Context, callerID string) (*DelegateStatus, error) {
	delegate, err := s.delegates.GetDelegateByID(ctx, callerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return &DelegateStatus{IsDelegate: false}, nil
		}
		return nil, err
	}
	status := &DelegateStatus{
		IsDelegate: true,
		IsActive:   delegate.Active,
		DoctorID:   delegate.DoctorID,
	}
	if !delegate.Active {
		status.Reason = "Account deactivated"
	}
	return status, nil
}

// ValidateDelegateOperation answers whether the caller may perform the given
// module/action. Owners are unrestricted; delegates are checked against
// their grant table. Returns a structured result rather than an error.
func (s *ProvisioningService) ValidateDelegateOperation(ctx context.Context, callerID string, module domain.Module, action domain.Action) (*OperationCheck, error) {
	if _, err := s.owners.GetOwnerByID(ctx, callerID); err == nil {
		return &OperationCheck{Allowed: true, Type: "owner"}, nil
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	delegate, err := s.delegates.GetDelegateByID(ctx, callerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return &OperationCheck{Allowed: false, Type: "unknown", Reason: "caller is neither an owner nor a delegate"}, nil
		}
		return nil, err
	}
	if !delegate.Active {
		return &OperationCheck{Allowed: false, Type: "delegate", Reason: "Account deactivated"}, nil
	}
	if !delegate.Permissions.Allows(module, action) {
		return &OperationCheck{
			Allowed: false,
			Type:    "delegate",
			Reason:  fmt.Sprintf("permission %s.%s not granted", module, action),
		}, nil
	}
	return &OperationCheck{Allowed: true, Type: "delegate"}, nil
}

// refreshAggregates recomputes the owner's delegate counters from a live
// count and writes them back.
func (s *ProvisioningService) refreshAggregates(ctx context.Context, ownerID string) error {
	count, err := s.delegates.CountActiveDelegates(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to count active delegates: %w", err)
	}
	if err := s.owners.UpdateDelegateAggregates(ctx, ownerID, count, nil); err != nil {
		return err
	}
	metrics.ActiveDelegatesGauge.Set(float64(count))
	return nil
}
