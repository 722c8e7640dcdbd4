package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/cache"
	"github.com/praxima-health/praxis/domain"
)

// DashboardStats is the per-owner dashboard summary.
type DashboardStats struct {
	OwnerID           string     `json:"owner_id"`
	ActiveDelegates   int        `json:"active_delegates"`
	TotalDelegates    int        `json:"total_delegates"`
	DelegateLimit     int        `json:"delegate_limit"`
	PatientCount      int        `json:"patient_count"`
	LastDelegateAdded *time.Time `json:"last_delegate_added,omitempty"`
	GeneratedAt       time.Time  `json:"generated_at"`
}

// StatsService computes owner dashboard statistics. Aggregate counters on the
// owner document are refreshed from live counts, debounced per owner so a
// burst of dashboard loads does not hammer the counters.
type StatsService struct {
	owners    domain.OwnerRepository
	delegates domain.DelegateRepository
	patients  domain.PatientRepository
	throttle  *cache.WriteThrottle
}

// NewStatsService creates a StatsService. refreshInterval bounds how often a
// single owner's stored aggregates are rewritten.
func NewStatsService(
	owners domain.OwnerRepository,
	delegates domain.DelegateRepository,
	patients domain.PatientRepository,
	refreshInterval time.Duration,
) *StatsService {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &StatsService{
		owners:    owners,
		delegates: delegates,
		patients:  patients,
		throttle:  cache.NewWriteThrottle(refreshInterval),
	}
}

// GetDashboardStats returns live counts for the owner's dashboard and,
// at most once per refresh interval, writes them back to the owner document.
func (s *StatsService) GetDashboardStats(ctx context.Context, ownerID string) (*DashboardStats, error) {
	owner, err := s.owners.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	all, err := s.delegates.ListDelegatesByOwner(ctx, ownerID, true)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, d := range all {
		if d.Active {
			active++
		}
	}

	patientCount, err := s.patients.CountPatientsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if active != owner.ActiveDelegateCount && s.throttle.Allow(ownerID) {
		if err := s.owners.UpdateDelegateAggregates(ctx, ownerID, active, owner.LastDelegateCreatedAt); err != nil {
			log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to refresh delegate aggregates from dashboard")
			s.throttle.Reset(ownerID)
		}
	}

	return &DashboardStats{
		OwnerID:           ownerID,
		ActiveDelegates:   active,
		TotalDelegates:    len(all),
		DelegateLimit:     owner.Tier.DelegateLimit(),
		PatientCount:      patientCount,
		LastDelegateAdded: owner.LastDelegateCreatedAt,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}
