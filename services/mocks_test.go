package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/identity"
	"github.com/praxima-health/praxis/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.InitCustomMetrics(prometheus.NewRegistry())
	os.Exit(m.Run())
}

// --- Mock Implementations ---

type MockOwnerRepository struct {
	mock.Mock
}

func (m *MockOwnerRepository) GetOwnerByID(ctx context.Context, id string) (*domain.Owner, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Owner), args.Error(1)
}

func (m *MockOwnerRepository) GetOwnerByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Owner), args.Error(1)
}

func (m *MockOwnerRepository) CreateOwner(ctx context.Context, owner *domain.Owner) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

func (m *MockOwnerRepository) UpdateOwner(ctx context.Context, owner *domain.Owner) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

func (m *MockOwnerRepository) UpdateDelegateAggregates(ctx context.Context, ownerID string, activeCount int, lastCreatedAt *time.Time) error {
	args := m.Called(ctx, ownerID, activeCount, lastCreatedAt)
	return args.Error(0)
}

type MockDelegateRepository struct {
	mock.Mock
}

func (m *MockDelegateRepository) GetDelegateByID(ctx context.Context, id string) (*domain.Delegate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Delegate), args.Error(1)
}

func (m *MockDelegateRepository) GetDelegateByEmail(ctx context.Context, email string) (*domain.Delegate, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Delegate), args.Error(1)
}

func (m *MockDelegateRepository) CreateDelegate(ctx context.Context, delegate *domain.Delegate) error {
	args := m.Called(ctx, delegate)
	return args.Error(0)
}

func (m *MockDelegateRepository) UpdateDelegate(ctx context.Context, delegate *domain.Delegate) error {
	args := m.Called(ctx, delegate)
	return args.Error(0)
}

func (m *MockDelegateRepository) ListDelegatesByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]*domain.Delegate, error) {
	args := m.Called(ctx, ownerID, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Delegate), args.Error(1)
}

func (m *MockDelegateRepository) CountActiveDelegates(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

type MockPatientRepository struct {
	mock.Mock
}

func (m *MockPatientRepository) GetPatientByID(ctx context.Context, id string) (*domain.Patient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Patient), args.Error(1)
}

func (m *MockPatientRepository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	args := m.Called(ctx, patient)
	return args.Error(0)
}

func (m *MockPatientRepository) UpdatePatient(ctx context.Context, patient *domain.Patient) error {
	args := m.Called(ctx, patient)
	return args.Error(0)
}

func (m *MockPatientRepository) DeletePatient(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPatientRepository) ListPatientsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Patient, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Patient), args.Error(1)
}

func (m *MockPatientRepository) CountPatientsByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) StoreSession(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) RevokeSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) TouchSession(ctx context.Context, id string, usedAt time.Time) error {
	args := m.Called(ctx, id, usedAt)
	return args.Error(0)
}

// --- Test identity-provider backing ---

// memCredentialStore is an in-memory CredentialStore so identity clients in
// tests behave like the real provider without MongoDB.
type memCredentialStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Credential
	byEmail map[string]*domain.Credential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{
		byID:    make(map[string]*domain.Credential),
		byEmail: make(map[string]*domain.Credential),
	}
}

func (s *memCredentialStore) CreateCredential(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[cred.Email]; exists {
		return identity.ErrDuplicateEmail
	}
	copied := *cred
	s.byID[cred.ID] = &copied
	s.byEmail[cred.Email] = &copied
	return nil
}

func (s *memCredentialStore) GetCredentialByEmail(_ context.Context, email string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byEmail[email]
	if !ok {
		return nil, domain.NewNotFoundError("credential not found")
	}
	copied := *cred
	return &copied, nil
}

func (s *memCredentialStore) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[id]
	if !ok {
		return domain.NewNotFoundError("credential not found")
	}
	delete(s.byID, id)
	delete(s.byEmail, cred.Email)
	return nil
}

// plainHasher keeps test passwords readable.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(hashedPassword, password string) error {
	if hashedPassword != "hashed:"+password {
		return fmt.Errorf("password mismatch")
	}
	return nil
}
