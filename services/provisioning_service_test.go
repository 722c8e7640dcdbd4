package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/identity"
)

func newProvisioningFixture() (*ProvisioningService, *MockOwnerRepository, *MockDelegateRepository, *memCredentialStore, *identity.Client) {
	ownerRepo := new(MockOwnerRepository)
	delegateRepo := new(MockDelegateRepository)
	store := newMemCredentialStore()
	factory := identity.NewFactory(store, plainHasher{})
	primary := factory.NewIsolatedClient()
	svc := NewProvisioningService(ownerRepo, delegateRepo, factory, primary)
	return svc, ownerRepo, delegateRepo, store, primary
}

func testOwner(tier domain.PlanTier) *domain.Owner {
	return &domain.Owner{
		ID:          "owner-1",
		Email:       "dr.house@example.com",
		DisplayName: "Dr. House",
		Tier:        tier,
	}
}

func TestProvisionDelegate_Success(t *testing.T) {
	svc, ownerRepo, delegateRepo, store, primary := newProvisioningFixture()
	ctx := context.Background()

	// The primary client has the owner signed in, as it would in production.
	_, err := primary.CreateIdentity(ctx, "dr.house@example.com", "ownerpass")
	require.NoError(t, err)
	ownerSession := primary.CurrentSession()

	owner := testOwner(domain.PlanTierSubscribed)
	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(owner, nil)
	ownerRepo.On("GetOwnerByEmail", ctx, "jane@example.com").Return(nil, domain.NewNotFoundError("owner not found"))
	delegateRepo.On("GetDelegateByEmail", ctx, "jane@example.com").Return(nil, domain.NewNotFoundError("delegate not found"))
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(2, nil).Once()
	delegateRepo.On("CreateDelegate", ctx, mock.AnythingOfType("*domain.Delegate")).Return(nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(3, nil).Once()
	ownerRepo.On("UpdateDelegateAggregates", ctx, "owner-1", 3, mock.AnythingOfType("*time.Time")).Return(nil)

	result, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Jane Doe",
		Email:    "Jane@Example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.DelegateID)
	assert.Equal(t, "jane@example.com", result.Email)
	assert.Equal(t, "Dr. House", result.OwnerDisplayName)
	assert.Equal(t, domain.DefaultPermissions(), result.Permissions)

	// The minted credential exists in the provider store.
	cred, err := store.GetCredentialByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, result.DelegateID, cred.ID)

	// The caller's session never changed.
	assert.Equal(t, ownerSession, primary.CurrentSession())

	createdCall := delegateRepo.Calls[2]
	require.Equal(t, "CreateDelegate", createdCall.Method)
	created := createdCall.Arguments.Get(1).(*domain.Delegate)
	assert.Equal(t, result.DelegateID, created.ID)
	assert.Equal(t, "owner-1", created.DoctorID)
	assert.True(t, created.Active)

	ownerRepo.AssertExpectations(t)
	delegateRepo.AssertExpectations(t)
}

func TestProvisionDelegate_InputValidation(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		input ProvisionDelegateInput
		field string
	}{
		{"empty name", ProvisionDelegateInput{Name: "  ", Email: "a@b.co", Password: "secret1"}, "name"},
		{"malformed email", ProvisionDelegateInput{Name: "Jane", Email: "not-an-email", Password: "secret1"}, "email"},
		{"short password", ProvisionDelegateInput{Name: "Jane", Email: "a@b.co", Password: "abc"}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", tc.input)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
			var domainErr *domain.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tc.field, domainErr.Field)
		})
	}

	// Validation failures never touch the repositories.
	ownerRepo.AssertNotCalled(t, "GetOwnerByID", mock.Anything, mock.Anything)
	delegateRepo.AssertNotCalled(t, "CreateDelegate", mock.Anything, mock.Anything)
}

func TestProvisionDelegate_InvalidPermissionMap(t *testing.T) {
	svc, _, _, _, _ := newProvisioningFixture()

	_, err := svc.ProvisionDelegate(context.Background(), "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret1",
		Permissions: domain.PermissionMap{
			"billing": {domain.ActionRead: true},
		},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Contains(t, err.Error(), "billing")
}

func TestProvisionDelegate_CapacityExceeded_DefaultTier(t *testing.T) {
	svc, ownerRepo, delegateRepo, store, _ := newProvisioningFixture()
	ctx := context.Background()

	// Default tier allows a single active delegate.
	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierDefault), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(1, nil)

	_, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Second Secretary",
		Email:    "second@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindCapacityExceeded))

	// No credential minted, no document written, no counters touched.
	_, lookupErr := store.GetCredentialByEmail(ctx, "second@example.com")
	assert.Error(t, lookupErr)
	delegateRepo.AssertNotCalled(t, "CreateDelegate", mock.Anything, mock.Anything)
	ownerRepo.AssertNotCalled(t, "UpdateDelegateAggregates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisionDelegate_CallerMustBeOwner(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierAdmin), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(0, nil)

	_, err := svc.ProvisionDelegate(ctx, "owner-1", "someone-else", ProvisionDelegateInput{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))
	delegateRepo.AssertNotCalled(t, "CreateDelegate", mock.Anything, mock.Anything)
}

func TestProvisionDelegate_EmailConflictBeforeCredentialMint(t *testing.T) {
	svc, ownerRepo, delegateRepo, store, _ := newProvisioningFixture()
	ctx := context.Background()

	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierSubscribed), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(0, nil)
	ownerRepo.On("GetOwnerByEmail", ctx, "taken@example.com").Return(nil, domain.NewNotFoundError("owner not found"))
	delegateRepo.On("GetDelegateByEmail", ctx, "taken@example.com").Return(&domain.Delegate{
		ID:       "existing",
		DoctorID: "owner-1",
		Email:    "taken@example.com",
		Active:   true,
	}, nil)

	_, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Jane",
		Email:    "taken@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	// The conflict is caught before the provider is asked to mint anything.
	_, lookupErr := store.GetCredentialByEmail(ctx, "taken@example.com")
	assert.Error(t, lookupErr)
}

func TestProvisionDelegate_DeactivatedDelegateEmailConflicts(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierSubscribed), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(0, nil)
	ownerRepo.On("GetOwnerByEmail", ctx, "old@example.com").Return(nil, domain.NewNotFoundError("owner not found"))
	delegateRepo.On("GetDelegateByEmail", ctx, "old@example.com").Return(&domain.Delegate{
		ID:     "old-delegate",
		Email:  "old@example.com",
		Active: false,
	}, nil)

	_, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Jane",
		Email:    "old@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.Contains(t, err.Error(), "deactivated")
}

func TestProvisionDelegate_DocumentWriteFailureCompensatesCredential(t *testing.T) {
	svc, ownerRepo, delegateRepo, store, _ := newProvisioningFixture()
	ctx := context.Background()

	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierSubscribed), nil)
	ownerRepo.On("GetOwnerByEmail", ctx, "jane@example.com").Return(nil, domain.NewNotFoundError("owner not found"))
	delegateRepo.On("GetDelegateByEmail", ctx, "jane@example.com").Return(nil, domain.NewNotFoundError("delegate not found"))
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(0, nil)
	delegateRepo.On("CreateDelegate", ctx, mock.AnythingOfType("*domain.Delegate")).Return(errors.New("write concern failure"))

	_, err := svc.ProvisionDelegate(ctx, "owner-1", "owner-1", ProvisionDelegateInput{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write concern failure")

	// The minted credential was rolled back, no orphan remains.
	_, lookupErr := store.GetCredentialByEmail(ctx, "jane@example.com")
	assert.Error(t, lookupErr)
	ownerRepo.AssertNotCalled(t, "UpdateDelegateAggregates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeactivateDelegate(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	delegate := &domain.Delegate{ID: "del-1", DoctorID: "owner-1", Active: true}
	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(delegate, nil)
	delegateRepo.On("UpdateDelegate", ctx, delegate).Return(nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(0, nil)
	ownerRepo.On("UpdateDelegateAggregates", ctx, "owner-1", 0, (*time.Time)(nil)).Return(nil)

	require.NoError(t, svc.DeactivateDelegate(ctx, "owner-1", "del-1"))
	assert.False(t, delegate.Active)
	require.NotNil(t, delegate.DeactivatedAt)

	// Deactivating again is harmless and skips the document update.
	require.NoError(t, svc.DeactivateDelegate(ctx, "owner-1", "del-1"))
	delegateRepo.AssertNumberOfCalls(t, "UpdateDelegate", 1)
}

func TestDeactivateDelegate_WrongOwner(t *testing.T) {
	svc, _, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(&domain.Delegate{
		ID: "del-1", DoctorID: "owner-2", Active: true,
	}, nil)

	err := svc.DeactivateDelegate(ctx, "owner-1", "del-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))
	delegateRepo.AssertNotCalled(t, "UpdateDelegate", mock.Anything, mock.Anything)
}

func TestReactivateDelegate_RoundTrip(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	now := time.Now().UTC()
	delegate := &domain.Delegate{ID: "del-1", DoctorID: "owner-1", Active: false, DeactivatedAt: &now}
	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(delegate, nil)
	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierSubscribed), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(1, nil).Once()
	delegateRepo.On("UpdateDelegate", ctx, delegate).Return(nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(2, nil).Once()
	ownerRepo.On("UpdateDelegateAggregates", ctx, "owner-1", 2, (*time.Time)(nil)).Return(nil)

	require.NoError(t, svc.ReactivateDelegate(ctx, "owner-1", "del-1"))
	assert.True(t, delegate.Active)
	require.NotNil(t, delegate.ReactivatedAt)
}

func TestReactivateDelegate_CapacityRechecked(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	delegate := &domain.Delegate{ID: "del-1", DoctorID: "owner-1", Active: false}
	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(delegate, nil)
	ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierDefault), nil)
	delegateRepo.On("CountActiveDelegates", ctx, "owner-1").Return(1, nil)

	err := svc.ReactivateDelegate(ctx, "owner-1", "del-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindCapacityExceeded))
	assert.False(t, delegate.Active)
	delegateRepo.AssertNotCalled(t, "UpdateDelegate", mock.Anything, mock.Anything)
}

func TestReactivateDelegate_AlreadyActive(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(&domain.Delegate{
		ID: "del-1", DoctorID: "owner-1", Active: true,
	}, nil)

	require.NoError(t, svc.ReactivateDelegate(ctx, "owner-1", "del-1"))
	ownerRepo.AssertNotCalled(t, "GetOwnerByID", mock.Anything, mock.Anything)
	delegateRepo.AssertNotCalled(t, "UpdateDelegate", mock.Anything, mock.Anything)
}

func TestUpdatePermissions(t *testing.T) {
	svc, _, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	delegate := &domain.Delegate{ID: "del-1", DoctorID: "owner-1", Active: true}
	delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(delegate, nil)
	delegateRepo.On("UpdateDelegate", ctx, delegate).Return(nil)

	newPerms := domain.PermissionMap{
		domain.ModuleFinancial: {domain.ActionRead: true},
	}
	require.NoError(t, svc.UpdatePermissions(ctx, "owner-1", "owner-1", "del-1", newPerms))
	assert.Equal(t, newPerms, delegate.Permissions)
	assert.Equal(t, "owner-1", delegate.PermissionsUpdatedBy)
	require.NotNil(t, delegate.PermissionsUpdatedAt)
}

func TestUpdatePermissions_Rejections(t *testing.T) {
	svc, _, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	t.Run("wrong caller", func(t *testing.T) {
		err := svc.UpdatePermissions(ctx, "owner-1", "intruder", "del-1", domain.DefaultPermissions())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindAuthorization))
	})

	t.Run("unknown action key", func(t *testing.T) {
		err := svc.UpdatePermissions(ctx, "owner-1", "owner-1", "del-1", domain.PermissionMap{
			domain.ModulePatients: {"delete": true},
		})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
		assert.Contains(t, err.Error(), "patients.delete")
	})

	delegateRepo.AssertNotCalled(t, "UpdateDelegate", mock.Anything, mock.Anything)
}

func TestCheckCallerIsDelegate(t *testing.T) {
	svc, _, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	t.Run("not a delegate", func(t *testing.T) {
		delegateRepo.On("GetDelegateByID", ctx, "owner-1").Return(nil, domain.NewNotFoundError("not found")).Once()
		status, err := svc.CheckCallerIsDelegate(ctx, "owner-1")
		require.NoError(t, err)
		assert.False(t, status.IsDelegate)
	})

	t.Run("active delegate", func(t *testing.T) {
		delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(&domain.Delegate{
			ID: "del-1", DoctorID: "owner-1", Active: true,
		}, nil).Once()
		status, err := svc.CheckCallerIsDelegate(ctx, "del-1")
		require.NoError(t, err)
		assert.True(t, status.IsDelegate)
		assert.True(t, status.IsActive)
		assert.Equal(t, "owner-1", status.DoctorID)
		assert.Empty(t, status.Reason)
	})

	t.Run("deactivated delegate", func(t *testing.T) {
		delegateRepo.On("GetDelegateByID", ctx, "del-2").Return(&domain.Delegate{
			ID: "del-2", DoctorID: "owner-1", Active: false,
		}, nil).Once()
		status, err := svc.CheckCallerIsDelegate(ctx, "del-2")
		require.NoError(t, err)
		assert.True(t, status.IsDelegate)
		assert.False(t, status.IsActive)
		assert.Equal(t, "Account deactivated", status.Reason)
	})
}

func TestValidateDelegateOperation(t *testing.T) {
	svc, ownerRepo, delegateRepo, _, _ := newProvisioningFixture()
	ctx := context.Background()

	t.Run("owner is unrestricted", func(t *testing.T) {
		ownerRepo.On("GetOwnerByID", ctx, "owner-1").Return(testOwner(domain.PlanTierDefault), nil).Once()
		check, err := svc.ValidateDelegateOperation(ctx, "owner-1", domain.ModuleFinancial, domain.ActionWrite)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, "owner", check.Type)
	})

	t.Run("delegate with grant", func(t *testing.T) {
		ownerRepo.On("GetOwnerByID", ctx, "del-1").Return(nil, domain.NewNotFoundError("not found")).Once()
		delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(&domain.Delegate{
			ID: "del-1", DoctorID: "owner-1", Active: true,
			Permissions: domain.DefaultPermissions(),
		}, nil).Once()
		check, err := svc.ValidateDelegateOperation(ctx, "del-1", domain.ModulePatients, domain.ActionRead)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, "delegate", check.Type)
	})

	t.Run("delegate without grant", func(t *testing.T) {
		ownerRepo.On("GetOwnerByID", ctx, "del-1").Return(nil, domain.NewNotFoundError("not found")).Once()
		delegateRepo.On("GetDelegateByID", ctx, "del-1").Return(&domain.Delegate{
			ID: "del-1", DoctorID: "owner-1", Active: true,
			Permissions: domain.DefaultPermissions(),
		}, nil).Once()
		check, err := svc.ValidateDelegateOperation(ctx, "del-1", domain.ModulePatients, domain.ActionWrite)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Contains(t, check.Reason, "patients.write")
	})

	t.Run("deactivated delegate", func(t *testing.T) {
		ownerRepo.On("GetOwnerByID", ctx, "del-2").Return(nil, domain.NewNotFoundError("not found")).Once()
		delegateRepo.On("GetDelegateByID", ctx, "del-2").Return(&domain.Delegate{
			ID: "del-2", DoctorID: "owner-1", Active: false,
		}, nil).Once()
		check, err := svc.ValidateDelegateOperation(ctx, "del-2", domain.ModulePatients, domain.ActionRead)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, "Account deactivated", check.Reason)
	})

	t.Run("unknown caller", func(t *testing.T) {
		ownerRepo.On("GetOwnerByID", ctx, "ghost").Return(nil, domain.NewNotFoundError("not found")).Once()
		delegateRepo.On("GetDelegateByID", ctx, "ghost").Return(nil, domain.NewNotFoundError("not found")).Once()
		check, err := svc.ValidateDelegateOperation(ctx, "ghost", domain.ModulePatients, domain.ActionRead)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, "unknown", check.Type)
	})
}
