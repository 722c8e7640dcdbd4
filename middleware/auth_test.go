package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/services"
)

type stubOwnerRepo struct {
	owner *domain.Owner
}

func (s *stubOwnerRepo) GetOwnerByID(_ context.Context, id string) (*domain.Owner, error) {
	if s.owner != nil && s.owner.ID == id {
		return s.owner, nil
	}
	return nil, domain.NewNotFoundError("owner not found")
}

func (s *stubOwnerRepo) GetOwnerByEmail(context.Context, string) (*domain.Owner, error) {
	return nil, domain.NewNotFoundError("owner not found")
}

func (s *stubOwnerRepo) CreateOwner(context.Context, *domain.Owner) error { return nil }
func (s *stubOwnerRepo) UpdateOwner(context.Context, *domain.Owner) error { return nil }

func (s *stubOwnerRepo) UpdateDelegateAggregates(context.Context, string, int, *time.Time) error {
	return nil
}

type stubDelegateRepo struct {
	delegate *domain.Delegate
}

func (s *stubDelegateRepo) GetDelegateByID(_ context.Context, id string) (*domain.Delegate, error) {
	if s.delegate != nil && s.delegate.ID == id {
		return s.delegate, nil
	}
	return nil, domain.NewNotFoundError("delegate not found")
}

func (s *stubDelegateRepo) GetDelegateByEmail(context.Context, string) (*domain.Delegate, error) {
	return nil, domain.NewNotFoundError("delegate not found")
}

func (s *stubDelegateRepo) CreateDelegate(context.Context, *domain.Delegate) error { return nil }
func (s *stubDelegateRepo) UpdateDelegate(context.Context, *domain.Delegate) error { return nil }

func (s *stubDelegateRepo) ListDelegatesByOwner(context.Context, string, bool) ([]*domain.Delegate, error) {
	return nil, nil
}

func (s *stubDelegateRepo) CountActiveDelegates(context.Context, string) (int, error) {
	return 0, nil
}

func invokePermissionGate(t *testing.T, provisioning *services.ProvisioningService, accountID string, action domain.Action) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ContextKeyAccountID, accountID)

	handler := RequirePermission(provisioning, domain.ModulePatients, action)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec
}

func TestRequirePermission(t *testing.T) {
	owner := &domain.Owner{ID: "owner-1"}
	delegate := &domain.Delegate{
		ID:       "del-1",
		DoctorID: "owner-1",
		Active:   true,
		Permissions: domain.PermissionMap{
			domain.ModulePatients: {domain.ActionRead: true},
		},
	}
	provisioning := services.NewProvisioningService(
		&stubOwnerRepo{owner: owner},
		&stubDelegateRepo{delegate: delegate},
		nil, nil,
	)

	t.Run("owner passes", func(t *testing.T) {
		rec := invokePermissionGate(t, provisioning, "owner-1", domain.ActionWrite)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("delegate with grant passes", func(t *testing.T) {
		rec := invokePermissionGate(t, provisioning, "del-1", domain.ActionRead)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("delegate without grant is rejected", func(t *testing.T) {
		rec := invokePermissionGate(t, provisioning, "del-1", domain.ActionWrite)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "patients.write not granted")
	})

	t.Run("deactivated delegate is rejected", func(t *testing.T) {
		inactive := &domain.Delegate{ID: "del-2", DoctorID: "owner-1", Active: false}
		svc := services.NewProvisioningService(
			&stubOwnerRepo{owner: owner},
			&stubDelegateRepo{delegate: inactive},
			nil, nil,
		)
		rec := invokePermissionGate(t, svc, "del-2", domain.ActionRead)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Account deactivated")
	})

	t.Run("unknown caller is rejected", func(t *testing.T) {
		rec := invokePermissionGate(t, provisioning, "nobody", domain.ActionRead)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRequireOwner(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	t.Run("owner passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.Set(ContextKeyAccountType, domain.AccountTypeOwner)
		require.NoError(t, RequireOwner()(next)(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("delegate is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.Set(ContextKeyAccountType, domain.AccountTypeDelegate)
		require.NoError(t, RequireOwner()(next)(c))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
