package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermissionMap(t *testing.T) {
	t.Run("valid map", func(t *testing.T) {
		parsed, err := ParsePermissionMap(map[string]map[string]any{
			"patients":   {"read": true, "write": false},
			"scheduling": {"view_details": true},
		})
		require.NoError(t, err)
		assert.True(t, parsed.Allows(ModulePatients, ActionRead))
		assert.False(t, parsed.Allows(ModulePatients, ActionWrite))
		assert.True(t, parsed.Allows(ModuleScheduling, ActionViewDetails))
	})

	t.Run("non-boolean value names the key", func(t *testing.T) {
		_, err := ParsePermissionMap(map[string]map[string]any{
			"patients": {"write": "yes"},
		})
		require.Error(t, err)
		var domainErr *Error
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "patients.write", domainErr.Field)
		assert.Contains(t, err.Error(), "boolean")
	})

	t.Run("unknown module", func(t *testing.T) {
		_, err := ParsePermissionMap(map[string]map[string]any{
			"billing": {"read": true},
		})
		require.Error(t, err)
		var domainErr *Error
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "billing", domainErr.Field)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := ParsePermissionMap(map[string]map[string]any{
			"patients": {"delete": true},
		})
		require.Error(t, err)
		var domainErr *Error
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "patients.delete", domainErr.Field)
	})
}

func TestPermissionMapValidate(t *testing.T) {
	assert.NoError(t, DefaultPermissions().Validate())

	err := PermissionMap{ModulePatients: {"purge": true}}.Validate()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestPermissionMapAllows(t *testing.T) {
	perms := DefaultPermissions()
	assert.True(t, perms.Allows(ModulePatients, ActionRead))
	assert.False(t, perms.Allows(ModuleFinancial, ActionRead))

	// Missing modules and actions deny.
	var empty PermissionMap
	assert.False(t, empty.Allows(ModulePatients, ActionRead))
}

func TestPlanTierDelegateLimit(t *testing.T) {
	assert.Equal(t, 10, PlanTierAdmin.DelegateLimit())
	assert.Equal(t, 5, PlanTierSubscribed.DelegateLimit())
	assert.Equal(t, 1, PlanTierDefault.DelegateLimit())
	assert.Equal(t, 1, PlanTier("mystery").DelegateLimit())
}
