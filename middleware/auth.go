package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/services"
)

// Context keys set by RequireSession.
const (
	ContextKeyAccountID   = "account_id"
	ContextKeyAccountType = "account_type"
	ContextKeySessionID   = "session_id"
)

// RequireSession returns echo middleware that validates the Authorization
// bearer token and stores the account identity on the request context.
func RequireSession(auth *services.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}

			claims, err := auth.ValidateToken(c.Request().Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected session token")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
			}

			c.Set(ContextKeyAccountID, claims.Subject)
			c.Set(ContextKeyAccountType, claims.AccountType)
			c.Set(ContextKeySessionID, claims.ID)
			return next(c)
		}
	}
}

// RequireOwner returns middleware that rejects non-owner sessions. It must
// run after RequireSession.
func RequireOwner() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountType, _ := c.Get(ContextKeyAccountType).(domain.AccountType)
			if accountType != domain.AccountTypeOwner {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "owner account required"})
			}
			return next(c)
		}
	}
}

// RequirePermission returns middleware that checks the caller's grant for a
// module action through the provisioning service. Owners always pass. It
// must run after RequireSession.
func RequirePermission(provisioning *services.ProvisioningService, module domain.Module, action domain.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID, _ := c.Get(ContextKeyAccountID).(string)
			check, err := provisioning.ValidateDelegateOperation(c.Request().Context(), accountID, module, action)
			if err != nil {
				log.Error().Err(err).Str("account_id", accountID).Msg("Permission check failed")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "permission check failed"})
			}
			if !check.Allowed {
				return c.JSON(http.StatusForbidden, map[string]string{"error": check.Reason})
			}
			return next(c)
		}
	}
}

// AccountID returns the authenticated account ID from the request context.
func AccountID(c echo.Context) string {
	id, _ := c.Get(ContextKeyAccountID).(string)
	return id
}

// AccountType returns the authenticated account type from the request context.
func AccountType(c echo.Context) domain.AccountType {
	t, _ := c.Get(ContextKeyAccountType).(domain.AccountType)
	return t
}

// SessionID returns the authenticated session ID from the request context.
func SessionID(c echo.Context) string {
	id, _ := c.Get(ContextKeySessionID).(string)
	return id
}
