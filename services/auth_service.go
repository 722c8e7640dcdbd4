package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/cache"
	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/audit"
	"github.com/praxima-health/praxis/internal/identity"
	"github.com/praxima-health/praxis/internal/metrics"
)

// SessionClaims are the JWT claims carried by a praxis session token.
type SessionClaims struct {
	AccountType domain.AccountType `json:"typ"`
	jwt.RegisteredClaims
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token       string             `json:"token"`
	ExpiresAt   time.Time          `json:"expires_at"`
	AccountID   string             `json:"account_id"`
	AccountType domain.AccountType `json:"account_type"`
	DisplayName string             `json:"display_name"`
}

// AuthService authenticates owners and delegates against the identity
// provider and manages their login sessions.
type AuthService struct {
	owners       domain.OwnerRepository
	delegates    domain.DelegateRepository
	sessions     domain.SessionRepository
	sessionCache cache.SessionStore
	idp          *identity.Client
	signingKey   []byte
	sessionTTL   time.Duration
}

// NewAuthService creates an AuthService. idp is the primary identity client.
func NewAuthService(
	owners domain.OwnerRepository,
	delegates domain.DelegateRepository,
	sessions domain.SessionRepository,
	sessionCache cache.SessionStore,
	idp *identity.Client,
	signingKey []byte,
	sessionTTL time.Duration,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &AuthService{
		owners:       owners,
		delegates:    delegates,
		sessions:     sessions,
		sessionCache: sessionCache,
		idp:          idp,
		signingKey:   signingKey,
		sessionTTL:   sessionTTL,
	}
}

// Login verifies the email/password pair against the identity provider,
// resolves the account (owner or delegate), and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*LoginResult, error) {
	log.Debug().Str("email", email).Msg("Login attempt")

	credentialID, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("Login: credential verification failed")
		audit.Log("AuthService", "Login", email, "", "Credential verification failed", false, err)
		metrics.LoginFailureTotal.Inc()
		return nil, domain.NewAuthorizationError("invalid email or password")
	}

	// Owners are looked up by email; delegates are keyed by credential ID.
	if owner, ownerErr := s.owners.GetOwnerByEmail(ctx, email); ownerErr == nil {
		return s.completeOwnerLogin(ctx, owner, userAgent, ipAddress)
	} else if !domain.IsNotFound(ownerErr) {
		return nil, ownerErr
	}

	delegate, err := s.delegates.GetDelegateByID(ctx, credentialID)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Warn().Str("credential_id", credentialID).Msg("Login: credential has no account record")
			metrics.LoginFailureTotal.Inc()
			return nil, domain.NewAuthorizationError("invalid email or password")
		}
		return nil, err
	}
	if !delegate.Active {
		log.Warn().Str("delegate_id", delegate.ID).Msg("Login: delegate account deactivated")
		audit.Log("AuthService", "Login", delegate.ID, delegate.ID, "Account deactivated", false, nil)
		metrics.LoginFailureTotal.Inc()
		return nil, domain.NewAuthorizationError("account is deactivated")
	}

	now := time.Now().UTC()
	delegate.LoginCount++
	delegate.LastLoginAt = &now
	if err := s.delegates.UpdateDelegate(ctx, delegate); err != nil {
		log.Warn().Err(err).Str("delegate_id", delegate.ID).Msg("Failed to record delegate login")
	}

	result, err := s.issueSession(ctx, delegate.ID, domain.AccountTypeDelegate, delegate.Name, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	metrics.LoginSuccessTotal.Inc()
	audit.Log("AuthService", "Login", delegate.ID, delegate.ID, "", true, nil)
	return result, nil
}

func (s *AuthService) completeOwnerLogin(ctx context.Context, owner *domain.Owner, userAgent, ipAddress string) (*LoginResult, error) {
	now := time.Now().UTC()
	owner.LastLoginAt = &now
	if err := s.owners.UpdateOwner(ctx, owner); err != nil {
		log.Warn().Err(err).Str("owner_id", owner.ID).Msg("Failed to record owner login")
	}

	result, err := s.issueSession(ctx, owner.ID, domain.AccountTypeOwner, owner.DisplayName, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	metrics.LoginSuccessTotal.Inc()
	audit.Log("AuthService", "Login", owner.ID, owner.ID, "", true, nil)
	return result, nil
}

func (s *AuthService) issueSession(ctx context.Context, accountID string, accountType domain.AccountType, displayName, userAgent, ipAddress string) (*LoginResult, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)

	session := &domain.Session{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		AccountType: accountType,
		UserAgent:   userAgent,
		IPAddress:   ipAddress,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := s.sessions.StoreSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if s.sessionCache != nil {
		entry := &cache.SessionEntry{
			SessionID:   session.ID,
			AccountID:   accountID,
			AccountType: accountType,
			ExpiresAt:   expiresAt,
			CreatedAt:   now,
			LastUsedAt:  now,
		}
		if err := s.sessionCache.Set(ctx, entry); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to cache session")
		}
	}

	claims := SessionClaims{
		AccountType: accountType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "praxis",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &LoginResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		AccountID:   accountID,
		AccountType: accountType,
		DisplayName: displayName,
	}, nil
}

// ValidateToken parses a session token and confirms the backing session is
// still live. The cache is consulted first; the repository is authoritative.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*SessionClaims, error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.NewAuthorizationError("invalid or expired session token")
	}

	if s.sessionCache != nil {
		if entry, cacheErr := s.sessionCache.Get(ctx, claims.ID); cacheErr == nil {
			if entry.IsRevoked {
				return nil, domain.NewAuthorizationError("session revoked")
			}
			return &claims, nil
		}
	}

	session, err := s.sessions.GetSessionByID(ctx, claims.ID)
	if err != nil {
		return nil, domain.NewAuthorizationError("session not found")
	}
	if session.IsRevoked {
		return nil, domain.NewAuthorizationError("session revoked")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, domain.NewAuthorizationError("session expired")
	}
	if err := s.sessions.TouchSession(ctx, session.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to touch session")
	}
	return &claims, nil
}

// Logout revokes the session behind the token and signs the primary
// identity client out.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.RevokeSession(ctx, sessionID); err != nil && !domain.IsNotFound(err) {
		return err
	}
	if s.sessionCache != nil {
		if err := s.sessionCache.Delete(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to evict session from cache")
		}
	}
	if err := s.idp.SignOut(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to sign out identity client on logout")
	}
	audit.Log("AuthService", "Logout", "", sessionID, "", true, nil)
	return nil
}
