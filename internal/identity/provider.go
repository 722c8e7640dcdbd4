package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/domain"
)

// Provider error codes, preserved on domain provider errors for caller
// inspection.
const (
	CodeEmailAlreadyInUse = "email-already-in-use"
	CodeWeakPassword      = "weak-password"
	CodeInvalidCredential = "invalid-credential"
	CodeClientClosed      = "client-closed"
	CodeInternal          = "internal-error"
)

// MinPasswordLength is enforced by the provider when minting a credential.
const MinPasswordLength = 6

// PasswordHasher hashes and verifies credential passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// CredentialStore persists identity-provider credentials. ErrDuplicateEmail
// must be returned when the email is already claimed at the provider layer.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *domain.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}

// ErrDuplicateEmail is returned by CredentialStore implementations when a
// credential with the same email already exists.
var ErrDuplicateEmail = errors.New("credential email already exists")

// Client is an identity-provider client instance. Like the vendor SDKs it
// models, each instance carries a single mutable "current session": creating
// a credential signs the new identity in on the instance that created it.
// The provisioning flow therefore mints delegate credentials on a throwaway
// instance (see WithIsolatedContext) so the caller's primary client is never
// disturbed.
type Client struct {
	store  CredentialStore
	hasher PasswordHasher

	mu             sync.Mutex
	currentSession string // credential ID of the signed-in identity, if any
	closed         bool
}

// NewClient creates an identity-provider client over the given store.
func NewClient(store CredentialStore, hasher PasswordHasher) *Client {
	return &Client{store: store, hasher: hasher}
}

func (c *Client) checkOpen() error {
	if c.closed {
		return domain.NewProviderError(CodeClientClosed, "identity client is closed", nil)
	}
	return nil
}

// CreateIdentity mints a new email/password credential and returns the
// provider-issued ID. The new identity becomes the instance's current
// session, mirroring the vendor SDK behavior.
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return "", err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < MinPasswordLength {
		return "", domain.NewProviderError(CodeWeakPassword, "password must be at least 6 characters", nil)
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return "", domain.NewProviderError(CodeInternal, "failed to hash password", err)
	}

	cred := &domain.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return "", domain.NewProviderError(CodeEmailAlreadyInUse, "email already registered with the identity provider", err)
		}
		return "", domain.NewProviderError(CodeInternal, "failed to store credential", err)
	}

	c.currentSession = cred.ID
	return cred.ID, nil
}

// SignIn verifies an email/password pair and makes the matching identity the
// instance's current session.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return "", err
	}

	cred, err := c.store.GetCredentialByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", domain.NewProviderError(CodeInvalidCredential, "unknown email or wrong password", err)
	}
	if err := c.hasher.Verify(cred.PasswordHash, password); err != nil {
		return "", domain.NewProviderError(CodeInvalidCredential, "unknown email or wrong password", err)
	}

	c.currentSession = cred.ID
	return cred.ID, nil
}

// SignOut clears the instance's current session.
func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.currentSession = ""
	return nil
}

// DeleteIdentity removes a credential. Used as the compensating action when
// a provisioning step after credential creation fails.
func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.store.DeleteCredential(ctx, id); err != nil {
		return domain.NewProviderError(CodeInternal, "failed to delete credential", err)
	}
	if c.currentSession == id {
		c.currentSession = ""
	}
	return nil
}

// CurrentSession returns the credential ID of the signed-in identity, or the
// empty string when no identity is signed in.
func (c *Client) CurrentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSession
}

// Close tears the instance down. Any current session is dropped and further
// use fails with a provider error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.currentSession != "" {
		log.Warn().Str("credential_id", c.currentSession).Msg("Identity client closed with an active session")
		c.currentSession = ""
	}
	c.closed = true
	return nil
}
