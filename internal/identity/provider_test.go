package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxima-health/praxis/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Credential
	byEmail map[string]*domain.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:    make(map[string]*domain.Credential),
		byEmail: make(map[string]*domain.Credential),
	}
}

func (s *fakeStore) CreateCredential(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[cred.Email]; exists {
		return ErrDuplicateEmail
	}
	s.byID[cred.ID] = cred
	s.byEmail[cred.Email] = cred
	return nil
}

func (s *fakeStore) GetCredentialByEmail(_ context.Context, email string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byEmail[email]
	if !ok {
		return nil, domain.NewNotFoundError("credential not found")
	}
	return cred, nil
}

func (s *fakeStore) DeleteCredential(_ context.Context, id string) error {
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

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "h:" + password, nil }

func (fakeHasher) Verify(hashedPassword, password string) error {
	if hashedPassword != "h:"+password {
		return fmt.Errorf("mismatch")
	}
	return nil
}

func providerErrorCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *domain.Error
	require.True(t, errors.As(err, &domainErr))
	return domainErr.Code
}

func TestCreateIdentity(t *testing.T) {
	client := NewClient(newFakeStore(), fakeHasher{})
	ctx := context.Background()

	id, err := client.CreateIdentity(ctx, "  Jane@Example.COM ", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, client.CurrentSession(), "creation signs the new identity in")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := client.CreateIdentity(ctx, "jane@example.com", "another1")
		require.Error(t, err)
		assert.Equal(t, CodeEmailAlreadyInUse, providerErrorCode(t, err))
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := client.CreateIdentity(ctx, "other@example.com", "short")
		require.Error(t, err)
		assert.Equal(t, CodeWeakPassword, providerErrorCode(t, err))
	})
}

func TestSignInSignOut(t *testing.T) {
	store := newFakeStore()
	minting := NewClient(store, fakeHasher{})
	ctx := context.Background()

	id, err := minting.CreateIdentity(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)

	client := NewClient(store, fakeHasher{})
	assert.Empty(t, client.CurrentSession())

	signedInID, err := client.SignIn(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id, signedInID)
	assert.Equal(t, id, client.CurrentSession())

	require.NoError(t, client.SignOut(ctx))
	assert.Empty(t, client.CurrentSession())

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.SignIn(ctx, "jane@example.com", "nope")
		require.Error(t, err)
		assert.Equal(t, CodeInvalidCredential, providerErrorCode(t, err))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := client.SignIn(ctx, "ghost@example.com", "secret1")
		require.Error(t, err)
		assert.Equal(t, CodeInvalidCredential, providerErrorCode(t, err))
	})
}

func TestSessionStatePerInstance(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	first := NewClient(store, fakeHasher{})
	ownerID, err := first.CreateIdentity(ctx, "owner@example.com", "ownerpass")
	require.NoError(t, err)

	// A second instance over the same store has its own session slot.
	second := NewClient(store, fakeHasher{})
	assert.Empty(t, second.CurrentSession())

	_, err = second.CreateIdentity(ctx, "delegate@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, ownerID, first.CurrentSession(), "other instance's activity must not leak")
}

func TestClosedClient(t *testing.T) {
	client := NewClient(newFakeStore(), fakeHasher{})
	ctx := context.Background()

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "closing twice is fine")

	_, err := client.CreateIdentity(ctx, "jane@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, CodeClientClosed, providerErrorCode(t, err))

	err = client.SignOut(ctx)
	require.Error(t, err)
	assert.Equal(t, CodeClientClosed, providerErrorCode(t, err))
}

func TestDeleteIdentity(t *testing.T) {
	store := newFakeStore()
	client := NewClient(store, fakeHasher{})
	ctx := context.Background()

	id, err := client.CreateIdentity(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, client.DeleteIdentity(ctx, id))
	assert.Empty(t, client.CurrentSession(), "deleting the signed-in identity clears the session")

	_, err = store.GetCredentialByEmail(ctx, "jane@example.com")
	assert.Error(t, err)
}
