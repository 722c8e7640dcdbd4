package identity

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Factory produces identity-provider client instances that share a backing
// credential store but carry independent session state.
type Factory struct {
	store  CredentialStore
	hasher PasswordHasher
}

// NewFactory creates a client factory over the given store and hasher.
func NewFactory(store CredentialStore, hasher PasswordHasher) *Factory {
	return &Factory{store: store, hasher: hasher}
}

// NewIsolatedClient returns a fresh client instance. The caller owns its
// lifecycle and must Close it.
func (f *Factory) NewIsolatedClient() *Client {
	return NewClient(f.store, f.hasher)
}

// WithIsolatedContext acquires a throwaway client instance, runs work with
// it, and tears the instance down on every exit path. Teardown failures are
// logged but never mask an error from work.
func WithIsolatedContext(ctx context.Context, factory *Factory, work func(client *Client) error) (err error) {
	client := factory.NewIsolatedClient()
	defer func() {
		if signOutErr := client.SignOut(ctx); signOutErr != nil {
			log.Warn().Err(signOutErr).Msg("Failed to sign out isolated identity client during teardown")
		}
		if closeErr := client.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close isolated identity client")
		}
	}()
	return work(client)
}
