package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/identity"
)

// CredentialRepository implements identity.CredentialStore over the
// credentials collection.
type CredentialRepository struct {
	credentials *mongo.Collection
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(ctx context.Context, db *mongo.Database) (identity.CredentialStore, error) {
	repo := &CredentialRepository{
		credentials: db.Collection(CredentialsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&options.Collation{Locale: "en", Strength: 2}), // Case-insensitive unique email
		},
	}
	opts := options.CreateIndexes()
	if _, err := repo.credentials.Indexes().CreateMany(ctx, indexModels, opts); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for credentials collection (might already exist)")
	}

	return repo, nil
}

// CreateCredential inserts a new credential. A duplicate email maps to
// identity.ErrDuplicateEmail so the provider layer can surface its own code.
func (r *CredentialRepository) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	_, err := r.credentials.InsertOne(ctx, cred)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return identity.ErrDuplicateEmail
		}
		log.Error().Err(err).Str("email", cred.Email).Msg("Error creating credential in MongoDB")
		return err
	}
	return nil
}

// GetCredentialByEmail retrieves a credential by email.
func (r *CredentialRepository) GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.credentials.FindOne(ctx, bson.M{"email": email}).Decode(&cred)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("credential not found")
		}
		log.Error().Err(err).Str("email", email).Msg("Error getting credential by email from MongoDB")
		return nil, err
	}
	return &cred, nil
}

// DeleteCredential removes a credential by its provider-issued ID.
func (r *CredentialRepository) DeleteCredential(ctx context.Context, id string) error {
	result, err := r.credentials.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error deleting credential from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.NewNotFoundError("credential not found for deletion")
	}
	return nil
}

// Ensure interface compliance
var _ identity.CredentialStore = (*CredentialRepository)(nil)
