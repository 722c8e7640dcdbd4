package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/praxima-health/praxis/domain"
)

// DelegateRepository implements domain.DelegateRepository over the
// secretaries collection. Documents are keyed by the provider-issued
// credential ID, so no ObjectID generation happens here.
type DelegateRepository struct {
	db        *mongo.Database
	delegates *mongo.Collection
}

// NewDelegateRepository creates a new DelegateRepository.
func NewDelegateRepository(ctx context.Context, db *mongo.Database) (domain.DelegateRepository, error) {
	repo := &DelegateRepository{
		db:        db,
		delegates: db.Collection(DelegatesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create delegate indexes (might be due to existing compatible indexes)")
	}
	return repo, nil
}

func (r *DelegateRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&options.Collation{Locale: "en", Strength: 2}), // Case-insensitive unique email
		},
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetUnique(false),
		},
	}

	opts := options.CreateIndexes()
	_, err := r.delegates.Indexes().CreateMany(ctx, indexModels, opts)
	if err != nil {
		log.Warn().Err(err).Msg("Error creating indexes for secretaries collection (may already exist or options conflict)")
		return fmt.Errorf("failed to create indexes for secretaries collection: %w", err)
	}
	log.Info().Msg("Indexes for secretaries collection ensured.")
	return nil
}

// CreateDelegate persists a new delegate account document.
func (r *DelegateRepository) CreateDelegate(ctx context.Context, delegate *domain.Delegate) error {
	if delegate.ID == "" {
		return domain.NewValidationError("id", "delegate ID (provider credential ID) is required")
	}
	if delegate.CreatedAt.IsZero() {
		delegate.CreatedAt = time.Now().UTC()
	}

	_, err := r.delegates.InsertOne(ctx, delegate)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewConflictError("delegate with this email or ID already exists")
		}
		log.Error().Err(err).Interface("delegate", delegate).Msg("Error creating delegate in MongoDB")
		return err
	}
	return nil
}

// GetDelegateByID retrieves a delegate by the provider-issued credential ID.
func (r *DelegateRepository) GetDelegateByID(ctx context.Context, id string) (*domain.Delegate, error) {
	var delegate domain.Delegate
	err := r.delegates.FindOne(ctx, bson.M{"_id": id}).Decode(&delegate)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("delegate account not found")
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting delegate by ID from MongoDB")
		return nil, err
	}
	return &delegate, nil
}

// GetDelegateByEmail retrieves a delegate by email.
func (r *DelegateRepository) GetDelegateByEmail(ctx context.Context, email string) (*domain.Delegate, error) {
	var delegate domain.Delegate
	err := r.delegates.FindOne(ctx, bson.M{"email": email}).Decode(&delegate)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("delegate account not found")
		}
		log.Error().Err(err).Str("email", email).Msg("Error getting delegate by email from MongoDB")
		return nil, err
	}
	return &delegate, nil
}

// UpdateDelegate replaces an existing delegate document.
func (r *DelegateRepository) UpdateDelegate(ctx context.Context, delegate *domain.Delegate) error {
	if delegate.ID == "" {
		return domain.NewValidationError("id", "delegate ID is required for update")
	}

	result, err := r.delegates.ReplaceOne(ctx, bson.M{"_id": delegate.ID}, delegate)
	if err != nil {
		log.Error().Err(err).Str("delegateID", delegate.ID).Msg("Error updating delegate in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.NewNotFoundError("delegate account not found for update")
	}
	return nil
}

// ListDelegatesByOwner returns the owner's delegates, newest first.
func (r *DelegateRepository) ListDelegatesByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]*domain.Delegate, error) {
	filter := bson.M{"doctor_id": ownerID}
	if !includeInactive {
		filter["active"] = true
	}

	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.delegates.Find(ctx, filter, findOptions)
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error listing delegates from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var delegates []*domain.Delegate
	if err = cursor.All(ctx, &delegates); err != nil {
		log.Error().Err(err).Msg("Error decoding listed delegates from MongoDB")
		return nil, err
	}
	return delegates, nil
}

// CountActiveDelegates counts the owner's active delegates.
func (r *DelegateRepository) CountActiveDelegates(ctx context.Context, ownerID string) (int, error) {
	count, err := r.delegates.CountDocuments(ctx, bson.M{"doctor_id": ownerID, "active": true})
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error counting active delegates in MongoDB")
		return 0, err
	}
	return int(count), nil
}

// Ensure interface compliance
var _ domain.DelegateRepository = (*DelegateRepository)(nil)
