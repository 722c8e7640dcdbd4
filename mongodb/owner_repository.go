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

// OwnerRepository implements domain.OwnerRepository over the doctors collection.
type OwnerRepository struct {
	db     *mongo.Database
	owners *mongo.Collection
}

// NewOwnerRepository creates a new OwnerRepository.
func NewOwnerRepository(ctx context.Context, db *mongo.Database) (domain.OwnerRepository, error) {
	repo := &OwnerRepository{
		db:     db,
		owners: db.Collection(OwnersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		// Index creation can fail when compatible indexes already exist;
		// log and continue.
		log.Warn().Err(err).Msg("Failed to create owner indexes (might be due to existing compatible indexes)")
	}
	return repo, nil
}

func (r *OwnerRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&options.Collation{Locale: "en", Strength: 2}), // Case-insensitive unique email
		},
		{
			Keys:    bson.D{{Key: "tier", Value: 1}},
			Options: options.Index().SetUnique(false),
		},
	}

	opts := options.CreateIndexes()
	_, err := r.owners.Indexes().CreateMany(ctx, indexModels, opts)
	if err != nil {
		log.Warn().Err(err).Msg("Error creating indexes for doctors collection (may already exist or options conflict)")
		return fmt.Errorf("failed to create indexes for doctors collection: %w", err)
	}
	log.Info().Msg("Indexes for doctors collection ensured.")
	return nil
}

// CreateOwner creates a new owner account document.
func (r *OwnerRepository) CreateOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == "" {
		owner.ID = NewObjectID()
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}
	owner.UpdatedAt = time.Now().UTC()
	if owner.Tier == "" {
		owner.Tier = domain.PlanTierDefault
	}

	_, err := r.owners.InsertOne(ctx, owner)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewConflictError("owner with this email or ID already exists")
		}
		log.Error().Err(err).Interface("owner", owner).Msg("Error creating owner in MongoDB")
		return err
	}
	return nil
}

// GetOwnerByID retrieves an owner by their ID.
func (r *OwnerRepository) GetOwnerByID(ctx context.Context, id string) (*domain.Owner, error) {
	var owner domain.Owner
	err := r.owners.FindOne(ctx, bson.M{"_id": id}).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("owner account not found")
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting owner by ID from MongoDB")
		return nil, err
	}
	return &owner, nil
}

// GetOwnerByEmail retrieves an owner by their email.
func (r *OwnerRepository) GetOwnerByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	var owner domain.Owner
	err := r.owners.FindOne(ctx, bson.M{"email": email}).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("owner account not found")
		}
		log.Error().Err(err).Str("email", email).Msg("Error getting owner by email from MongoDB")
		return nil, err
	}
	return &owner, nil
}

// UpdateOwner replaces an existing owner document.
func (r *OwnerRepository) UpdateOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == "" {
		return domain.NewValidationError("id", "owner ID is required for update")
	}
	owner.UpdatedAt = time.Now().UTC()

	result, err := r.owners.ReplaceOne(ctx, bson.M{"_id": owner.ID}, owner)
	if err != nil {
		log.Error().Err(err).Str("ownerID", owner.ID).Msg("Error updating owner in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.NewNotFoundError("owner account not found for update")
	}
	return nil
}

// UpdateDelegateAggregates rewrites the owner's delegate counters in place.
// The has_delegates flag is true iff the active count is positive.
func (r *OwnerRepository) UpdateDelegateAggregates(ctx context.Context, ownerID string, activeCount int, lastCreatedAt *time.Time) error {
	set := bson.M{
		"active_delegate_count": activeCount,
		"has_delegates":         activeCount > 0,
		"updated_at":            time.Now().UTC(),
	}
	if lastCreatedAt != nil {
		set["last_delegate_created_at"] = *lastCreatedAt
	}

	result, err := r.owners.UpdateOne(ctx, bson.M{"_id": ownerID}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error updating owner delegate aggregates in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.NewNotFoundError("owner account not found for aggregate update")
	}
	return nil
}

// Ensure interface compliance
var _ domain.OwnerRepository = (*OwnerRepository)(nil)
