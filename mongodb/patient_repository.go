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
)

// PatientRepository implements domain.PatientRepository over the patients
// collection.
type PatientRepository struct {
	db       *mongo.Database
	patients *mongo.Collection
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(ctx context.Context, db *mongo.Database) (domain.PatientRepository, error) {
	repo := &PatientRepository{
		db:       db,
		patients: db.Collection(PatientsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetUnique(false),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(false),
		},
	}
	opts := options.CreateIndexes()
	if _, err := repo.patients.Indexes().CreateMany(ctx, indexModels, opts); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for patients collection (might already exist)")
	}

	return repo, nil
}

// CreatePatient creates a new patient record.
func (r *PatientRepository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	if patient.ID == "" {
		patient.ID = NewObjectID()
	}
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = time.Now().UTC()
	}
	patient.UpdatedAt = time.Now().UTC()

	_, err := r.patients.InsertOne(ctx, patient)
	if err != nil {
		log.Error().Err(err).Str("doctorID", patient.DoctorID).Msg("Error creating patient in MongoDB")
		return err
	}
	return nil
}

// GetPatientByID retrieves a patient record by ID.
func (r *PatientRepository) GetPatientByID(ctx context.Context, id string) (*domain.Patient, error) {
	var patient domain.Patient
	err := r.patients.FindOne(ctx, bson.M{"_id": id}).Decode(&patient)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("patient record not found")
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting patient by ID from MongoDB")
		return nil, err
	}
	return &patient, nil
}

// UpdatePatient replaces an existing patient record.
func (r *PatientRepository) UpdatePatient(ctx context.Context, patient *domain.Patient) error {
	if patient.ID == "" {
		return domain.NewValidationError("id", "patient ID is required for update")
	}
	patient.UpdatedAt = time.Now().UTC()

	result, err := r.patients.ReplaceOne(ctx, bson.M{"_id": patient.ID}, patient)
	if err != nil {
		log.Error().Err(err).Str("patientID", patient.ID).Msg("Error updating patient in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.NewNotFoundError("patient record not found for update")
	}
	return nil
}

// DeletePatient removes a patient record.
func (r *PatientRepository) DeletePatient(ctx context.Context, id string) error {
	result, err := r.patients.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error deleting patient from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.NewNotFoundError("patient record not found for deletion")
	}
	return nil
}

// ListPatientsByOwner returns a page of the owner's patients, newest first.
func (r *PatientRepository) ListPatientsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Patient, error) {
	if limit <= 0 {
		limit = 20 // Default page size
	}
	if limit > 100 { // Max page size
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	findOptions := options.Find()
	findOptions.SetSkip(int64(offset))
	findOptions.SetLimit(int64(limit))
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.patients.Find(ctx, bson.M{"doctor_id": ownerID}, findOptions)
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error listing patients from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var patients []*domain.Patient
	if err = cursor.All(ctx, &patients); err != nil {
		log.Error().Err(err).Msg("Error decoding listed patients from MongoDB")
		return nil, err
	}
	return patients, nil
}

// CountPatientsByOwner counts the owner's patient records.
func (r *PatientRepository) CountPatientsByOwner(ctx context.Context, ownerID string) (int, error) {
	count, err := r.patients.CountDocuments(ctx, bson.M{"doctor_id": ownerID})
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error counting patients in MongoDB")
		return 0, err
	}
	return int(count), nil
}

// Ensure interface compliance
var _ domain.PatientRepository = (*PatientRepository)(nil)
