package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/praxima-health/praxis/domain"
	"github.com/praxima-health/praxis/internal/audit"
	"github.com/praxima-health/praxis/internal/metrics"
	"github.com/praxima-health/praxis/storage"
)

// OperationAuthorizer decides whether a caller may perform a module action.
// Satisfied by ProvisioningService.
type OperationAuthorizer interface {
	ValidateDelegateOperation(ctx context.Context, callerID string, module domain.Module, action domain.Action) (*OperationCheck, error)
}

// PatientService manages patient records and their file attachments. Every
// operation is gated on the caller's permission for the patients module.
type PatientService struct {
	patients   domain.PatientRepository
	authorizer OperationAuthorizer
	files      storage.FileStore
}

// NewPatientService creates a PatientService. files may be nil; attachment
// operations then return a validation error.
func NewPatientService(patients domain.PatientRepository, authorizer OperationAuthorizer, files storage.FileStore) *PatientService {
	return &PatientService{
		patients:   patients,
		authorizer: authorizer,
		files:      files,
	}
}

func (s *PatientService) authorize(ctx context.Context, callerID string, action domain.Action) error {
	check, err := s.authorizer.ValidateDelegateOperation(ctx, callerID, domain.ModulePatients, action)
	if err != nil {
		return err
	}
	if !check.Allowed {
		return domain.NewAuthorizationError(check.Reason)
	}
	return nil
}

// CreatePatientInput carries the fields for a new patient record.
type CreatePatientInput struct {
	DoctorID  string
	Name      string
	Email     string
	Phone     string
	BirthDate *time.Time
	Notes     string
}

// CreatePatient creates a patient record under the given doctor.
func (s *PatientService) CreatePatient(ctx context.Context, callerID string, input CreatePatientInput) (*domain.Patient, error) {
	if err := s.authorize(ctx, callerID, domain.ActionWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, domain.NewValidationError("name", "patient name is required")
	}
	if input.DoctorID == "" {
		return nil, domain.NewValidationError("doctor_id", "doctor ID is required")
	}

	now := time.Now().UTC()
	patient := &domain.Patient{
		DoctorID:  input.DoctorID,
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		BirthDate: input.BirthDate,
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: callerID,
	}
	if err := s.patients.CreatePatient(ctx, patient); err != nil {
		return nil, err
	}
	metrics.PatientWritesTotal.Inc()
	audit.Log("PatientService", "CreatePatient", callerID, patient.ID, "", true, nil)
	return patient, nil
}

// GetPatient returns a patient by ID.
func (s *PatientService) GetPatient(ctx context.Context, callerID, patientID string) (*domain.Patient, error) {
	if err := s.authorize(ctx, callerID, domain.ActionRead); err != nil {
		return nil, err
	}
	return s.patients.GetPatientByID(ctx, patientID)
}

// UpdatePatientInput carries the mutable fields of a patient record. Nil
// pointers leave the stored value unchanged.
type UpdatePatientInput struct {
	Name      *string
	Email     *string
	Phone     *string
	BirthDate *time.Time
	Notes     *string
}

// UpdatePatient applies a partial update to a patient record.
func (s *PatientService) UpdatePatient(ctx context.Context, callerID, patientID string, input UpdatePatientInput) (*domain.Patient, error) {
	if err := s.authorize(ctx, callerID, domain.ActionWrite); err != nil {
		return nil, err
	}
	patient, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, domain.NewValidationError("name", "patient name cannot be empty")
		}
		patient.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		patient.Email = strings.TrimSpace(*input.Email)
	}
	if input.Phone != nil {
		patient.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.BirthDate != nil {
		patient.BirthDate = input.BirthDate
	}
	if input.Notes != nil {
		patient.Notes = *input.Notes
	}
	patient.UpdatedAt = time.Now().UTC()
	if err := s.patients.UpdatePatient(ctx, patient); err != nil {
		return nil, err
	}
	metrics.PatientWritesTotal.Inc()
	audit.Log("PatientService", "UpdatePatient", callerID, patientID, "", true, nil)
	return patient, nil
}

// DeletePatient removes a patient record and its stored attachments.
func (s *PatientService) DeletePatient(ctx context.Context, callerID, patientID string) error {
	if err := s.authorize(ctx, callerID, domain.ActionWrite); err != nil {
		return err
	}
	patient, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return err
	}
	if err := s.patients.DeletePatient(ctx, patientID); err != nil {
		return err
	}
	if s.files != nil {
		for _, att := range patient.Attachments {
			if err := s.files.Delete(ctx, att.Key); err != nil {
				log.Warn().Err(err).Str("key", att.Key).Msg("Failed to delete patient attachment object")
			}
		}
	}
	metrics.PatientWritesTotal.Inc()
	audit.Log("PatientService", "DeletePatient", callerID, patientID, "", true, nil)
	return nil
}

// PatientPage is one page of a patient listing.
type PatientPage struct {
	Patients []*domain.Patient `json:"patients"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ListPatients returns a page of the doctor's patients.
func (s *PatientService) ListPatients(ctx context.Context, callerID, doctorID string, limit, offset int) (*PatientPage, error) {
	if err := s.authorize(ctx, callerID, domain.ActionRead); err != nil {
		return nil, err
	}
	patients, err := s.patients.ListPatientsByOwner(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.patients.CountPatientsByOwner(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return &PatientPage{Patients: patients, Total: total, Limit: limit, Offset: offset}, nil
}

// AttachFile uploads a file to the object store and records it on the
// patient. The object key is derived from the doctor and a fresh UUID so
// uploads never collide.
func (s *PatientService) AttachFile(ctx context.Context, callerID, patientID, fileName, contentType string, body io.Reader, size int64) (*domain.PatientFile, error) {
	if err := s.authorize(ctx, callerID, domain.ActionWrite); err != nil {
		return nil, err
	}
	if s.files == nil {
		return nil, domain.NewValidationError("file", "file storage is not configured")
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, domain.NewValidationError("file_name", "file name is required")
	}
	patient, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("patients/%s/%s%s", patient.DoctorID, uuid.NewString(), path.Ext(fileName))
	if err := s.files.Upload(ctx, key, contentType, body, size); err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	file := domain.PatientFile{
		Key:         key,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  callerID,
		UploadedAt:  time.Now().UTC(),
	}
	patient.Attachments = append(patient.Attachments, file)
	patient.UpdatedAt = time.Now().UTC()
	if err := s.patients.UpdatePatient(ctx, patient); err != nil {
		// The object is orphaned if the record update fails; remove it.
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("Failed to delete orphaned attachment object")
		}
		return nil, err
	}
	metrics.PatientWritesTotal.Inc()
	audit.Log("PatientService", "AttachFile", callerID, patientID, "", true, nil)
	return &file, nil
}

// AttachmentDownloadURL returns a presigned download URL for an attachment.
func (s *PatientService) AttachmentDownloadURL(ctx context.Context, callerID, patientID, key string) (string, error) {
	if err := s.authorize(ctx, callerID, domain.ActionViewDetails); err != nil {
		return "", err
	}
	if s.files == nil {
		return "", domain.NewValidationError("file", "file storage is not configured")
	}
	patient, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return "", err
	}
	for _, att := range patient.Attachments {
		if att.Key == key {
			return s.files.PresignDownload(ctx, key)
		}
	}
	return "", domain.NewNotFoundError("attachment not found on patient record")
}

// RemoveAttachment deletes an attachment object and drops it from the record.
func (s *PatientService) RemoveAttachment(ctx context.Context, callerID, patientID, key string) error {
	if err := s.authorize(ctx, callerID, domain.ActionWrite); err != nil {
		return err
	}
	if s.files == nil {
		return domain.NewValidationError("file", "file storage is not configured")
	}
	patient, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return err
	}
	kept := patient.Attachments[:0]
	found := false
	for _, att := range patient.Attachments {
		if att.Key == key {
			found = true
			continue
		}
		kept = append(kept, att)
	}
	if !found {
		return domain.NewNotFoundError("attachment not found on patient record")
	}
	patient.Attachments = kept
	patient.UpdatedAt = time.Now().UTC()
	if err := s.patients.UpdatePatient(ctx, patient); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to delete attachment object")
	}
	metrics.PatientWritesTotal.Inc()
	audit.Log("PatientService", "RemoveAttachment", callerID, patientID, "", true, nil)
	return nil
}
