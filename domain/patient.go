package domain

import "time"

// Patient represents a patient record owned by a doctor account.
type Patient struct {
	ID          string        `bson:"_id,omitempty"`
	DoctorID    string        `bson:"doctor_id"`
	Name        string        `bson:"name"`
	Email       string        `bson:"email,omitempty"`
	Phone       string        `bson:"phone,omitempty"`
	BirthDate   *time.Time    `bson:"birth_date,omitempty"`
	Notes       string        `bson:"notes,omitempty"`
	Attachments []PatientFile `bson:"attachments,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
	CreatedBy   string        `bson:"created_by,omitempty"` // owner or delegate ID
}

// PatientFile is a file attached to a patient record. The storage key is the
// object key in the file store; URL is the last presigned download URL handed
// to a client and is regenerated on demand.
type PatientFile struct {
	Key         string    `bson:"key"`
	FileName    string    `bson:"file_name"`
	ContentType string    `bson:"content_type,omitempty"`
	Size        int64     `bson:"size,omitempty"`
	UploadedBy  string    `bson:"uploaded_by,omitempty"`
	UploadedAt  time.Time `bson:"uploaded_at"`
}
