package store

import (
	"context"

	"hqms/queue-service/internal/models"
)

// TokenStore is the persistence contract for queue tokens. Implementations
// must keep the secondary lookups (doctor+date, patient) consistent with Put,
// and NextTokenNumber must be collision-free per (doctorID, date) even under
// concurrent callers.
type TokenStore interface {
	// Put upserts a token by id.
	Put(ctx context.Context, token models.QueueToken) error

	// Get returns the token or ErrTokenNotFound.
	Get(ctx context.Context, id string) (models.QueueToken, error)

	// ListByDoctorDate returns every token for the partition, ordered by
	// token number ascending.
	ListByDoctorDate(ctx context.Context, doctorID, date string) ([]models.QueueToken, error)

	// ListByDoctorDateStatus returns the partition's tokens in the given
	// status, in no particular order.
	ListByDoctorDateStatus(ctx context.Context, doctorID, date string, status models.Status) ([]models.QueueToken, error)

	// FindActiveByPatientDoctorDate returns the patient's WAITING token for
	// the partition, if any.
	FindActiveByPatientDoctorDate(ctx context.Context, patientID, doctorID, date string) (models.QueueToken, bool, error)

	// CountByDoctorDate returns how many tokens have been issued for the
	// partition.
	CountByDoctorDate(ctx context.Context, doctorID, date string) (int, error)

	// NextTokenNumber atomically allocates the next token number for the
	// partition, starting at 1.
	NextTokenNumber(ctx context.Context, doctorID, date string) (int, error)

	ListByPatient(ctx context.Context, patientID string) ([]models.QueueToken, error)
}
