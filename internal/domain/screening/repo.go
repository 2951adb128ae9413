package screening

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("result not found")

// DuplicateResultError rejects a prediction while an unconsumed Result exists
// for the same patient. It carries the blocking Result's id, when known, so the
// client can point the patient at it.
type DuplicateResultError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateResultError) Error() string {
	if e.ExistingID == uuid.Nil {
		return "a test result already exists; wait for doctor review or contact support"
	}
	return fmt.Sprintf("a test result already exists (id %s); wait for doctor review or contact support", e.ExistingID)
}

// Repository persists classifier Results. Create must enforce the
// one-result-per-patient invariant atomically and return DuplicateResultError
// when it trips.
type Repository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	GetLatestByPatient(ctx context.Context, patientID uuid.UUID) (*Result, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Result, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}
