package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("report not found")

// Repository persists Reports. CreateConsumingResult must insert the report
// and delete the consumed Result row atomically, so a crash can never leave
// both or neither.
type Repository interface {
	CreateConsumingResult(ctx context.Context, r *Report, resultID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	ListByStatus(ctx context.Context, status Status) ([]*Report, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, r *Report) error
}
