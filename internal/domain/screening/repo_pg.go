package screening

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const resultCols = `id, patient_id, image_url, heatmap_url, label, confidence, raw_prediction, threshold_used, created_at`

// Create inserts the Result. The unique index on patient_id is the
// authoritative duplicate gate: when it fires, the blocking row's id is looked
// up so the error can carry it.
func (r *repoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO result (id, patient_id, image_url, heatmap_url, label, confidence, raw_prediction, threshold_used)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		res.ID, res.PatientID, res.ImageURL, res.HeatmapURL, res.Label, res.Confidence, res.RawPrediction, res.ThresholdUsed,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// One retry covers the transient case; a duplicate without the
			// blocking id still renders as a conflict, just without it.
			existing, lookupErr := r.GetLatestByPatient(ctx, res.PatientID)
			if lookupErr != nil {
				existing, lookupErr = r.GetLatestByPatient(ctx, res.PatientID)
			}
			if lookupErr != nil {
				return &DuplicateResultError{}
			}
			return &DuplicateResultError{ExistingID: existing.ID}
		}
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.pool.QueryRow(ctx, `SELECT `+resultCols+` FROM result WHERE id = $1`, id))
}

func (r *repoPG) GetLatestByPatient(ctx context.Context, patientID uuid.UUID) (*Result, error) {
	return scanResult(r.pool.QueryRow(ctx, `
		SELECT `+resultCols+` FROM result
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, patientID))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resultCols+` FROM result
		WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM result WHERE patient_id = $1`, patientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}

func (r *repoPG) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM result WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*Result, error) {
	var res Result
	err := row.Scan(&res.ID, &res.PatientID, &res.ImageURL, &res.HeatmapURL, &res.Label,
		&res.Confidence, &res.RawPrediction, &res.ThresholdUsed, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	return &res, nil
}
