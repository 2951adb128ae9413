package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const reportCols = `id, patient_id, patient_name, patient_email, xray_url, heatmap_url, label, raw_prediction, doctor_notes, pdf_path, status, original_result_id, created_at, updated_at`

func (r *repoPG) CreateConsumingResult(ctx context.Context, rep *Report, resultID uuid.UUID) error {
	rep.ID = uuid.New()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO report (id, patient_id, patient_name, patient_email, xray_url, heatmap_url,
				label, raw_prediction, doctor_notes, pdf_path, status, original_result_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			rep.ID, rep.PatientID, rep.PatientName, rep.PatientEmail, rep.XrayURL, rep.HeatmapURL,
			rep.Label, rep.RawPrediction, rep.DoctorNotes, rep.PDFPath, rep.Status, rep.OriginalResultID,
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM result WHERE id = $1`, resultID)
		if err != nil {
			return fmt.Errorf("delete consumed result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("consumed result %s vanished mid-transaction", resultID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `SELECT `+reportCols+` FROM report WHERE id = $1`, id))
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status) ([]*Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportCols+` FROM report
		WHERE status = $1
		ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportCols+` FROM report
		WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM report`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}

func (r *repoPG) Update(ctx context.Context, rep *Report) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report
		SET status = $2, doctor_notes = $3, updated_at = now()
		WHERE id = $1`,
		rep.ID, rep.Status, rep.DoctorNotes,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.PatientID, &rep.PatientName, &rep.PatientEmail, &rep.XrayURL,
		&rep.HeatmapURL, &rep.Label, &rep.RawPrediction, &rep.DoctorNotes, &rep.PDFPath,
		&rep.Status, &rep.OriginalResultID, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return &rep, nil
}
