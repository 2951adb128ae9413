package identity

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

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, email, password_hash, age, gender, phone_number, email_verified, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, name, email, password_hash, age, gender, phone_number, email_verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Email, p.PasswordHash, p.Age, p.Gender, p.PhoneNumber, p.EmailVerified,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE email = $1`, email))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+` FROM patient
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	p := &Patient{}
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Age, &p.Gender,
		&p.PhoneNumber, &p.EmailVerified, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, name, email, password_hash, phone_number, license_number, specialization,
	hospital, qualifications, years_of_experience, role, is_active, is_verified, last_login,
	created_at, updated_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor (id, name, email, password_hash, phone_number, license_number,
			specialization, hospital, qualifications, years_of_experience, role, is_active, is_verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, d.Name, d.Email, d.PasswordHash, d.PhoneNumber, d.LicenseNumber,
		d.Specialization, d.Hospital, d.Qualifications, d.YearsOfExperience, d.Role, d.IsActive, d.IsVerified,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "doctor_singleton_idx":
				return ErrDoctorSeatTaken
			case "doctor_license_number_key":
				return ErrLicenseTaken
			default:
				return ErrEmailTaken
			}
		}
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE email = $1`, email))
}

func (r *doctorRepoPG) Exists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctor)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check doctor exists: %w", err)
	}
	return exists, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctor
		SET name = $2, phone_number = $3, hospital = $4, qualifications = $5, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.PhoneNumber, d.Hospital, d.Qualifications,
	)
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *doctorRepoPG) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE doctor SET last_login = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch doctor last login: %w", err)
	}
	return nil
}

func scanDoctor(row rowScanner) (*Doctor, error) {
	d := &Doctor{}
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.PhoneNumber, &d.LicenseNumber,
		&d.Specialization, &d.Hospital, &d.Qualifications, &d.YearsOfExperience, &d.Role,
		&d.IsActive, &d.IsVerified, &d.LastLogin, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}
	return d, nil
}

// -- OTP Repository --

type otpRepoPG struct {
	pool *pgxpool.Pool
}

func NewOTPRepo(pool *pgxpool.Pool) OTPRepository {
	return &otpRepoPG{pool: pool}
}

func (r *otpRepoPG) Replace(ctx context.Context, o *OTP) error {
	o.ID = uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin otp replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM otp WHERE email = $1`, o.Email); err != nil {
		return fmt.Errorf("clear prior otp: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO otp (id, email, code, expires_at, attempts, verified)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.Email, o.Code, o.ExpiresAt, o.Attempts, o.Verified); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *otpRepoPG) GetByEmail(ctx context.Context, email string) (*OTP, error) {
	o := &OTP{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, code, expires_at, attempts, verified, created_at
		FROM otp WHERE email = $1`, email).
		Scan(&o.ID, &o.Email, &o.Code, &o.ExpiresAt, &o.Attempts, &o.Verified, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get otp: %w", err)
	}
	return o, nil
}

func (r *otpRepoPG) Update(ctx context.Context, o *OTP) error {
	_, err := r.pool.Exec(ctx, `UPDATE otp SET attempts = $2, verified = $3 WHERE id = $1`,
		o.ID, o.Attempts, o.Verified)
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	return nil
}

func (r *otpRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otp WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
