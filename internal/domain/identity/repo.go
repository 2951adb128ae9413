package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmailTaken      = errors.New("account with this email already exists")
	ErrLicenseTaken    = errors.New("doctor with this license number already exists")
	ErrDoctorSeatTaken = errors.New("system already has a registered doctor")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	Exists(ctx context.Context) (bool, error)
	Update(ctx context.Context, d *Doctor) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

type OTPRepository interface {
	// Replace deletes any record for the email and stores the new one.
	Replace(ctx context.Context, o *OTP) error
	GetByEmail(ctx context.Context, email string) (*OTP, error)
	Update(ctx context.Context, o *OTP) error
	Delete(ctx context.Context, id uuid.UUID) error
}
