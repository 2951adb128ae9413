package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	Age           int       `db:"age" json:"age"`
	Gender        string    `db:"gender" json:"gender"`
	PhoneNumber   string    `db:"phone_number" json:"phone_number"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table. The deployment holds at most one row; the
// seat is guarded by a unique index, not by counting.
type Doctor struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	PhoneNumber       string     `db:"phone_number" json:"phone_number"`
	LicenseNumber     string     `db:"license_number" json:"license_number"`
	Specialization    string     `db:"specialization" json:"specialization"`
	Hospital          string     `db:"hospital" json:"hospital"`
	Qualifications    []string   `db:"qualifications" json:"qualifications"`
	YearsOfExperience int        `db:"years_of_experience" json:"years_of_experience"`
	Role              string     `db:"role" json:"role"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	IsVerified        bool       `db:"is_verified" json:"is_verified"`
	LastLogin         *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ExperienceLevel buckets years of experience for display.
func (d *Doctor) ExperienceLevel() string {
	switch {
	case d.YearsOfExperience < 2:
		return "Junior"
	case d.YearsOfExperience < 5:
		return "Mid-Level"
	case d.YearsOfExperience < 10:
		return "Senior"
	default:
		return "Expert"
	}
}

// OTP is a short-lived verification record gating patient registration.
type OTP struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Attempts  int       `db:"attempts" json:"attempts"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OTPTTL is how long a verification code stays valid.
const OTPTTL = 5 * time.Minute

// MaxOTPAttempts is the number of wrong codes allowed before the record is
// destroyed.
const MaxOTPAttempts = 5

// Expired reports whether the code is past its expiry.
func (o *OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
