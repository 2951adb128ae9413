package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/deeptb/api/internal/platform/auth"
	"github.com/deeptb/api/internal/platform/notification"
)

var (
	// ErrValidation marks request-shaped failures so handlers can answer 400
	// without sniffing error text.
	ErrValidation = errors.New("validation failed")

	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrOTPExpired          = errors.New("verification code has expired, request a new one")
	ErrOTPConsumed         = errors.New("verification code already used, request a new one")
	ErrOTPAttemptsExceeded = errors.New("too many failed attempts, request a new code")
)

// OTPMismatchError reports a wrong code along with the attempts left before
// the record is destroyed.
type OTPMismatchError struct {
	Remaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	otps     OTPRepository
	tokens   *auth.TokenIssuer
	mailer   *notification.Mailer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientRepository, doctors DoctorRepository, otps OTPRepository,
	tokens *auth.TokenIssuer, mailer *notification.Mailer, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		doctors:  doctors,
		otps:     otps,
		tokens:   tokens,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// -- Patient signup (OTP-gated) --

type SignupRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r *SignupRequest) validate() error {
	if r.Name == "" || r.Email == "" || r.Password == "" || r.Gender == "" || r.PhoneNumber == "" {
		return fmt.Errorf("%w: name, email, password, gender and phoneNumber are required", ErrValidation)
	}
	if r.Age <= 0 {
		return fmt.Errorf("%w: age must be positive", ErrValidation)
	}
	return nil
}

// StartSignup validates the registration fields, rejects a taken email, and
// emails a fresh verification code. The account itself is not created until
// the code is verified.
func (s *Service) StartSignup(ctx context.Context, req *SignupRequest) error {
	if err := req.validate(); err != nil {
		return err
	}

	if _, err := s.patients.GetByEmail(ctx, req.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	code, err := GenerateOTPCode()
	if err != nil {
		return err
	}

	// The email goes out before the record is stored so a failed send never
	// leaves a code nobody received.
	if err := s.mailer.Send(ctx, "otp-code", req.Email, map[string]string{
		"name": req.Name,
		"code": code,
	}); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}

	return s.otps.Replace(ctx, &OTP{
		Email:     req.Email,
		Code:      code,
		ExpiresAt: s.now().Add(OTPTTL),
	})
}

type VerifyOTPRequest struct {
	SignupRequest
	Code string `json:"otp"`
}

// VerifyOTP checks the code against the stored record and, on success,
// creates the verified patient account and returns it with a bearer token.
func (s *Service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*Patient, string, error) {
	if req.Code == "" {
		return nil, "", fmt.Errorf("%w: otp is required", ErrValidation)
	}
	if err := req.validate(); err != nil {
		return nil, "", err
	}

	record, err := s.otps.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", err
	}

	if record.Expired(s.now()) {
		if err := s.otps.Delete(ctx, record.ID); err != nil {
			s.logger.Warn().Err(err).Str("email", req.Email).Msg("delete expired otp")
		}
		return nil, "", ErrOTPExpired
	}
	if record.Verified {
		return nil, "", ErrOTPConsumed
	}
	if record.Attempts >= MaxOTPAttempts {
		if err := s.otps.Delete(ctx, record.ID); err != nil {
			s.logger.Warn().Err(err).Str("email", req.Email).Msg("delete exhausted otp")
		}
		return nil, "", ErrOTPAttemptsExceeded
	}
	if record.Code != req.Code {
		record.Attempts++
		if err := s.otps.Update(ctx, record); err != nil {
			return nil, "", err
		}
		return nil, "", &OTPMismatchError{Remaining: MaxOTPAttempts - record.Attempts}
	}

	record.Verified = true
	if err := s.otps.Update(ctx, record); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	patient := &Patient{
		Name:          req.Name,
		Email:         req.Email,
		PasswordHash:  string(hash),
		Age:           req.Age,
		Gender:        req.Gender,
		PhoneNumber:   req.PhoneNumber,
		EmailVerified: true,
	}
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, "", err
	}

	if err := s.otps.Delete(ctx, record.ID); err != nil {
		s.logger.Warn().Err(err).Str("email", req.Email).Msg("delete consumed otp")
	}

	s.mailer.SendAsync("patient-welcome", patient.Email, map[string]string{"name": patient.Name})

	token, err := s.tokens.Issue(patient.ID, auth.RolePatient, patient.Email)
	if err != nil {
		return nil, "", err
	}
	return patient, token, nil
}

// Login verifies patient credentials and returns the account with a bearer
// token. A login alert goes out in the background.
func (s *Service) Login(ctx context.Context, email, password string) (*Patient, string, error) {
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	patient, err := s.patients.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(patient.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	s.mailer.SendAsync("login-alert", patient.Email, map[string]string{
		"name": patient.Name,
		"time": s.now().Format("Monday, January 2, 2006 15:04 MST"),
	})

	token, err := s.tokens.Issue(patient.ID, auth.RolePatient, patient.Email)
	if err != nil {
		return nil, "", err
	}
	return patient, token, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Doctor --

type DoctorSignupRequest struct {
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Password          string   `json:"password"`
	PhoneNumber       string   `json:"phoneNumber"`
	LicenseNumber     string   `json:"licenseNumber"`
	Specialization    string   `json:"specialization"`
	Hospital          string   `json:"hospital"`
	Qualifications    []string `json:"qualifications"`
	YearsOfExperience int      `json:"yearsOfExperience"`
}

func (r *DoctorSignupRequest) validate() error {
	if r.Name == "" || r.Email == "" || r.Password == "" || r.PhoneNumber == "" ||
		r.LicenseNumber == "" || r.Specialization == "" || r.Hospital == "" {
		return fmt.Errorf("%w: name, email, password, phoneNumber, licenseNumber, specialization and hospital are required", ErrValidation)
	}
	if r.YearsOfExperience < 0 {
		return fmt.Errorf("%w: yearsOfExperience must not be negative", ErrValidation)
	}
	return nil
}

// DoctorSignup registers the deployment's single reviewer account. The seat is
// enforced by the storage layer: a concurrent second signup loses on the
// unique index, not on a count check.
func (s *Service) DoctorSignup(ctx context.Context, req *DoctorSignupRequest) (*Doctor, string, error) {
	if err := req.validate(); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	doctor := &Doctor{
		Name:              req.Name,
		Email:             req.Email,
		PasswordHash:      string(hash),
		PhoneNumber:       req.PhoneNumber,
		LicenseNumber:     req.LicenseNumber,
		Specialization:    req.Specialization,
		Hospital:          req.Hospital,
		Qualifications:    req.Qualifications,
		YearsOfExperience: req.YearsOfExperience,
		Role:              "head_doctor",
		IsActive:          true,
		IsVerified:        true,
	}
	if err := s.doctors.Create(ctx, doctor); err != nil {
		return nil, "", err
	}

	s.mailer.SendAsync("doctor-welcome", doctor.Email, map[string]string{
		"name":    doctor.Name,
		"license": doctor.LicenseNumber,
	})

	token, err := s.tokens.Issue(doctor.ID, auth.RoleDoctor, doctor.Email)
	if err != nil {
		return nil, "", err
	}
	return doctor, token, nil
}

func (s *Service) DoctorLogin(ctx context.Context, email, password string) (*Doctor, string, error) {
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	doctor, err := s.doctors.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(doctor.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := s.doctors.TouchLastLogin(ctx, doctor.ID); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctor.ID.String()).Msg("update last login")
	}

	s.mailer.SendAsync("login-alert", doctor.Email, map[string]string{
		"name": doctor.Name,
		"time": s.now().Format("Monday, January 2, 2006 15:04 MST"),
	})

	token, err := s.tokens.Issue(doctor.ID, auth.RoleDoctor, doctor.Email)
	if err != nil {
		return nil, "", err
	}
	return doctor, token, nil
}

func (s *Service) DoctorExists(ctx context.Context) (bool, error) {
	return s.doctors.Exists(ctx)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

type DoctorProfileUpdate struct {
	Name           string   `json:"name"`
	PhoneNumber    string   `json:"phoneNumber"`
	Hospital       string   `json:"hospital"`
	Qualifications []string `json:"qualifications"`
}

// UpdateDoctorProfile applies the contact fields of the reviewer account.
// Omitted fields keep their stored values; credentials stay immutable here.
func (s *Service) UpdateDoctorProfile(ctx context.Context, id uuid.UUID, req *DoctorProfileUpdate) (*Doctor, error) {
	doctor, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		doctor.Name = req.Name
	}
	if req.PhoneNumber != "" {
		doctor.PhoneNumber = req.PhoneNumber
	}
	if req.Hospital != "" {
		doctor.Hospital = req.Hospital
	}
	if req.Qualifications != nil {
		doctor.Qualifications = req.Qualifications
	}

	if err := s.doctors.Update(ctx, doctor); err != nil {
		return nil, err
	}
	return doctor, nil
}
