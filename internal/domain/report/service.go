package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deeptb/api/internal/domain/identity"
	"github.com/deeptb/api/internal/domain/screening"
	"github.com/deeptb/api/internal/platform/notification"
	"github.com/deeptb/api/internal/platform/pdfgen"
)

var (
	// ErrValidation marks request-shaped failures so handlers can answer 400
	// without sniffing error text.
	ErrValidation = errors.New("validation failed")

	ErrPatientNotFound = errors.New("patient not found")
	ErrNoResult        = errors.New("no screening result found for this patient")
	ErrResultMismatch  = errors.New("result does not belong to this patient")

	// ErrNotReviewable rejects review of a report that is not waiting for the
	// doctor. Re-reviewing an approved or rejected report would silently
	// rewrite the audit trail.
	ErrNotReviewable = errors.New("report is not pending doctor review")

	// ErrUpstream marks failures of an external service (mail delivery) whose
	// message should reach the client.
	ErrUpstream = errors.New("upstream service error")
)

// PatientDirectory is the slice of the identity store this package needs.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// ResultSource is the slice of the screening store this package needs.
type ResultSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*screening.Result, error)
	GetLatestByPatient(ctx context.Context, patientID uuid.UUID) (*screening.Result, error)
}

type Service struct {
	reports  Repository
	patients PatientDirectory
	results  ResultSource
	pdf      *pdfgen.Renderer
	mailer   *notification.Mailer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(reports Repository, patients PatientDirectory, results ResultSource,
	pdf *pdfgen.Renderer, mailer *notification.Mailer, logger zerolog.Logger) *Service {
	return &Service{
		reports:  reports,
		patients: patients,
		results:  results,
		pdf:      pdf,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateInput names the patient, optionally pins a specific Result, and says
// whether the consultation was paid for.
type CreateInput struct {
	PatientID        uuid.UUID  `json:"patientId"`
	ResultID         *uuid.UUID `json:"resultId,omitempty"`
	DoctorNotes      string     `json:"doctorNotes"`
	ConsultationPaid bool       `json:"consultationPaid"`
}

// Create turns the patient's Result into a durable Report: render the PDF,
// insert the report and delete the Result in one transaction, then email the
// PDF to the patient when the consultation was not paid. A paid report enters
// the doctor's review queue instead.
func (s *Service) Create(ctx context.Context, in *CreateInput) (*Report, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patientId is required", ErrValidation)
	}

	patient, err := s.patients.GetByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	var result *screening.Result
	if in.ResultID != nil {
		result, err = s.results.GetByID(ctx, *in.ResultID)
		if err != nil {
			if errors.Is(err, screening.ErrNotFound) {
				return nil, ErrNoResult
			}
			return nil, err
		}
		if result.PatientID != in.PatientID {
			return nil, ErrResultMismatch
		}
	} else {
		result, err = s.results.GetLatestByPatient(ctx, in.PatientID)
		if err != nil {
			if errors.Is(err, screening.ErrNotFound) {
				return nil, ErrNoResult
			}
			return nil, err
		}
	}

	pdfPath, err := s.pdf.Render(pdfgen.ReportData{
		PatientID:     patient.ID.String(),
		PatientName:   patient.Name,
		PatientEmail:  patient.Email,
		PatientAge:    patient.Age,
		PatientGender: patient.Gender,
		PatientPhone:  patient.PhoneNumber,
		XrayURL:       result.ImageURL,
		HeatmapURL:    result.HeatmapURL,
		Label:         result.Label,
		RawScore:      result.RawPrediction,
		ThresholdUsed: result.ThresholdUsed,
		Positive:      result.Positive(),
		DoctorNotes:   in.DoctorNotes,
		GeneratedAt:   s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}

	status := StatusFreeGenerated
	if in.ConsultationPaid {
		status = StatusPendingDoctor
	}

	rep := &Report{
		PatientID:        patient.ID,
		PatientName:      patient.Name,
		PatientEmail:     patient.Email,
		XrayURL:          result.ImageURL,
		HeatmapURL:       result.HeatmapURL,
		Label:            result.Label,
		RawPrediction:    result.RawPrediction,
		DoctorNotes:      in.DoctorNotes,
		PDFPath:          pdfPath,
		Status:           status,
		OriginalResultID: result.ID,
	}
	if err := s.reports.CreateConsumingResult(ctx, rep, result.ID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("patient_id", patient.ID.String()).
		Str("status", string(status)).
		Str("consumed_result_id", result.ID.String()).
		Msg("report created")

	if !in.ConsultationPaid {
		// The report is already durable; only the delivery failed.
		if err := s.emailWithPDF(ctx, "report-ready", rep, nil); err != nil {
			return nil, fmt.Errorf("%w: email report: %v", ErrUpstream, err)
		}
	}

	return rep, nil
}

// Review records the doctor's verdict on a pending report and notifies the
// patient. Notes overwrite the existing ones only when non-empty.
func (s *Service) Review(ctx context.Context, reportID uuid.UUID, approve bool, notes string) (*Report, error) {
	rep, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep.Status != StatusPendingDoctor {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReviewable, rep.Status)
	}

	if approve {
		rep.Status = StatusApproved
	} else {
		rep.Status = StatusRejected
	}
	if notes != "" {
		rep.DoctorNotes = notes
	}
	if err := s.reports.Update(ctx, rep); err != nil {
		return nil, err
	}

	decision := "Approved"
	if !approve {
		decision = "Rejected"
	}
	if err := s.emailWithPDF(ctx, "report-reviewed", rep, map[string]string{"decision": decision}); err != nil {
		s.logger.Warn().Err(err).Str("report_id", rep.ID.String()).Msg("review notification failed")
	}

	return rep, nil
}

func (s *Service) emailWithPDF(ctx context.Context, templateID string, rep *Report, extra map[string]string) error {
	content, err := os.ReadFile(rep.PDFPath)
	if err != nil {
		return fmt.Errorf("read report pdf: %w", err)
	}
	data := map[string]string{"name": rep.PatientName}
	for k, v := range extra {
		data[k] = v
	}
	return s.mailer.Send(ctx, templateID, rep.PatientEmail, data,
		notification.Attachment{Name: filepath.Base(rep.PDFPath), Content: content})
}

// HistoryStats breaks a patient's reports down by lifecycle status.
type HistoryStats struct {
	TotalReports  int `json:"totalReports"`
	Pending       int `json:"pending"`
	Approved      int `json:"approved"`
	Rejected      int `json:"rejected"`
	FreeGenerated int `json:"freeGenerated"`
}

// PatientHistory returns the patient's profile alongside every report ever
// issued for them, newest first.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID) (*identity.Patient, []*Report, HistoryStats, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, HistoryStats{}, ErrPatientNotFound
		}
		return nil, nil, HistoryStats{}, err
	}

	reports, err := s.reports.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, nil, HistoryStats{}, err
	}

	stats := HistoryStats{TotalReports: len(reports)}
	for _, rep := range reports {
		switch rep.Status {
		case StatusPendingDoctor:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		case StatusFreeGenerated:
			stats.FreeGenerated++
		}
	}
	return patient, reports, stats, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Report, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.reports.ListByStatus(ctx, status)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.reports.Count(ctx)
}
