// Package report holds the durable, doctor-auditable record produced from a
// consumed screening Result, and the review workflow over it.
package report

import (
	"time"

	"github.com/google/uuid"
)

// Status is the report lifecycle state. A free report is final on creation;
// a paid one waits for the doctor's verdict.
type Status string

const (
	StatusFreeGenerated Status = "free_generated"
	StatusPendingDoctor Status = "pending_doctor"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusFreeGenerated, StatusPendingDoctor, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Report snapshots the patient's name and email at creation time so the
// record stays readable even if the account changes later. OriginalResultID
// is a historical trace; the Result row itself is deleted when the report is
// created.
type Report struct {
	ID               uuid.UUID `json:"reportId"`
	PatientID        uuid.UUID `json:"patientId"`
	PatientName      string    `json:"patientName"`
	PatientEmail     string    `json:"patientEmail"`
	XrayURL          string    `json:"xrayUrl"`
	HeatmapURL       string    `json:"heatmapUrl,omitempty"`
	Label            string    `json:"label"`
	RawPrediction    float64   `json:"raw_prediction"`
	DoctorNotes      string    `json:"doctorNotes"`
	PDFPath          string    `json:"pdfUrl"`
	Status           Status    `json:"status"`
	OriginalResultID uuid.UUID `json:"originalResultId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
