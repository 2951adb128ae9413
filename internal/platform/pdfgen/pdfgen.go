// Package pdfgen renders the downloadable screening report delivered to
// patients and reviewed by the doctor.
package pdfgen

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReportData carries everything the rendered document shows. Patient fields
// are the snapshot taken at report creation, not a live lookup.
type ReportData struct {
	PatientID     string
	PatientName   string
	PatientEmail  string
	PatientAge    int
	PatientGender string
	PatientPhone  string

	XrayURL    string
	HeatmapURL string

	Label         string
	RawScore      float64
	ThresholdUsed float64
	Positive      bool

	DoctorNotes string
	GeneratedAt time.Time
}

// Renderer writes report PDFs beneath a fixed directory.
type Renderer struct {
	dir string
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Render produces the report document and returns its filesystem path. The
// directory is created on first use. The positive/negative banner follows the
// result's own label so the document and the stored Result always agree.
func (r *Renderer) Render(data ReportData) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	name := fmt.Sprintf("report_%d.pdf", time.Now().UnixMilli())
	path := filepath.Join(r.dir, name)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("DeepTB Medical Report", false)
	pdf.SetAuthor("DeepTB Diagnostic System", false)
	pdf.AddPage()

	// Header band
	pdf.SetFillColor(44, 90, 160)
	pdf.Rect(0, 0, 210, 32, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(12, 8)
	pdf.Cell(100, 10, "DeepTB")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(12, 18)
	pdf.Cell(100, 4, "AI-Powered Tuberculosis Detection")
	pdf.SetXY(12, 23)
	pdf.Cell(100, 4, "Certified Medical Diagnostic System")

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(150, 8)
	pdf.Cell(50, 4, fmt.Sprintf("Report ID: DTB-%d", data.GeneratedAt.UnixMilli()))
	pdf.SetXY(150, 13)
	pdf.Cell(50, 4, data.GeneratedAt.Format("Jan 2, 2006 15:04 MST"))

	// Patient details
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(12, 42)
	pdf.Cell(100, 6, "Patient Information")
	pdf.SetFont("Helvetica", "", 10)

	rows := [][2]string{
		{"Patient ID", data.PatientID},
		{"Name", data.PatientName},
		{"Email", data.PatientEmail},
		{"Age", fmt.Sprintf("%d", data.PatientAge)},
		{"Gender", data.PatientGender},
		{"Phone", data.PatientPhone},
	}
	y := 50.0
	for _, row := range rows {
		pdf.SetXY(12, y)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(35, 6, row[0])
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(120, 6, row[1])
		y += 7
	}

	// Verdict banner
	tbChances := data.RawScore * 100
	verdict := "TUBERCULOSIS NEGATIVE"
	risk := "LOW"
	if data.Positive {
		verdict = "TUBERCULOSIS POSITIVE"
		risk = "HIGH"
		pdf.SetFillColor(255, 235, 238)
		pdf.SetTextColor(244, 67, 54)
	} else {
		pdf.SetFillColor(232, 245, 232)
		pdf.SetTextColor(76, 175, 80)
	}
	y += 6
	pdf.Rect(12, y, 186, 22, "F")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(16, y+4)
	pdf.Cell(160, 7, verdict)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(16, y+12)
	pdf.Cell(160, 6, fmt.Sprintf("Model score: %.2f%%  (threshold %.2f)  Risk level: %s", tbChances, data.ThresholdUsed, risk))
	y += 30

	// Imaging references
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(12, y)
	pdf.Cell(100, 6, "Imaging")
	y += 8
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(12, y)
	pdf.MultiCell(186, 5, "X-ray: "+data.XrayURL, "", "L", false)
	if data.HeatmapURL != "" {
		pdf.SetX(12)
		pdf.MultiCell(186, 5, "Heatmap: "+data.HeatmapURL, "", "L", false)
	}
	y = pdf.GetY() + 6

	// Doctor notes
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(12, y)
	pdf.Cell(100, 6, "Doctor Notes")
	y += 8
	pdf.SetFont("Helvetica", "", 10)
	notes := data.DoctorNotes
	if notes == "" {
		notes = "No additional notes."
	}
	pdf.SetXY(12, y)
	pdf.MultiCell(186, 5, notes, "", "L", false)

	// Footer
	pdf.SetY(-24)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(117, 117, 117)
	pdf.MultiCell(186, 4,
		"This report was generated by an AI screening system and is not a standalone diagnosis. "+
			"Consult a qualified physician for clinical interpretation.", "", "C", false)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write report pdf: %w", err)
	}
	return path, nil
}
