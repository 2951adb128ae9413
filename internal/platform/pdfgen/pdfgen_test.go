package pdfgen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleData() ReportData {
	return ReportData{
		PatientID:     "7d3f7c1e-1111-2222-3333-444455556666",
		PatientName:   "Asha Rao",
		PatientEmail:  "asha@example.com",
		PatientAge:    34,
		PatientGender: "female",
		PatientPhone:  "+91-9000000000",
		XrayURL:       "https://blobs.example/xrays/1_scan.jpg",
		Label:         "TB",
		RawScore:      0.82,
		ThresholdUsed: 0.5,
		Positive:      true,
		DoctorNotes:   "Cavitation in right upper lobe.",
		GeneratedAt:   time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestRenderWritesPDF(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)

	path, err := r.Render(sampleData())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q not under %q", path, dir)
	}
	if !strings.HasPrefix(filepath.Base(path), "report_") || !strings.HasSuffix(path, ".pdf") {
		t.Errorf("unexpected file name %q", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(content) == 0 || !strings.HasPrefix(string(content), "%PDF") {
		t.Error("output is not a PDF document")
	}
}

func TestRenderCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	r := NewRenderer(dir)

	if _, err := r.Render(sampleData()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("reports dir not created: %v", err)
	}
}

func TestRenderNegativeVerdict(t *testing.T) {
	r := NewRenderer(t.TempDir())
	data := sampleData()
	data.Label = "Normal"
	data.RawScore = 0.03
	data.Positive = false
	data.DoctorNotes = ""

	if _, err := r.Render(data); err != nil {
		t.Fatal(err)
	}
}
