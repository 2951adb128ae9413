// Package screening covers the X-ray prediction pipeline: upload to object
// storage, classification by the external model service, and the single
// unconsumed Result each patient may hold until a report consumes it.
package screening

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// LabelPositive and LabelNegative are the only values a Result label takes.
	LabelPositive = "TB"
	LabelNegative = "Normal"

	// DefaultThreshold applies when the model omits or zeroes threshold_used.
	DefaultThreshold = 0.5
)

// Result is the classifier output for one uploaded image. At most one Result
// exists per patient at any moment; report creation consumes and deletes it.
type Result struct {
	ID            uuid.UUID `json:"resultId"`
	PatientID     uuid.UUID `json:"patientId"`
	ImageURL      string    `json:"imageUrl"`
	HeatmapURL    string    `json:"heatmapUrl,omitempty"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	RawPrediction float64   `json:"raw_prediction"`
	ThresholdUsed float64   `json:"threshold_used"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Positive reports whether the stored label is the TB-positive one.
func (r *Result) Positive() bool {
	return r.Label == LabelPositive
}

// Normalize turns a raw model score into a label and confidence. A score
// strictly above the threshold is positive; confidence is the raw score for a
// positive and its complement for a negative, rounded to 6 decimal places.
// The raw score itself is rounded to 8 decimal places for audit stability.
func Normalize(raw, threshold float64) (label string, confidence, rawRounded float64) {
	if raw > threshold {
		label = LabelPositive
		confidence = raw
	} else {
		label = LabelNegative
		confidence = 1 - raw
	}
	return label, round(confidence, 6), round(raw, 8)
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
