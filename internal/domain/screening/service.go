package screening

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deeptb/api/internal/platform/blobstore"
)

// ErrValidation marks request-shaped failures so handlers can answer 400
// without sniffing error text.
var ErrValidation = errors.New("validation failed")

type Service struct {
	results    Repository
	blobs      blobstore.Store
	classifier Classifier
	logger     zerolog.Logger
}

func NewService(results Repository, blobs blobstore.Store, classifier Classifier, logger zerolog.Logger) *Service {
	return &Service{results: results, blobs: blobs, classifier: classifier, logger: logger}
}

// PredictInput is one image submitted for classification.
type PredictInput struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DecodeBase64Image decodes a base64 payload, tolerating a data-URL prefix.
func DecodeBase64Image(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty image payload", ErrValidation)
	}
	if idx := strings.Index(s, ";base64,"); idx >= 0 && strings.HasPrefix(s, "data:image/") {
		s = s[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image data", ErrValidation)
	}
	return data, nil
}

// Predict uploads the image, scores it against the model service, normalizes
// the score, and records the Result. A patient with an unconsumed Result is
// rejected before any upstream work; the storage-level unique constraint
// backs the same rule against concurrent calls.
func (s *Service) Predict(ctx context.Context, patientID uuid.UUID, in *PredictInput) (*Result, error) {
	if err := blobstore.ValidateObject(in.ContentType, in.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if existing, err := s.results.GetLatestByPatient(ctx, patientID); err == nil {
		return nil, &DuplicateResultError{ExistingID: existing.ID}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key := blobstore.ObjectKey("xrays", in.FileName)
	imageURL, err := s.blobs.Put(ctx, key, in.ContentType, in.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: store image: %v", ErrUpstream, err)
	}

	pred, err := s.classifier.Classify(ctx, in.FileName, in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}

	label, confidence, raw := Normalize(pred.RawPrediction, pred.ThresholdUsed)

	result := &Result{
		PatientID:     patientID,
		ImageURL:      imageURL,
		HeatmapURL:    pred.HeatmapURL,
		Label:         label,
		Confidence:    confidence,
		RawPrediction: raw,
		ThresholdUsed: pred.ThresholdUsed,
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("result_id", result.ID.String()).
		Str("label", label).
		Float64("confidence", confidence).
		Msg("prediction recorded")

	return result, nil
}

// History returns the patient's results, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*Result, error) {
	return s.results.ListByPatient(ctx, patientID)
}

// Count returns how many results the patient currently holds.
func (s *Service) Count(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.results.CountByPatient(ctx, patientID)
}
