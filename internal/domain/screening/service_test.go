package screening

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deeptb/api/internal/platform/blobstore"
)

type mockRepo struct {
	results map[uuid.UUID]*Result
}

func newMockRepo() *mockRepo {
	return &mockRepo{results: make(map[uuid.UUID]*Result)}
}

func (m *mockRepo) Create(_ context.Context, r *Result) error {
	for _, existing := range m.results {
		if existing.PatientID == r.PatientID {
			return &DuplicateResultError{ExistingID: existing.ID}
		}
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.results[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Result, error) {
	r, ok := m.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRepo) GetLatestByPatient(_ context.Context, patientID uuid.UUID) (*Result, error) {
	var latest *Result
	for _, r := range m.results {
		if r.PatientID != patientID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Result, error) {
	var out []*Result
	for _, r := range m.results {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepo) CountByPatient(_ context.Context, patientID uuid.UUID) (int, error) {
	n := 0
	for _, r := range m.results {
		if r.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	if _, ok := m.results[id]; !ok {
		return ErrNotFound
	}
	delete(m.results, id)
	return nil
}

type stubClassifier struct {
	pred  *Prediction
	err   error
	calls int
}

func (s *stubClassifier) Classify(_ context.Context, _, _ string, _ []byte) (*Prediction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.pred, nil
}

func newPredictService(classifier Classifier) (*Service, *mockRepo, *blobstore.MemoryStore) {
	repo := newMockRepo()
	blobs := blobstore.NewMemoryStore("https://blobs.test")
	svc := NewService(repo, blobs, classifier, zerolog.Nop())
	return svc, repo, blobs
}

func pngInput() *PredictInput {
	return &PredictInput{FileName: "scan.png", ContentType: "image/png", Data: []byte("png-bytes")}
}

func TestPredictNegative(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	svc, _, blobs := newPredictService(classifier)
	patientID := uuid.New()

	result, err := svc.Predict(context.Background(), patientID, pngInput())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Label != LabelNegative {
		t.Errorf("label = %q, want %q", result.Label, LabelNegative)
	}
	if result.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", result.Confidence)
	}
	if result.PatientID != patientID {
		t.Error("result not attributed to patient")
	}
	if !strings.Contains(result.ImageURL, "xrays/") {
		t.Errorf("image url %q missing xrays prefix", result.ImageURL)
	}
	if blobs.Len() != 1 {
		t.Errorf("stored objects = %d, want 1", blobs.Len())
	}
}

func TestPredictPositive(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.82, ThresholdUsed: 0.5}}
	svc, _, _ := newPredictService(classifier)

	result, err := svc.Predict(context.Background(), uuid.New(), pngInput())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Label != LabelPositive {
		t.Errorf("label = %q, want %q", result.Label, LabelPositive)
	}
	if result.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", result.Confidence)
	}
}

func TestPredictDuplicateGate(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	svc, repo, _ := newPredictService(classifier)
	patientID := uuid.New()

	first, err := svc.Predict(context.Background(), patientID, pngInput())
	if err != nil {
		t.Fatalf("first Predict: %v", err)
	}

	_, err = svc.Predict(context.Background(), patientID, pngInput())
	var dup *DuplicateResultError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateResultError", err)
	}
	if dup.ExistingID != first.ID {
		t.Errorf("existing id = %s, want %s", dup.ExistingID, first.ID)
	}
	if len(repo.results) != 1 {
		t.Errorf("results stored = %d, want 1", len(repo.results))
	}
	if classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1 (gate must fire before upstream work)", classifier.calls)
	}
}

func TestPredictEmptyImage(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	svc, _, blobs := newPredictService(classifier)

	_, err := svc.Predict(context.Background(), uuid.New(), &PredictInput{
		FileName: "scan.png", ContentType: "image/png", Data: nil,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if classifier.calls != 0 {
		t.Error("classifier must not be called for an empty buffer")
	}
	if blobs.Len() != 0 {
		t.Error("nothing should be uploaded for an empty buffer")
	}
}

func TestPredictRejectsNonImage(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	svc, _, _ := newPredictService(classifier)

	_, err := svc.Predict(context.Background(), uuid.New(), &PredictInput{
		FileName: "notes.pdf", ContentType: "application/pdf", Data: []byte("%PDF"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPredictClassifierFailure(t *testing.T) {
	classifier := &stubClassifier{err: ErrUpstream}
	svc, repo, _ := newPredictService(classifier)

	_, err := svc.Predict(context.Background(), uuid.New(), pngInput())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(repo.results) != 0 {
		t.Error("no result may be stored when classification fails")
	}
}

type failingStore struct {
	err error
}

func (f *failingStore) Put(_ context.Context, _, _ string, _ []byte) (string, error) {
	return "", f.err
}

func (f *failingStore) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, f.err
}

func TestPredictStorageFailure(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	repo := newMockRepo()
	blobs := &failingStore{err: errors.New("bucket unreachable")}
	svc := NewService(repo, blobs, classifier, zerolog.Nop())

	_, err := svc.Predict(context.Background(), uuid.New(), pngInput())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if !strings.Contains(err.Error(), "bucket unreachable") {
		t.Errorf("storage message not passed through: %v", err)
	}
	if classifier.calls != 0 {
		t.Error("classifier must not be called when the upload fails")
	}
	if len(repo.results) != 0 {
		t.Error("no result may be stored when the upload fails")
	}
}

func TestDecodeBase64Image(t *testing.T) {
	plain := "aGVsbG8="
	data, err := DecodeBase64Image(plain)
	if err != nil || string(data) != "hello" {
		t.Fatalf("plain decode: %q, %v", data, err)
	}

	data, err = DecodeBase64Image("data:image/png;base64," + plain)
	if err != nil || string(data) != "hello" {
		t.Fatalf("data-url decode: %q, %v", data, err)
	}

	if _, err := DecodeBase64Image(""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty payload: err = %v, want ErrValidation", err)
	}
	if _, err := DecodeBase64Image("!!not-base64!!"); !errors.Is(err, ErrValidation) {
		t.Errorf("garbage payload: err = %v, want ErrValidation", err)
	}
}
