package screening

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/deeptb/api/internal/platform/auth"
	"github.com/deeptb/api/internal/platform/blobstore"
)

func newScreeningServer(t *testing.T, classifier Classifier) (*echo.Echo, *auth.TokenIssuer, *mockRepo) {
	t.Helper()
	repo := newMockRepo()
	blobs := blobstore.NewMemoryStore("https://blobs.test")
	svc := NewService(repo, blobs, classifier, zerolog.Nop())
	tokens := auth.NewTokenIssuer("test-secret")

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api"), auth.Middleware(tokens))
	return e, tokens, repo
}

func bearerFor(t *testing.T, tokens *auth.TokenIssuer, role string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	token, err := tokens.Issue(id, role, "someone@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return id, token
}

func multipartImage(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("multipart: %v", err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestPredictEndpoint(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.82, ThresholdUsed: 0.5}}
	e, tokens, _ := newScreeningServer(t, classifier)
	_, token := bearerFor(t, tokens, auth.RolePatient)

	body, contentType := multipartImage(t, "file", "scan.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	for _, want := range []string{`"label":"TB"`, `"confidence":0.82`, `"raw_prediction":0.82`, `"resultId"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("body missing %s: %s", want, rec.Body)
		}
	}
}

func TestPredictEndpointDuplicate(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, repo := newScreeningServer(t, classifier)
	patientID, token := bearerFor(t, tokens, auth.RolePatient)

	existing := &Result{PatientID: patientID, Label: LabelNegative}
	repo.Create(nil, existing)

	body, contentType := multipartImage(t, "file", "scan.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429; body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), existing.ID.String()) {
		t.Errorf("response should carry the blocking result id: %s", rec.Body)
	}
}

func TestDuplicateConflictWithoutKnownID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := mapScreeningError(c, &DuplicateResultError{}); err != nil {
		t.Fatalf("mapScreeningError: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "existingResultId") {
		t.Errorf("unknown blocking id must not render a nil existingResultId: %s", rec.Body)
	}

	msg := (&DuplicateResultError{}).Error()
	if strings.Contains(msg, uuid.Nil.String()) {
		t.Errorf("error text should not mention the nil id: %s", msg)
	}
}

func TestPredictEndpointBase64Body(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, _ := newScreeningServer(t, classifier)
	_, token := bearerFor(t, tokens, auth.RolePatient)

	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict",
		strings.NewReader(`{"image":"data:image/jpeg;base64,aW1hZ2UtYnl0ZXM="}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"label":"Normal"`) {
		t.Errorf("unexpected body: %s", rec.Body)
	}
}

func TestPredictEndpointNoImage(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, _ := newScreeningServer(t, classifier)
	_, token := bearerFor(t, tokens, auth.RolePatient)

	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredictEndpointRequiresPatient(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, _ := newScreeningServer(t, classifier)
	_, token := bearerFor(t, tokens, auth.RoleDoctor)

	body, contentType := multipartImage(t, "file", "scan.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/tb/predict", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHistoryAndCountEndpoints(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, repo := newScreeningServer(t, classifier)
	patientID, token := bearerFor(t, tokens, auth.RolePatient)
	repo.Create(nil, &Result{PatientID: patientID, Label: LabelNegative})

	req := httptest.NewRequest(http.MethodGet, "/api/result/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("history: status = %d, body = %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/result/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"totalReports":1`) {
		t.Fatalf("count: status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestPatientResultsEndpointDoctorOnly(t *testing.T) {
	classifier := &stubClassifier{pred: &Prediction{RawPrediction: 0.3, ThresholdUsed: 0.5}}
	e, tokens, repo := newScreeningServer(t, classifier)
	patientID, patientToken := bearerFor(t, tokens, auth.RolePatient)
	_, doctorToken := bearerFor(t, tokens, auth.RoleDoctor)
	repo.Create(nil, &Result{PatientID: patientID, Label: LabelPositive})

	req := httptest.NewRequest(http.MethodGet, "/api/result/patient/"+patientID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+patientToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient token: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/result/patient/"+patientID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+doctorToken)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), patientID.String()) {
		t.Fatalf("doctor token: status = %d, body = %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/result/patient/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+doctorToken)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", rec.Code)
	}
}
