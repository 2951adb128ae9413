package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUpstream marks failures of an external service (the model service, the
// object store) so handlers can separate them from caller mistakes and pass
// the upstream message through.
var ErrUpstream = errors.New("upstream service error")

// Prediction is the model service's answer for one image.
type Prediction struct {
	RawPrediction float64
	ThresholdUsed float64
	HeatmapURL    string
}

// Classifier scores a chest X-ray image.
type Classifier interface {
	Classify(ctx context.Context, filename, contentType string, image []byte) (*Prediction, error)
}

// HTTPClassifier talks to the inference endpoint over multipart POST.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// scoreField tolerates the model returning numbers as JSON strings.
type scoreField float64

func (f *scoreField) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = scoreField(v)
	return nil
}

type classifierResponse struct {
	RawPrediction *scoreField `json:"raw_prediction"`
	ThresholdUsed scoreField  `json:"threshold_used"`
	HeatmapURL    string      `json:"heatmap_url"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, filename, contentType string, image []byte) (*Prediction, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out classifierResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUpstream, err)
	}
	if out.RawPrediction == nil {
		return nil, fmt.Errorf("%w: response carries no raw_prediction", ErrUpstream)
	}

	threshold := float64(out.ThresholdUsed)
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	raw := float64(*out.RawPrediction)
	if raw < 0 || raw > 1 {
		return nil, fmt.Errorf("%w: raw_prediction %v outside [0,1]", ErrUpstream, raw)
	}

	return &Prediction{
		RawPrediction: raw,
		ThresholdUsed: threshold,
		HeatmapURL:    out.HeatmapURL,
	}, nil
}
