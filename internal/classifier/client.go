// Package classifier calls the crop-disease ML service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/metrics"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

type TopK struct {
	Label string   `json:"label"`
	Score *float64 `json:"score,omitempty"`
}

// Prediction mirrors the ML service response. On failure only Error (and
// possibly Details) is set.
type Prediction struct {
	Crop       string          `json:"crop,omitempty"`
	Model      string          `json:"model,omitempty"`
	Prediction *string         `json:"prediction,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	TopK       []TopK          `json:"topk,omitempty"`
	LeafGate   json.RawMessage `json:"leaf_gate,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func ErrorPrediction(msg string) *Prediction {
	return &Prediction{Error: msg}
}

// Label is the top-1 label, "Unknown" when the service gave none.
func (p *Prediction) Label() string {
	if p == nil || p.Prediction == nil || strings.TrimSpace(*p.Prediction) == "" {
		return "Unknown"
	}
	return *p.Prediction
}

// Classifier is the contract the workflow depends on.
type Classifier interface {
	Classify(ctx context.Context, crop string, image *model.Upload) (*Prediction, error)
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Classifier = (*Client)(nil)

// NewClient returns a client for baseURL. Each call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Classify posts crop and image as multipart form data to /predict. Every
// failure, including an error reported in the response body, wraps
// errs.ErrUpstream; in the latter case the decoded prediction is returned too.
func (c *Client) Classify(ctx context.Context, crop string, image *model.Upload) (pred *Prediction, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("classifier", err, time.Since(start)) }()

	if c.baseURL == "" {
		return nil, errs.Upstream("classifier: service not configured")
	}
	if image.Empty() {
		return nil, errs.Validation("image is required")
	}
	body, contentType, err := multipartBody(crop, image)
	if err != nil {
		return nil, fmt.Errorf("classifier: build body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("classifier: new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: classifier: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: classifier: read body: %v", errs.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: classifier: status %d", errs.ErrUpstream, resp.StatusCode)
	}
	var p Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: classifier: decode: %v", errs.ErrUpstream, err)
	}
	if p.Error != "" {
		return &p, errs.Upstream(p.Error)
	}
	return &p, nil
}

func multipartBody(crop string, image *model.Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("crop", crop); err != nil {
		return nil, "", err
	}
	filename := image.Filename
	if filename == "" {
		filename = "leaf.jpg"
	}
	ct := image.ContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	if c.baseURL == "" {
		return errs.Upstream("classifier: service not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: classifier: %v", errs.ErrUpstream, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: classifier: health status %d", errs.ErrUpstream, resp.StatusCode)
	}
	return nil
}
