// Package advisory asks the treatment-advice webhook for guidance on a
// detected disease.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/metrics"
)

// Advisor is the contract the workflow depends on.
type Advisor interface {
	Advise(ctx context.Context, crop, disease string) (string, error)
}

type Client struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Advisor = (*Client)(nil)

func NewClient(webhookURL string, timeout time.Duration) *Client {
	return &Client{
		webhookURL: webhookURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type adviceRequest struct {
	CropName    string `json:"crop_name"`
	DiseaseName string `json:"disease_name"`
}

// Advise posts {crop_name, disease_name} and returns the "answer" field, or
// the raw JSON body when the webhook answers in another shape.
func (c *Client) Advise(ctx context.Context, crop, disease string) (answer string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("advisory", err, time.Since(start)) }()

	if c.webhookURL == "" {
		return "", errs.Upstream("advisory: webhook not configured")
	}
	body, err := json.Marshal(adviceRequest{CropName: crop, DiseaseName: disease})
	if err != nil {
		return "", fmt.Errorf("advisory: marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("advisory: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: advisory: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: advisory: read body: %v", errs.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: advisory: status %d", errs.ErrUpstream, resp.StatusCode)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: advisory: decode: %v", errs.ErrUpstream, err)
	}
	if v, ok := decoded["answer"]; ok && v != nil {
		answer = strings.TrimSpace(fmt.Sprint(v))
	} else {
		answer = strings.TrimSpace(string(raw))
	}
	if answer == "" {
		return "", errs.Upstream("advisory: empty answer")
	}
	return answer, nil
}
