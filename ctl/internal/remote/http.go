package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to the REST API of rulstack-server.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the server at baseURL
// (e.g. http://localhost:3000).
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// predictResponse covers both success and error payloads, which share
// status 200.
type predictResponse struct {
	PredictedRUL *float64 `json:"predicted_rul"`
	Error        string   `json:"error"`
}

// Predict posts reading to /predict.
func (c *HTTPClient) Predict(ctx context.Context, reading json.RawMessage) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(reading))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post /predict: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("post /predict: unexpected status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return 0, &RejectedError{Message: out.Error}
	}
	if out.PredictedRUL == nil {
		return 0, errors.New("response has neither predicted_rul nor error")
	}
	return *out.PredictedRUL, nil
}

// MetricsURL returns the server's Prometheus endpoint.
func (c *HTTPClient) MetricsURL() string {
	return c.baseURL + "/metrics"
}

// HTTP returns the underlying HTTP client.
func (c *HTTPClient) HTTP() *http.Client {
	return c.httpClient
}

// Close is a no-op; it satisfies Predictor.
func (c *HTTPClient) Close() error { return nil }
