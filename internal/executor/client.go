// Package executor is the outbound side of the training-executor contract:
// a one-shot, HMAC-signed HTTP hand-off of a job specification.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mljobs/internal/apperrors"
	"mljobs/pkg/circuitbreaker"
)

// DispatchRequest is the hand-off payload. The job ID doubles as the
// idempotency key so the executor can deduplicate redelivered dispatches.
type DispatchRequest struct {
	JobID             string         `json:"jobId"`
	DatasetRef        string         `json:"datasetRef"`
	TargetColumn      string         `json:"targetColumn"`
	Algorithm         string         `json:"algorithm"`
	ProblemType       string         `json:"problemType"`
	Hyperparameters   map[string]any `json:"hyperparameters,omitempty"`
	SplitRatio        float64        `json:"splitRatio"`
	ResultCallbackRef string         `json:"resultCallbackRef"`
}

// Config for the dispatch client. Zero values use defaults.
type Config struct {
	Endpoint   string        // executor dispatch URL (required)
	Timeout    time.Duration // per-dispatch bound (default: 5s)
	SigningKey string        // HMAC key, empty disables signing
}

// ErrCircuitOpen is returned without a network attempt while the executor
// endpoint is considered down.
var ErrCircuitOpen = errors.New("executor circuit open")

// Client delivers dispatch requests to the training executor. Each Dispatch
// makes at most one outbound call; the circuit breaker turns a dead executor
// into an immediate delivery warning instead of a timeout burn per submit.
type Client struct {
	endpoint   string
	signingKey string
	client     *http.Client
	breaker    *circuitbreaker.Breaker
}

// New creates a dispatch client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		signingKey: cfg.SigningKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{}),
	}
}

// Dispatch hands the specification to the executor. A non-nil return is a
// delivery failure: the caller's job record stays pending and the error is
// surfaced as a warning, never as a training failure.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) error {
	if !c.breaker.Allow() {
		return apperrors.Delivery("executor.dispatch", ErrCircuitOpen)
	}

	body, err := MarshalSigned(req)
	if err != nil {
		return apperrors.Internal("executor.dispatch", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.Internal("executor.dispatch", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.JobID)
	if c.signingKey != "" {
		httpReq.Header.Set(SignatureHeader, Sign(body, c.signingKey))
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		return apperrors.Delivery("executor.dispatch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.breaker.RecordSuccess()
		return nil
	}

	c.breaker.RecordFailure()
	return apperrors.Delivery("executor.dispatch", &HTTPError{StatusCode: resp.StatusCode})
}

// BreakerState exposes the breaker state for readiness reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// HTTPError represents a non-2xx executor response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
