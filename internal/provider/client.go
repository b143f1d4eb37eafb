// Package provider talks to the browser-automation provider: it issues the
// streaming run request and decodes the provider's event schema.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/tracing"
)

// RunPath is the provider's streaming automation endpoint.
const RunPath = "/v1/automation/run-sse"

// maxErrorBody bounds how much of a failed response is kept as diagnostic text.
const maxErrorBody = 64 * 1024

// RunRequest is the body of one automation run.
type RunRequest struct {
	URL     string     `json:"url"`
	Goal    string     `json:"goal"`
	Options RunOptions `json:"options"`
}

// RunOptions controls how the provider executes a run.
type RunOptions struct {
	Mode      string `json:"mode"`
	TimeoutMS int    `json:"timeout"`
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.StatusCode)))
	}
	return fmt.Sprintf("TinyFish API error: %d %s - %s", e.StatusCode, text, e.Body)
}

// Runner starts automation runs. *Client implements it.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (io.ReadCloser, error)
}

// Client manages HTTP communication with the automation provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a provider client. connectTimeout bounds the wait for
// response headers only; the streamed body is bounded by the caller's context.
func NewClient(baseURL, apiKey string, connectTimeout time.Duration, log *logger.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = connectTimeout
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		// No client timeout: the response is a long-lived stream.
		httpClient: &http.Client{Transport: transport},
		logger:     log.WithFields(zap.String("component", "provider-client")),
	}
}

// Run issues one streaming automation request. On success the caller owns the
// returned body and must close it. A non-2xx response yields *StatusError
// carrying the response body.
func (c *Client) Run(ctx context.Context, runReq RunRequest) (io.ReadCloser, error) {
	url := c.baseURL + RunPath
	ctx, span := tracing.TraceProviderRequest(ctx, url, runReq.Options.Mode)
	defer span.End()

	body, err := json.Marshal(runReq)
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceProviderResponse(span, 0, err)
		c.logger.Error("TinyFish API request failed", zap.Error(err))
		return nil, fmt.Errorf("TinyFish API request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
		tracing.TraceProviderResponse(span, resp.StatusCode, statusErr)
		c.logger.Error("TinyFish API error response",
			zap.Int("status", resp.StatusCode),
			zap.String("body", statusErr.Body))
		return nil, statusErr
	}

	tracing.TraceProviderResponse(span, resp.StatusCode, nil)
	c.logger.Debug("TinyFish stream connected", zap.Int("status", resp.StatusCode))
	return resp.Body, nil
}
