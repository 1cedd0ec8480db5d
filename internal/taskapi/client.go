// Package taskapi provides the HTTP client for the coordinator's task
// API: polling for the next job and submitting solved results.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Submission retry envelope: up to four attempts with a fixed delay,
// terminal on any 2xx or 4xx response.
const (
	submitAttempts = 4
	submitDelay    = 5 * time.Second
)

// Client is an HTTP client for one coordinator instance.
type Client struct {
	baseURL     string
	username    string
	password    string
	httpClient  *http.Client
	logger      *slog.Logger
	submitDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the default HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSubmitDelay overrides the fixed delay between result-submission
// attempts. Tests use this to avoid real sleeps.
func WithSubmitDelay(d time.Duration) Option {
	return func(c *Client) { c.submitDelay = d }
}

// NewClient creates a task API client for the coordinator at baseURL.
// All requests use HTTP basic auth.
func NewClient(baseURL, username, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      slog.Default(),
		submitDelay: submitDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TaskAPIError is returned when the coordinator responds with an
// unexpected status code.
type TaskAPIError struct {
	StatusCode int
	Message    string
}

func (e *TaskAPIError) Error() string {
	return fmt.Sprintf("task api: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports an authentication failure (401).
func (e *TaskAPIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// IsRetryable reports whether a result submission that got this
// response should be retried: 5xx is, 2xx/4xx are terminal.
func (e *TaskAPIError) IsRetryable() bool { return e.StatusCode >= 500 }

// NextJob polls GET /task/nextjob/<collection>[.<taskType>] for work.
// It returns the raw task payload on 200, (nil, nil) when the
// coordinator has no work (204), and a *TaskAPIError for 401 or any
// other unexpected status.
func (c *Client) NextJob(ctx context.Context, collection, taskType string) (json.RawMessage, error) {
	endpoint := "task/nextjob/" + collection
	if taskType != "" {
		endpoint += "." + taskType
	}

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task api: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("task api: GET %s: read: %w", endpoint, err)
		}
		return json.RawMessage(body), nil
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, &TaskAPIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
}

// SubmitResult posts a solved result to
// POST /task/result/<uuid>/<collection>. It retries up to four times
// with a fixed delay; any 2xx or 4xx response is terminal (a malformed
// report is surfaced, never re-sent), only network errors and 5xx
// responses are retried.
func (c *Client) SubmitResult(ctx context.Context, uuid, collection string, result any) error {
	endpoint := fmt.Sprintf("task/result/%s/%s", uuid, collection)
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("task api: marshal result: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.submitDelay):
			}
		}

		req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("task api: POST %s: %w", endpoint, err)
			c.logger.Error("network error posting results", "endpoint", endpoint, "error", err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if (resp.StatusCode >= 200 && resp.StatusCode < 300) || (resp.StatusCode >= 400 && resp.StatusCode < 500) {
			if resp.StatusCode >= 400 {
				c.logger.Warn("coordinator rejected result", "endpoint", endpoint, "status", resp.StatusCode)
				return &TaskAPIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
			}
			c.logger.Info("task resolved", "endpoint", endpoint, "status", resp.StatusCode)
			return nil
		}

		lastErr = &TaskAPIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		c.logger.Warn("failed to post results, trying again", "endpoint", endpoint, "status", resp.StatusCode)
	}
	return fmt.Errorf("task api: submission abandoned after %d attempts: %w", submitAttempts, lastErr)
}

// IsUnauthorized reports whether err is a 401 from the task API.
func IsUnauthorized(err error) bool {
	var apiErr *TaskAPIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	return req, nil
}
