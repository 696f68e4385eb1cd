// Package dispatch is the API process's client for the worker control
// surface. The API never touches the job store directly; everything goes
// over HTTP so the two processes can restart independently.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/messages"
)

// JobControl enqueues background work on the worker process.
type JobControl interface {
	EnqueueThumbnail(ctx context.Context, req ThumbnailRequest) (string, error)
	EnqueueDiskCleanup(ctx context.Context, paths []string, description string) (int, error)
}

// WorkerControl is the full client-side contract for the worker process:
// job submission plus the lifecycle and health operations the admin
// surface proxies through.
type WorkerControl interface {
	JobControl
	Health(ctx context.Context) (*Status, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	ReloadSettings(ctx context.Context) error
}

// Status mirrors the worker's health report.
type Status struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queueDepth"`
	InFlight   int64  `json:"inFlight"`
	Uptime     string `json:"uptime,omitempty"`
}

// ThumbnailRequest carries the fields the worker needs to generate
// thumbnails for a stored file.
type ThumbnailRequest struct {
	FileID       string `json:"fileId"`
	StoredName   string `json:"actualFilename"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
}

// UpstreamError marks failures reaching or talking to the worker, as
// opposed to the worker rejecting the request.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", messages.ErrJobSystemUnavailable, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client talks to the worker control server over HTTP. Requests carry a
// bounded timeout and are never retried; callers decide whether a failed
// dispatch is fatal.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

var _ WorkerControl = (*Client)(nil)

// NewClient returns a client for the worker at baseURL, e.g.
// "http://localhost:3335".
func NewClient(baseURL string, logger *logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (c *Client) EnqueueThumbnail(ctx context.Context, req ThumbnailRequest) (string, error) {
	resp, err := c.post(ctx, "/enqueue/thumbnail", req)
	if err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// EnqueueDiskCleanup submits the paths for deletion and returns how many were
// accepted. An empty path list never leaves the process.
func (c *Client) EnqueueDiskCleanup(ctx context.Context, paths []string, description string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	resp, err := c.post(ctx, "/enqueue/disk-cleanup", map[string]any{
		"filePaths":   paths,
		"description": description,
	})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Health fetches the worker's current state and queue gauges.
func (c *Client) Health(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("background jobs: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Err: fmt.Errorf("health check returned %s", resp.Status)}
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("unexpected health response: %w", err)}
	}
	return &status, nil
}

// Start asks the worker to begin accepting and executing jobs.
func (c *Client) Start(ctx context.Context) error { return c.lifecycle(ctx, "/start") }

// Stop asks the worker to drain in-flight jobs and stop.
func (c *Client) Stop(ctx context.Context) error { return c.lifecycle(ctx, "/stop") }

// Restart asks the worker to drain and resume with fresh settings.
func (c *Client) Restart(ctx context.Context) error { return c.lifecycle(ctx, "/restart") }

// ReloadSettings asks the worker to re-read its settings from the environment.
func (c *Client) ReloadSettings(ctx context.Context) error {
	return c.lifecycle(ctx, "/reload-settings")
}

func (c *Client) lifecycle(ctx context.Context, path string) error {
	_, err := c.post(ctx, path, struct{}{})
	return err
}

type controlResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Count   int    `json:"count"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, payload any) (*controlResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("background jobs: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("background jobs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	var parsed controlResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("unexpected response from %s: %w", path, err)}
	}

	if resp.StatusCode != http.StatusOK || !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("background jobs: %s", msg)
	}

	c.logger.Debug("worker call succeeded", "path", path, "jobId", parsed.JobID)
	return &parsed, nil
}
