package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/dispatch"
	"github.com/beamhq/beam/pkg/logging"
)

func TestEnqueueThumbnail(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enqueue/thumbnail", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "jobId": "job-1"})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	jobID, err := client.EnqueueThumbnail(context.Background(), dispatch.ThumbnailRequest{
		FileID:     "f1",
		StoredName: "slug.png",
		MimeType:   "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, "f1", got["fileId"])
	assert.Equal(t, "slug.png", got["actualFilename"])
}

func TestEnqueueDiskCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enqueue/disk-cleanup", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "jobId": "job-2", "count": 2})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	count, err := client.EnqueueDiskCleanup(context.Background(), []string{"/a", "/b"}, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEnqueueDiskCleanupEmptyIsNoop(t *testing.T) {
	// No server at all; an empty path list never leaves the process.
	client := dispatch.NewClient("http://127.0.0.1:0", logging.NewTestLogger())
	count, err := client.EnqueueDiskCleanup(context.Background(), nil, "test")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "running", "queueDepth": 3, "inFlight": 1, "uptime": "5s",
		})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 3, status.QueueDepth)
	assert.Equal(t, int64(1), status.InFlight)
	assert.Equal(t, "5s", status.Uptime)
}

func TestHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	_, err := client.Health(context.Background())
	require.Error(t, err)

	var upstream *dispatch.UpstreamError
	assert.True(t, errors.As(err, &upstream))
}

func TestLifecycleCalls(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "ok"})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	ctx := context.Background()
	require.NoError(t, client.Start(ctx))
	require.NoError(t, client.Stop(ctx))
	require.NoError(t, client.Restart(ctx))
	require.NoError(t, client.ReloadSettings(ctx))
	assert.Equal(t, []string{"/start", "/stop", "/restart", "/reload-settings"}, paths)
}

func TestLifecycleConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "worker is not running"})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	err := client.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker is not running")

	// The worker answered; this is not an upstream failure.
	var upstream *dispatch.UpstreamError
	assert.False(t, errors.As(err, &upstream))
}

func TestWorkerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "worker is not accepting new jobs"})
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	_, err := client.EnqueueThumbnail(context.Background(), dispatch.ThumbnailRequest{FileID: "f1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker is not accepting new jobs")

	// A rejection is not an upstream failure.
	var upstream *dispatch.UpstreamError
	assert.False(t, errors.As(err, &upstream))
}

func TestWorkerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Down before the first request.

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	_, err := client.EnqueueThumbnail(context.Background(), dispatch.ThumbnailRequest{FileID: "f1"})
	require.Error(t, err)

	var upstream *dispatch.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Contains(t, err.Error(), "job system unavailable")
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	client := dispatch.NewClient(srv.URL, logging.NewTestLogger())
	_, err := client.EnqueueThumbnail(context.Background(), dispatch.ThumbnailRequest{FileID: "f1"})
	require.Error(t, err)

	var upstream *dispatch.UpstreamError
	assert.True(t, errors.As(err, &upstream))
}
