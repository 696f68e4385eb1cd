package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/dispatch"
	"github.com/beamhq/beam/pkg/logging"
)

func newAdminRouter(workerURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	client := dispatch.NewClient(workerURL, logging.NewTestLogger())
	registerWorkerAdmin(router.Group("/api/admin/worker"), client)
	return router
}

func TestWorkerAdminProxy(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(map[string]any{"status": "running", "queueDepth": 2})
		case "/start":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "worker is already running"})
		default:
			json.NewEncoder(w).Encode(map[string]any{"success": true})
		}
	}))
	defer worker.Close()

	router := newAdminRouter(worker.URL)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/admin/worker/health", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var status dispatch.Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "running", status.Status)
		assert.Equal(t, 2, status.QueueDepth)
	})

	t.Run("lifecycle success", func(t *testing.T) {
		for _, path := range []string{"/stop", "/restart", "/reload-settings"} {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/admin/worker"+path, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})

	t.Run("worker refusal surfaces as conflict", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/admin/worker/start", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "worker is already running")
	})
}

func TestWorkerAdminProxyUnreachable(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	worker.Close()

	router := newAdminRouter(worker.URL)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/admin/worker/restart", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "job system unavailable")
}
