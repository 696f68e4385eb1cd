package upload

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beamhq/beam/pkg/dispatch"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/messages"
	"github.com/beamhq/beam/pkg/policy"
	"github.com/beamhq/beam/pkg/settings"
	"github.com/beamhq/beam/pkg/thumbs"
)

// Principal is the authenticated upload owner. Quota of 0 means unlimited.
type Principal struct {
	ID        string
	Quota     int64
	UsedQuota int64
}

// AuthFunc resolves the request's principal. Returning an error rejects the
// request with 401.
type AuthFunc func(c *gin.Context) (Principal, error)

// HeaderAuth trusts identity headers set by a fronting proxy. It is the
// default until a real session layer lands.
func HeaderAuth(c *gin.Context) (Principal, error) {
	id := c.GetHeader("X-Beam-User")
	if id == "" {
		return Principal{}, errors.New("missing X-Beam-User header")
	}
	quota, _ := strconv.ParseInt(c.GetHeader("X-Beam-Quota"), 10, 64)
	used, _ := strconv.ParseInt(c.GetHeader("X-Beam-Used-Quota"), 10, 64)
	return Principal{ID: id, Quota: quota, UsedQuota: used}, nil
}

// Handler exposes the chunked-upload protocol over HTTP.
type Handler struct {
	service  *Service
	settings *settings.Manager
	jobs     dispatch.JobControl
	auth     AuthFunc
	logger   *logging.Logger
}

// NewHandler wires the upload routes around a chunk service and the worker
// dispatch client.
func NewHandler(service *Service, mgr *settings.Manager, jobs dispatch.JobControl, auth AuthFunc, logger *logging.Logger) *Handler {
	if auth == nil {
		auth = HeaderAuth
	}
	return &Handler{
		service:  service,
		settings: mgr,
		jobs:     jobs,
		auth:     auth,
		logger:   logger,
	}
}

// Register attaches the upload routes to the given router group.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/upload/init", h.initUpload)
	r.POST("/upload/:id/chunk/:index", h.uploadChunk)
	r.GET("/upload/:id/status", h.uploadStatus)
	r.DELETE("/upload/:id", h.cancelUpload)
}

type initRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (h *Handler) initUpload(c *gin.Context) {
	principal, ok := h.authenticate(c)
	if !ok {
		return
	}

	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "filename is required"})
		return
	}

	cfg := h.settings.Current()
	pol := policy.Policy{MaxFileSize: cfg.MaxFileSize, Blacklist: cfg.Blacklist()}

	if err := pol.Admit(req.Filename, req.Size, principal.Quota, principal.UsedQuota); err != nil {
		var quotaErr *policy.QuotaError
		if errors.As(err, &quotaErr) {
			c.JSON(http.StatusForbidden, gin.H{
				"success":        false,
				"error":          quotaErr.Reason,
				"fileSize":       quotaErr.FileSize,
				"usedQuota":      quotaErr.UsedQuota,
				"totalQuota":     quotaErr.TotalQuota,
				"remainingQuota": quotaErr.RemainingQuota,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	info := h.service.Registry().Create(req.Filename, req.Size, cfg.ChunkSize, principal.ID)

	h.logger.Info("upload initialized",
		"session", info.ID, "filename", info.Filename,
		"size", info.Size, "totalChunks", info.TotalChunks, "owner", principal.ID)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"id":          info.ID,
		"chunkSize":   info.ChunkSize,
		"totalChunks": info.TotalChunks,
		"message":     messages.MsgUploadInitialized,
	})
}

func (h *Handler) uploadChunk(c *gin.Context) {
	if _, ok := h.authenticate(c); !ok {
		return
	}

	sessionID := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrChunkIndexInvalid})
		return
	}

	chunk, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(chunk) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrChunkDataEmpty})
		return
	}

	result, err := h.service.Ingest(sessionID, index, chunk)
	if err != nil {
		h.ingestError(c, sessionID, err)
		return
	}

	session := result.Session
	ack := gin.H{
		"success":        true,
		"uploadedChunks": session.ReceivedChunks,
		"totalChunks":    session.TotalChunks,
		"progress":       progress(session.ReceivedChunks, session.TotalChunks),
		"isComplete":     result.Artifact != nil,
	}

	switch result.State {
	case AlreadyReceived:
		ack["message"] = messages.MsgChunkAlreadyUploaded
	default:
		ack["message"] = messages.MsgChunkUploaded
	}

	if result.Artifact != nil {
		if !h.admitAssembled(c, result.Artifact) {
			return
		}
		ack["file"] = gin.H{
			"fileId":       result.Artifact.FileID,
			"filename":     result.Artifact.StoredName,
			"originalName": result.Artifact.OriginalName,
			"size":         result.Artifact.Size,
			"mimeType":     result.Artifact.MimeType,
		}
		h.dispatchThumbnail(result.Artifact)
	}

	c.JSON(http.StatusOK, ack)
}

// admitAssembled re-checks the extension blacklist against the sniffed
// content type. The declared filename passed admission at init time, but the
// bytes decide; a disguised blacklisted type is deleted and rejected.
func (h *Handler) admitAssembled(c *gin.Context, artifact *Artifact) bool {
	if artifact.DetectedExt == "" {
		return true
	}
	blacklist := h.settings.Current().Blacklist()
	if _, blocked := blacklist[artifact.DetectedExt]; !blocked {
		return true
	}

	h.logger.Warn("assembled file rejected by content sniff",
		"file", artifact.Path, "detectedExt", artifact.DetectedExt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.jobs.EnqueueDiskCleanup(ctx, []string{artifact.Path}, "blacklisted upload removed"); err != nil {
		h.logger.Error("failed to enqueue cleanup of rejected upload", "file", artifact.Path, "error", err)
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   messages.ErrBlockedContent,
	})
	return false
}

// dispatchThumbnail asks the worker for thumbnails when the sniffed type
// supports them. Dispatch failure is logged, not surfaced; the upload itself
// already succeeded.
func (h *Handler) dispatchThumbnail(artifact *Artifact) {
	if !thumbs.IsSupported(artifact.MimeType) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobID, err := h.jobs.EnqueueThumbnail(ctx, dispatch.ThumbnailRequest{
		FileID:       artifact.FileID,
		StoredName:   artifact.StoredName,
		MimeType:     artifact.MimeType,
		OriginalName: artifact.OriginalName,
	})
	if err != nil {
		h.logger.Error("failed to enqueue thumbnail", "file", artifact.StoredName, "error", err)
		return
	}
	h.logger.Debug("thumbnail enqueued", "file", artifact.StoredName, "jobId", jobID)
}

func (h *Handler) uploadStatus(c *gin.Context) {
	if _, ok := h.authenticate(c); !ok {
		return
	}

	sessionID := c.Param("id")
	info, err := h.service.Registry().Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": messages.ErrSessionNotFound})
		return
	}
	missing, err := h.service.Registry().Missing(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": messages.ErrSessionNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             info.ID,
		"filename":       info.Filename,
		"uploadedChunks": info.ReceivedChunks,
		"totalChunks":    info.TotalChunks,
		"progress":       progress(info.ReceivedChunks, info.TotalChunks),
		"missingChunks":  missing,
	})
}

func (h *Handler) cancelUpload(c *gin.Context) {
	if _, ok := h.authenticate(c); !ok {
		return
	}

	sessionID := c.Param("id")
	if err := h.service.Registry().Remove(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": messages.ErrSessionNotFound})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.jobs.EnqueueDiskCleanup(ctx, []string{h.service.ChunkDir(sessionID)}, "cancelled upload"); err != nil {
		h.logger.Error("failed to enqueue chunk cleanup", "session", sessionID, "error", err)
	}

	h.logger.Info("upload cancelled", "session", sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messages.MsgUploadCancelled})
}

func (h *Handler) authenticate(c *gin.Context) (Principal, bool) {
	principal, err := h.auth(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
		return Principal{}, false
	}
	return principal, true
}

// ingestError maps chunk ingestion failures onto HTTP statuses.
func (h *Handler) ingestError(c *gin.Context, sessionID string, err error) {
	var sizeErr *ChunkSizeError
	var mismatch *SizeMismatchError

	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": messages.ErrSessionNotFound})
	case errors.Is(err, ErrSessionFinished):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": messages.ErrSessionFinished})
	case errors.Is(err, ErrInvalidChunkIndex):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrChunkIndexInvalid})
	case errors.As(err, &sizeErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":  false,
			"error":    messages.ErrChunkSizeInvalid,
			"expected": sizeErr.Expected,
			"received": sizeErr.Received,
		})
	case errors.Is(err, ErrMissingChunk):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": messages.ErrTempFileMissing})
	case errors.As(err, &mismatch):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": messages.ErrSizeVerification})
	default:
		h.logger.Error("chunk ingestion failed", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": messages.ErrFinalizeUpload})
	}
}

func progress(received, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(received) / float64(total) * 100
}
