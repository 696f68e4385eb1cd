package worker

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/beamhq/beam/pkg/jobs"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/messages"
	"github.com/beamhq/beam/pkg/settings"
	"github.com/beamhq/beam/pkg/thumbs"
)

// Server is the worker's HTTP control surface: lifecycle endpoints consumed
// by the API process plus the job listing surface consumed by the admin UI.
type Server struct {
	controller *Controller
	queue      *jobs.Queue
	store      *jobs.Store
	settings   *settings.Manager
	logger     *logging.Logger
}

// NewServer wires the control surface around a controller and its queue.
func NewServer(controller *Controller, queue *jobs.Queue, store *jobs.Store, mgr *settings.Manager, logger *logging.Logger) *Server {
	return &Server{
		controller: controller,
		queue:      queue,
		store:      store,
		settings:   mgr,
		logger:     logger,
	}
}

// Router builds the gin engine with all control routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)
	router.POST("/start", s.start)
	router.POST("/stop", s.stop)
	router.POST("/restart", s.restart)
	router.POST("/reload-settings", s.reloadSettings)

	router.POST("/enqueue/thumbnail", s.enqueueThumbnail)
	router.POST("/enqueue/disk-cleanup", s.enqueueDiskCleanup)

	router.GET("/jobs", s.listJobs)
	router.GET("/jobs/:id", s.getJob)
	router.POST("/jobs/bulk-delete", s.bulkDeleteJobs)
	router.POST("/jobs/cleanup", s.cleanupJobs)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Health())
}

func (s *Server) start(c *gin.Context) {
	if err := s.controller.Start(); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": messages.ErrWorkerAlreadyRunning})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messages.MsgWorkerStarted})
}

func (s *Server) stop(c *gin.Context) {
	if err := s.controller.Stop(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": messages.ErrWorkerNotRunning})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messages.MsgWorkerStopped})
}

func (s *Server) restart(c *gin.Context) {
	if err := s.controller.Restart(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messages.MsgWorkerRestarted})
}

func (s *Server) reloadSettings(c *gin.Context) {
	if err := s.controller.ReloadSettings(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messages.MsgSettingsReloaded})
}

type enqueueThumbnailRequest struct {
	FileID       string `json:"fileId"`
	StoredName   string `json:"actualFilename"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
}

func (s *Server) enqueueThumbnail(c *gin.Context) {
	var req enqueueThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.FileID == "" || req.StoredName == "" || req.MimeType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrMissingJobFields})
		return
	}
	if !thumbs.IsSupported(req.MimeType) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrUnsupportedFileType})
		return
	}

	jobID, err := s.queue.Submit(jobs.ThumbnailPayload{
		FileID:       req.FileID,
		StoredName:   req.StoredName,
		MimeType:     req.MimeType,
		OriginalName: req.OriginalName,
	})
	if err != nil {
		s.submitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jobId": jobID, "message": messages.MsgThumbnailEnqueued})
}

type enqueueDiskCleanupRequest struct {
	FilePaths   []string `json:"filePaths"`
	Description string   `json:"description"`
}

func (s *Server) enqueueDiskCleanup(c *gin.Context) {
	var req enqueueDiskCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(req.FilePaths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messages.ErrMissingJobFields})
		return
	}

	jobID, err := s.queue.Submit(jobs.DiskCleanupPayload{
		Paths:       req.FilePaths,
		Description: req.Description,
	})
	if err != nil {
		s.submitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobId":   jobID,
		"count":   len(req.FilePaths),
		"message": messages.MsgDiskCleanupEnqueued,
	})
}

func (s *Server) submitError(c *gin.Context, err error) {
	if errors.Is(err, jobs.ErrNotAccepting) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": messages.ErrWorkerNotAccepting})
		return
	}
	s.logger.Error("job submission failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) listJobs(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	list, total, err := s.store.List(jobs.ListOptions{
		Offset:  offset,
		Limit:   limit,
		SortBy:  c.DefaultQuery("sortBy", "submittedAt"),
		SortDir: c.DefaultQuery("sortDir", "desc"),
	})
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            list,
		"total":           total,
		"offset":          offset,
		"limit":           limit,
		"hasNextPage":     offset+len(list) < total,
		"hasPreviousPage": offset > 0,
	})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

type bulkDeleteRequest struct {
	JobIDs []string `json:"jobIds"`
}

func (s *Server) bulkDeleteJobs(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(req.JobIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "jobIds is required"})
		return
	}

	count, err := s.store.BulkDelete(req.JobIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

type cleanupRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

func (s *Server) cleanupJobs(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.OlderThanDays <= 0 {
		req.OlderThanDays = s.settings.Current().JobRetentionDays
	}

	count, err := s.store.Cleanup(req.OlderThanDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	s.logger.Info("job records cleaned up", "olderThanDays", req.OlderThanDays, "count", count)
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}
