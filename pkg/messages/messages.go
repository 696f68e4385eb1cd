// Package messages centralizes log and API-response message literals so they
// can be reused across the code-base and kept consistent. Constants are
// grouped by functional area (Upload, Jobs, Worker, Dispatch).
package messages

// Log and API response message constants.
const (
	// Upload API
	ErrSessionNotFound      = "upload session not found"
	ErrSessionFinished      = "upload already completed"
	ErrChunkDataEmpty       = "chunk data cannot be empty"
	ErrChunkIndexInvalid    = "invalid chunk index"
	ErrChunkSizeInvalid     = "chunk size does not match expected size"
	ErrTempFileMissing      = "temporary chunk files not found"
	ErrSizeVerification     = "file size verification failed"
	ErrFinalizeUpload       = "failed to finalize file upload"
	MsgUploadInitialized    = "upload initialized successfully"
	MsgChunkAlreadyUploaded = "chunk already uploaded"
	MsgChunkUploaded        = "chunk uploaded successfully"
	MsgUploadCancelled      = "upload cancelled"
	ErrBlockedContent       = "file content type is not allowed"

	// Worker control
	ErrWorkerAlreadyRunning = "worker is already running"
	ErrWorkerNotRunning     = "worker is not running"
	ErrWorkerNotAccepting   = "worker is not accepting new jobs"
	MsgWorkerStarted        = "worker started successfully"
	MsgWorkerStopped        = "worker stopped successfully"
	MsgWorkerRestarted      = "worker restarted successfully"
	MsgSettingsReloaded     = "settings reloaded successfully"

	// Job enqueue
	ErrMissingJobFields     = "missing required fields"
	ErrUnsupportedFileType  = "unsupported file type"
	MsgThumbnailEnqueued    = "thumbnail enqueued"
	MsgDiskCleanupEnqueued  = "disk cleanup enqueued"

	// Dispatch client
	ErrJobSystemUnavailable = "job system unavailable"
)
