// Package jobs implements the worker-side job queue: persistent job records,
// a bounded worker pool, and the two job kinds (thumbnail generation and
// disk cleanup) as a closed set of payload variants.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/beamhq/beam/pkg/files"
	"github.com/beamhq/beam/pkg/logging"
)

// Kind identifies a job variant. The set is closed; decodePayload is the
// single place a new kind must be registered, which keeps dispatch exhaustive.
type Kind string

const (
	KindThumbnail   Kind = "thumbnail_generation"
	KindDiskCleanup Kind = "disk_cleanup"
)

// Status is the lifecycle state of a job. Transitions only move forward:
// queued -> running -> succeeded | failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one unit of asynchronous work tracked to a terminal state. Records
// are retained after completion until purged by age or bulk delete.
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

// ThumbnailGenerator produces thumbnail/preview artifacts for a stored file.
// Implemented by thumbs.Generator; tests substitute a fake.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, storedName, mimeType string) (files.Metadata, error)
}

// Runtime carries the dependencies job payloads execute against.
type Runtime struct {
	Fs         afero.Fs
	Thumbnails ThumbnailGenerator
	Metadata   files.MetadataUpdater
	Logger     *logging.Logger
}

// Payload is the kind-specific input of a job, dispatched through a single
// execute capability. Payloads are immutable after submission.
type Payload interface {
	Kind() Kind
	Execute(ctx context.Context, rt *Runtime) error
}

// ThumbnailPayload asks for thumbnail/preview generation for one stored file.
type ThumbnailPayload struct {
	FileID       string `json:"fileId"`
	StoredName   string `json:"actualFilename"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName,omitempty"`
}

// Kind implements Payload.
func (p ThumbnailPayload) Kind() Kind { return KindThumbnail }

// Execute generates the artifacts and records the result through the
// metadata-update interface. Generation is idempotent: re-running overwrites
// the same deterministic output paths.
func (p ThumbnailPayload) Execute(ctx context.Context, rt *Runtime) error {
	meta, err := rt.Thumbnails.Generate(ctx, p.StoredName, p.MimeType)
	if err != nil {
		return fmt.Errorf("thumbnail generation for %s: %w", p.StoredName, err)
	}
	if err := rt.Metadata.UpdateFileMetadata(ctx, p.FileID, meta); err != nil {
		return fmt.Errorf("metadata update for file %s: %w", p.FileID, err)
	}
	rt.Logger.Info("thumbnail generated", "file", p.StoredName, "thumbnail", meta.Thumbnail, "preview", meta.Preview)
	return nil
}

// DiskCleanupPayload asks for deletion of a set of paths. Cleanup is
// best-effort: already-missing files are fine, and a partial failure still
// deletes what it can.
type DiskCleanupPayload struct {
	Paths       []string `json:"filePaths"`
	Description string   `json:"description,omitempty"`
}

// Kind implements Payload.
func (p DiskCleanupPayload) Kind() Kind { return KindDiskCleanup }

// Execute deletes each path, tolerating absent files. Paths may be files or
// whole directories (chunk temporaries). It fails only when a path exists but
// cannot be removed; the error names every failed path.
func (p DiskCleanupPayload) Execute(_ context.Context, rt *Runtime) error {
	var failed []string
	for _, path := range p.Paths {
		exists, err := afero.Exists(rt.Fs, path)
		if err == nil && !exists {
			rt.Logger.Debug("path already absent", "path", path)
			continue
		}
		if err := rt.Fs.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			rt.Logger.Warn("failed to delete path", "path", path, "error", err)
			failed = append(failed, path)
			continue
		}
		rt.Logger.Debug("deleted path", "path", path)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete %d of %d paths: %s",
			len(failed), len(p.Paths), strings.Join(failed, ", "))
	}
	return nil
}

// decodePayload reconstructs the typed payload for a stored job. Unknown
// kinds are corrupt records, not a dispatch fallthrough.
func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindThumbnail:
		var p ThumbnailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid thumbnail payload: %w", err)
		}
		return p, nil
	case KindDiskCleanup:
		var p DiskCleanupPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid disk cleanup payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}
