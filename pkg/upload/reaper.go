package upload

import (
	"context"
	"time"

	"github.com/beamhq/beam/pkg/dispatch"
	"github.com/beamhq/beam/pkg/logging"
)

// Reaper periodically removes upload sessions with no recent chunk activity
// and hands their temporary chunk directories to the worker for deletion.
type Reaper struct {
	service  *Service
	jobs     dispatch.JobControl
	idleFor  time.Duration
	interval time.Duration
	logger   *logging.Logger
}

// NewReaper returns a reaper sweeping every interval for sessions idle
// longer than idleFor.
func NewReaper(service *Service, jobs dispatch.JobControl, idleFor, interval time.Duration, logger *logging.Logger) *Reaper {
	return &Reaper{
		service:  service,
		jobs:     jobs,
		idleFor:  idleFor,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled. Call it from its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep removes idle sessions and enqueues cleanup of their chunk
// directories. A failed cleanup dispatch is logged and retried implicitly on
// the next sweep, since RemoveAll of an already-missing path is harmless.
func (r *Reaper) Sweep(ctx context.Context) int {
	idle := r.service.Registry().Idle(r.idleFor)
	if len(idle) == 0 {
		return 0
	}

	paths := make([]string, 0, len(idle))
	for _, info := range idle {
		if err := r.service.Registry().Remove(info.ID); err != nil {
			continue
		}
		paths = append(paths, r.service.ChunkDir(info.ID))
		r.logger.Info("reaped idle upload session",
			"session", info.ID, "filename", info.Filename,
			"received", info.ReceivedChunks, "total", info.TotalChunks)
	}

	if len(paths) > 0 {
		if _, err := r.jobs.EnqueueDiskCleanup(ctx, paths, "abandoned upload sessions"); err != nil {
			r.logger.Error("failed to enqueue reaper cleanup", "sessions", len(paths), "error", err)
		}
	}
	return len(paths)
}
