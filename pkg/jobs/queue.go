package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/beamhq/beam/pkg/logging"
)

// ErrNotAccepting reports a submission while the worker is not in the
// Running control state.
var ErrNotAccepting = errors.New("job queue is not accepting submissions")

// Queue runs jobs from the store on a bounded worker pool. Submission only
// inserts a record and never blocks; workers poll the store for queued jobs.
// A running job is never cancelled mid-execution; lifecycle transitions wait
// for in-flight work to drain instead.
type Queue struct {
	store        *Store
	rt           *Runtime
	logger       *logging.Logger
	concurrency  int
	pollInterval time.Duration

	accepting atomic.Bool
	inFlight  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue returns a queue with the given worker-pool size. Workers are not
// started; the control surface starts and stops them.
func NewQueue(store *Store, rt *Runtime, concurrency int, pollInterval time.Duration, logger *logging.Logger) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Queue{
		store:        store,
		rt:           rt,
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// SetAccepting toggles whether Submit admits new jobs.
func (q *Queue) SetAccepting(accepting bool) {
	q.accepting.Store(accepting)
}

// Submit validates the gate, persists a queued job and returns its id. The
// payload is serialized once at submission and immutable afterwards.
func (q *Queue) Submit(p Payload) (string, error) {
	if !q.accepting.Load() {
		return "", ErrNotAccepting
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	job := Job{
		ID:          uuid.NewString(),
		Kind:        p.Kind(),
		Payload:     raw,
		Status:      StatusQueued,
		SubmittedAt: time.Now(),
	}
	if err := q.store.Insert(job); err != nil {
		return "", err
	}

	q.logger.Debug("job submitted", "id", job.ID, "kind", job.Kind)
	return job.ID, nil
}

// StartWorkers launches the worker pool. Calling it while workers are
// already running is a no-op.
func (q *Queue) StartWorkers(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.runWorker(workerCtx, i)
	}
	q.logger.Info("job workers started", "concurrency", q.concurrency)
}

// StopWorkers stops claiming new jobs and waits for the pool to exit.
// In-flight jobs run to completion first.
func (q *Queue) StopWorkers() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()
	q.logger.Info("job workers stopped")
}

// InFlight returns the number of jobs currently executing.
func (q *Queue) InFlight() int64 {
	return q.inFlight.Load()
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth() int {
	n, err := q.store.QueueDepth()
	if err != nil {
		q.logger.Error("failed to read queue depth", "error", err)
		return 0
	}
	return n
}

// WaitIdle blocks until no job is executing or the timeout elapses. It
// reports whether the queue drained.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for q.inFlight.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}

func (q *Queue) runWorker(ctx context.Context, id int) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainQueued(ctx)
		}
	}
}

// drainQueued claims and runs jobs until the queue is empty or the worker is
// asked to stop. The claim check happens between jobs only; execution itself
// is never interrupted.
func (q *Queue) drainQueued(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.store.ClaimNext()
		if err != nil {
			q.logger.Error("failed to claim job", "error", err)
			return
		}
		if job == nil {
			return
		}
		q.execute(job)
	}
}

func (q *Queue) execute(job *Job) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	q.logger.Info("job started", "id", job.ID, "kind", job.Kind)

	payload, err := decodePayload(job.Kind, job.Payload)
	if err != nil {
		q.finish(job.ID, StatusFailed, err.Error())
		return
	}

	// Jobs own their full execution; shutdown waits for them rather than
	// cancelling, so they run against an independent context.
	if err := payload.Execute(context.Background(), q.rt); err != nil {
		q.logger.Error("job failed", "id", job.ID, "kind", job.Kind, "error", err)
		q.finish(job.ID, StatusFailed, err.Error())
		return
	}

	q.logger.Info("job completed", "id", job.ID, "kind", job.Kind)
	q.finish(job.ID, StatusSucceeded, "")
}

func (q *Queue) finish(id string, status Status, errMsg string) {
	if err := q.store.Finish(id, status, errMsg); err != nil {
		q.logger.Error("failed to record job result", "id", id, "error", err)
	}
}
