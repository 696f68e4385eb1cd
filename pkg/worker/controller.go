// Package worker hosts the job runner's lifecycle control: the
// Stopped/Running/Draining state machine and the HTTP control surface the
// API process drives it through.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beamhq/beam/pkg/jobs"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/settings"
)

// State is the worker's control state. Only Running accepts new job
// submissions.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

var (
	// ErrAlreadyRunning reports a start request while the worker runs.
	ErrAlreadyRunning = errors.New("worker is already running")
	// ErrNotRunning reports a stop request while the worker is stopped.
	ErrNotRunning = errors.New("worker is not running")
)

// Controller owns the control state machine. Stop and restart drain: they
// wait for in-flight jobs to reach a terminal state and never abandon a job
// mid-execution.
//
// Two locks: lifecycle serializes the transitions themselves (which can wait
// out a drain), state guards the State field so Health stays cheap while a
// drain is in progress.
type Controller struct {
	lifecycle sync.Mutex
	stateMu   sync.RWMutex
	state     State

	queue    *jobs.Queue
	settings *settings.Manager
	logger   *logging.Logger
	baseCtx  context.Context
	started  time.Time
}

// NewController returns a controller in the Stopped state.
func NewController(ctx context.Context, queue *jobs.Queue, mgr *settings.Manager, logger *logging.Logger) *Controller {
	return &Controller{
		state:    StateStopped,
		queue:    queue,
		settings: mgr,
		logger:   logger,
		baseCtx:  ctx,
	}
}

// State returns the current control state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	if s == StateRunning {
		c.started = time.Now()
	}
	c.stateMu.Unlock()
}

func (c *Controller) startedAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.started
}

// Start moves Stopped -> Running: workers spin up and submissions open.
func (c *Controller) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() != StateStopped {
		return ErrAlreadyRunning
	}

	c.resume()
	c.logger.Info("worker started")
	return nil
}

// Stop moves Running -> Draining -> Stopped. Submissions close immediately;
// the transition to Stopped completes once in-flight jobs have finished.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() == StateStopped {
		return ErrNotRunning
	}

	c.drain()
	c.setState(StateStopped)
	c.logger.Info("worker stopped")
	return nil
}

// Restart drains in-flight work and resumes acceptance: Running -> Draining
// -> Running. Restarting a stopped worker simply starts it.
func (c *Controller) Restart() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() != StateStopped {
		c.drain()
	}

	c.resume()
	c.logger.Info("worker restarted")
	return nil
}

// ReloadSettings re-reads the settings. When the worker is not Stopped and
// the reload changed anything, the worker pool is bounced so the new values
// take effect immediately; a stopped worker picks them up at next start.
func (c *Controller) ReloadSettings() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.settings.Reload(); err != nil {
		return err
	}

	if c.State() == StateStopped || !c.settings.HasChanged() {
		return nil
	}

	c.logger.Info("settings changed, restarting workers")
	c.drain()
	c.resume()
	return nil
}

// drain closes submissions and waits out in-flight jobs. Callers hold the
// lifecycle lock.
func (c *Controller) drain() {
	c.setState(StateDraining)
	c.queue.SetAccepting(false)
	c.queue.StopWorkers()
}

// resume opens submissions and starts the worker pool. Callers hold the
// lifecycle lock.
func (c *Controller) resume() {
	c.queue.StartWorkers(c.baseCtx)
	c.queue.SetAccepting(true)
	c.setState(StateRunning)
}

// HealthInfo is the bounded-latency health report: current state and queue
// gauges, never blocked on job execution.
type HealthInfo struct {
	Status     string    `json:"status"`
	QueueDepth int       `json:"queueDepth"`
	InFlight   int64     `json:"inFlight"`
	Uptime     string    `json:"uptime,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Health snapshots the controller and queue gauges. It takes no lifecycle
// lock, so it answers during a drain as well.
func (c *Controller) Health() HealthInfo {
	state := c.State()

	info := HealthInfo{
		Status:     string(state),
		QueueDepth: c.queue.Depth(),
		InFlight:   c.queue.InFlight(),
		Timestamp:  time.Now(),
	}
	if started := c.startedAt(); state != StateStopped && !started.IsZero() {
		info.Uptime = time.Since(started).Round(time.Second).String()
	}
	return info
}
