// Package daemon runs bunny's long-lived mode: a single-threaded
// polling loop that requests work from the coordinator, dispatches each
// task to the solver, and submits the result, with exponential backoff
// on network failures.
package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Health-Informatics-UoN/bunny/internal/taskapi"
)

// TaskSource polls the coordinator for work.
type TaskSource interface {
	NextJob(ctx context.Context, collection, taskType string) (json.RawMessage, error)
}

// TaskHandler processes one raw task payload. Errors are the handler's
// to absorb; the poll loop never sees them.
type TaskHandler func(ctx context.Context, task json.RawMessage)

// PollerConfig bounds the loop's timing behavior.
type PollerConfig struct {
	Collection      string
	TaskType        string
	PollingInterval time.Duration
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// Poller is the daemon's polling state machine:
// idle -> requesting -> dispatching -> submitting -> idle.
type Poller struct {
	source  TaskSource
	handler TaskHandler
	cfg     PollerConfig
	logger  *slog.Logger
}

// NewPoller builds a Poller.
func NewPoller(source TaskSource, handler TaskHandler, cfg PollerConfig, logger *slog.Logger) *Poller {
	return &Poller{source: source, handler: handler, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled. maxIterations bounds the number of
// loop iterations for deterministic testing; 0 means unbounded.
//
// Per iteration: request the next job; on success reset backoff and
// dispatch synchronously; on a network error sleep the current backoff
// and double it up to MaxBackoff; on 401 log and continue. Every
// iteration ends with a PollingInterval sleep.
func (p *Poller) Run(ctx context.Context, maxIterations int) {
	backoff := p.cfg.InitialBackoff

	p.logger.Info("polling for tasks", "collection", p.cfg.Collection)
	for iteration := 0; maxIterations == 0 || iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return
		}

		task, err := p.source.NextJob(ctx, p.cfg.Collection, p.cfg.TaskType)
		switch {
		case err == nil && task != nil:
			p.logger.Info("task received, resolving")
			p.handler(ctx, task)
			backoff = p.cfg.InitialBackoff
		case err == nil:
			p.logger.Debug("no task found, looking for job")
		case taskapi.IsUnauthorized(err):
			p.logger.Info("failed to authenticate with task server")
		default:
			p.logger.Error("network error occurred", "error", err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, p.cfg.MaxBackoff)
		}

		if !sleep(ctx, p.cfg.PollingInterval) {
			return
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
