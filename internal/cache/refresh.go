package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher periodically re-warms the distribution cache on a fixed TTL
// interval, running as a background goroutine for the life of the
// daemon.
type Refresher struct {
	svc       *Service
	ttl       time.Duration
	refresh   func(ctx context.Context) error
	logger    *slog.Logger
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	lastRun   time.Time
	pollEvery time.Duration
	backoff   time.Duration
}

// NewRefresher builds a Refresher. refresh is called once per TTL
// interval to repopulate commonly-requested distribution queries; the
// daemon supplies a hook that re-runs its standing distribution
// payloads.
func NewRefresher(svc *Service, ttl time.Duration, refresh func(ctx context.Context) error, logger *slog.Logger) *Refresher {
	return &Refresher{
		svc:       svc,
		ttl:       ttl,
		refresh:   refresh,
		logger:    logger,
		lastRun:   time.Now(),
		pollEvery: 60 * time.Second,
		backoff:   5 * time.Minute,
	}
}

// Start launches the refresh loop in the background. It is a no-op when
// the cache is disabled or has no expiration.
func (r *Refresher) Start(ctx context.Context) {
	if !r.svc.enabled {
		r.logger.Info("cache disabled, not starting refresh service")
		return
	}
	if r.ttl <= 0 {
		r.logger.Info("cache TTL is 0 (no expiration), not starting refresh service")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("cache refresh service started", "interval", r.ttl)
}

// Stop signals the loop to exit and waits up to 5 seconds for it to
// return.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.logger.Warn("cache refresh service did not stop within 5s")
	}
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	sleep := r.pollEvery
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}

		sleep = r.pollEvery
		if time.Since(r.lastRun) < r.ttl {
			continue
		}

		r.logger.Info("starting scheduled cache refresh")
		if err := r.refresh(ctx); err != nil {
			r.logger.Error("error in cache refresh loop", "error", err)
			sleep = r.backoff
			continue
		}
		r.lastRun = time.Now()
		r.logger.Info("cache refresh completed")
	}
}
