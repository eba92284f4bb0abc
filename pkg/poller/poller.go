// Package poller implements the client-side refresh loop used by views that
// display request lists or activity streams. The loop is cooperative and
// single-flight: refreshes run one at a time on the polling goroutine, so a
// slow refresh causes ticks to be dropped rather than piling up concurrent
// polls. Cancelling the context stops the loop, which is how a view going to
// the background or closing shuts polling down.
//
// The poller only reads; acknowledging activity is an explicit user action
// wired elsewhere, never a side effect of a poll.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RefreshFunc re-queries server state and merges it into local view state.
type RefreshFunc func(ctx context.Context) error

// Poller drives periodic refreshes for a single open view.
type Poller struct {
	interval time.Duration
	refresh  RefreshFunc
	logger   *zap.Logger

	kick chan struct{}
}

// New builds a poller with the given cadence. A non-positive interval falls
// back to 30 seconds.
func New(interval time.Duration, refresh RefreshFunc, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		interval: interval,
		refresh:  refresh,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
// It blocks; callers start it on its own goroutine per view.
func (p *Poller) Run(ctx context.Context) {
	p.doRefresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.doRefresh(ctx)
		case <-p.kick:
			p.doRefresh(ctx)
		}
	}
}

// Kick requests an out-of-cycle refresh, for example after the user performs
// a write. If a refresh is already pending the kick is dropped; the loop
// never runs more than one refresh at a time.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) doRefresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.refresh(ctx); err != nil {
		// A failed poll is retried on the next tick; superseded results
		// are simply dropped.
		p.logger.Debug("refresh failed", zap.Error(err))
	}
}
