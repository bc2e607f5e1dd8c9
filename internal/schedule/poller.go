package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Poller invokes a task on a fixed interval until stopped. At most one loop
// is active per Poller.
type Poller struct {
	clk      clock.Clock
	interval time.Duration
	task     func(ctx context.Context)
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(clk clock.Clock, interval time.Duration, task func(ctx context.Context), log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{clk: clk, interval: interval, task: task, log: log}
}

// Start begins ticking. It reports false when the poller is already running.
// The ticker is registered before Start returns.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	ticker := p.clk.Ticker(p.interval)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		defer p.release(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.task(ctx)
			}
		}
	}()
	p.log.Debug("schedule: poller started", slog.Duration("interval", p.interval))
	return true
}

// release forgets the loop identified by done once it exits, so a loop ended
// by its parent context can be started again.
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.cancel()
		p.cancel, p.done = nil, nil
	}
}

// Stop cancels the loop and waits for an in-flight task to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.log.Debug("schedule: poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
