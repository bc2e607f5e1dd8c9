package contentcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/schedule"
)

// DefaultPollInterval is how often previously requested content is re-fetched.
const DefaultPollInterval = 5 * time.Minute

// StartPolling registers the single background poller. It reports false
// when one is already running.
func (c *Cache) StartPolling(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	c.mu.Lock()
	if c.poller == nil {
		c.poller = schedule.NewPoller(c.clk, interval, c.poll, c.log)
	}
	p := c.poller
	c.mu.Unlock()
	return p.Start(ctx)
}

// StopPolling cancels the background poller, if any.
func (c *Cache) StopPolling() {
	c.mu.Lock()
	p := c.poller
	c.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// poll re-fetches every requested pair. Failures are logged only.
func (c *Cache) poll(ctx context.Context) {
	for _, pair := range c.Requested() {
		if ctx.Err() != nil {
			return
		}
		path, branch := pair[0], pair[1]
		_, changed, err := c.Fetch(ctx, path, branch)
		switch {
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			metrics.RecordPollFailure()
			c.log.Warn("contentcache: poll failed",
				slog.String("path", path),
				slog.String("branch", branch),
				slog.String("error", err.Error()))
		case changed:
			c.log.Info("contentcache: remote content changed",
				slog.String("path", path),
				slog.String("branch", branch))
		}
	}
}
