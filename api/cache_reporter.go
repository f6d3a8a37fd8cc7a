package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ddevcap/rollfeed/metrics"
)

// sized is satisfied by *cache.Cache.
type sized interface {
	Name() string
	Len() int
}

// CacheReporter periodically publishes the number of live entries of each
// response cache as a gauge, and logs it at debug level.
type CacheReporter struct {
	caches   []sized
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCacheReporter creates a reporter that samples every interval.
func NewCacheReporter(interval time.Duration, caches ...sized) *CacheReporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &CacheReporter{
		caches:   caches,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the background sampling loop.
func (r *CacheReporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.report()
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.report()
			}
		}
	}()
}

// Stop signals the loop to stop and waits for it.
func (r *CacheReporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *CacheReporter) report() {
	for _, c := range r.caches {
		n := c.Len()
		metrics.CacheEntries.WithLabelValues(c.Name()).Set(float64(n))
		slog.Debug("cache size", "cache", c.Name(), "entries", n)
	}
}
