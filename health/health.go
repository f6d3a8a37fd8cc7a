// Package health tracks whether the service's dependencies answer.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ddevcap/rollfeed/metrics"
)

const (
	// Default interval between background checks.
	defaultInterval = 30 * time.Second
	// Timeout for a single check.
	checkTimeout = 2 * time.Second
	// Consecutive failures before a dependency is reported down.
	downThreshold = 2
)

// Check probes one dependency. A nil error means it is reachable.
type Check func(ctx context.Context) error

// Status is a snapshot of one dependency. LastError stays out of JSON; it
// is logged when the dependency goes down.
type Status struct {
	Name         string    `json:"name"`
	Available    bool      `json:"available"`
	LastChecked  time.Time `json:"lastChecked"`
	LastError    string    `json:"-"`
	FailureCount int       `json:"failureCount"`
}

// OK reports whether the most recent check succeeded.
func (s Status) OK() bool { return s.LastError == "" }

type dependency struct {
	check  Check
	status Status
}

// Monitor runs registered checks in the background and on demand. A
// dependency is marked unavailable after downThreshold consecutive failures
// and available again on the first success, which keeps the dependency_up
// gauge from flapping.
type Monitor struct {
	interval time.Duration

	mu   sync.RWMutex
	deps map[string]*dependency

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. Call Register for each dependency, then
// Start.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		interval: interval,
		deps:     make(map[string]*dependency),
		done:     make(chan struct{}),
	}
}

// Register adds a dependency. Unchecked dependencies count as available.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = &dependency{check: check, status: Status{Name: name, Available: true}}
	metrics.DependencyUp.WithLabelValues(name).Set(1)
}

// Start runs an immediate check, then repeats every interval. Safe to call
// once.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)

		m.CheckNow(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop ends the background loop and waits for it. No-op if never started.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// CheckNow runs every check concurrently and returns the resulting
// snapshot.
func (m *Monitor) CheckNow(ctx context.Context) []Status {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.deps))
	for name, d := range m.deps {
		checks[name] = d.check
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			m.record(name, check(cctx))
		}(name, check)
	}
	wg.Wait()
	return m.Statuses()
}

// Available reports whether the named dependency is considered up.
func (m *Monitor) Available(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deps[name]
	if !ok {
		return true
	}
	return d.status.Available
}

// Statuses returns a snapshot of every dependency, sorted by name.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.deps))
	for _, d := range m.deps {
		out = append(out, d.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Monitor) record(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deps[name]
	if !ok {
		return
	}
	s := &d.status
	s.LastChecked = time.Now()

	if err == nil {
		if !s.Available {
			slog.Info("dependency came back online", "dependency", name)
		}
		s.Available = true
		s.FailureCount = 0
		s.LastError = ""
		metrics.DependencyUp.WithLabelValues(name).Set(1)
		return
	}

	s.FailureCount++
	s.LastError = err.Error()
	if s.FailureCount >= downThreshold && s.Available {
		slog.Warn("dependency marked unavailable",
			"dependency", name, "failures", s.FailureCount, "error", err)
		s.Available = false
		metrics.DependencyUp.WithLabelValues(name).Set(0)
	}
}
