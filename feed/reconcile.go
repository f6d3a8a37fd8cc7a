package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ddevcap/rollfeed/metrics"
	"github.com/ddevcap/rollfeed/store"
)

// Reconciler repairs drifted comment counters while a feed page is assembled.
// Only rolls whose stored commentsCount is zero are checked, with a single
// grouped count query per page.
type Reconciler struct {
	store   store.Store
	writer  *WriteBacker
	timeout time.Duration
}

// NewReconciler builds a Reconciler that persists repairs through w.
func NewReconciler(st store.Store, w *WriteBacker, timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Reconciler{store: st, writer: w, timeout: timeout}
}

// Reconcile patches rolls in place with the true comment count and schedules
// the write-back. It never fails: a query error leaves the counts as stored.
func (r *Reconciler) Reconcile(ctx context.Context, rolls []store.Roll) {
	var ids []string
	for _, roll := range rolls {
		if roll.CommentsCount == 0 {
			ids = append(ids, roll.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	counts, err := r.store.CountGrouped(qctx, ids)
	if err != nil {
		metrics.ReconcileFailures.Inc()
		slog.Warn("reconcile: grouped comment count failed", "rolls", len(ids), "error", err)
		return
	}

	for i := range rolls {
		n := counts[rolls[i].ID]
		if rolls[i].CommentsCount != 0 || n <= 0 {
			continue
		}
		rolls[i].CommentsCount = n
		metrics.ReconcileRepairs.Inc()
		slog.Info("reconcile: comment count drift", "roll_id", rolls[i].ID, "stored", 0, "actual", n)
		r.writer.Submit(WriteBack{ItemID: rolls[i].ID, Counter: store.CounterComments, Value: n})
	}
}

// WriteBack is one pending counter repair.
type WriteBack struct {
	ItemID  string
	Counter store.Counter
	Value   int64
}

// WriteBacker persists counter repairs off the request path. Submit never
// blocks: when the queue is full the repair is dropped, and the next
// reconciliation pass schedules it again.
type WriteBacker struct {
	store   store.Store
	queue   chan WriteBack
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriteBacker creates a worker with a queue of queueSize pending repairs.
// Call Start to begin processing.
func NewWriteBacker(st store.Store, queueSize int, timeout time.Duration) *WriteBacker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &WriteBacker{
		store:   st,
		queue:   make(chan WriteBack, queueSize),
		timeout: timeout,
	}
}

// Start begins the background loop. Safe to call once.
func (w *WriteBacker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case wb := <-w.queue:
				w.write(context.WithoutCancel(ctx), wb)
			}
		}
	}()
}

// Stop ends the loop after flushing repairs already queued, and waits for it.
func (w *WriteBacker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Submit queues a repair without waiting. It reports whether it was queued.
func (w *WriteBacker) Submit(wb WriteBack) bool {
	select {
	case w.queue <- wb:
		return true
	default:
		metrics.WriteBacks.WithLabelValues("dropped").Inc()
		slog.Warn("reconcile: write-back queue full, repair dropped",
			"item_id", wb.ItemID, "counter", wb.Counter)
		return false
	}
}

func (w *WriteBacker) drain() {
	for {
		select {
		case wb := <-w.queue:
			w.write(context.Background(), wb)
		default:
			return
		}
	}
}

func (w *WriteBacker) write(ctx context.Context, wb WriteBack) {
	wctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	var err error
	if wb.Counter == store.CounterComments {
		// Value is only what the read saw; recount at write time.
		err = w.store.RecountComments(wctx, wb.ItemID)
	} else {
		err = w.store.WriteBackCount(wctx, wb.ItemID, wb.Counter, wb.Value)
	}
	if err != nil {
		metrics.WriteBacks.WithLabelValues("error").Inc()
		slog.Warn("reconcile: write-back failed",
			"item_id", wb.ItemID, "counter", wb.Counter, "value", wb.Value, "error", err)
		return
	}
	metrics.WriteBacks.WithLabelValues("ok").Inc()
}
