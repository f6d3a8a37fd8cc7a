// Package engagement applies like, save, share and favorite actions to the
// denormalized counters of rolls and shops.
//
// Correctness under concurrency is delegated to store.ConditionalSetUpdate:
// this package holds no locks and treats the reported outcome as the
// concurrency-control signal.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ddevcap/rollfeed/events"
	"github.com/ddevcap/rollfeed/metrics"
	"github.com/ddevcap/rollfeed/store"
)

var (
	// ErrAlreadyDone means the viewer is already a member; nothing changed.
	ErrAlreadyDone = errors.New("engagement: already done")
	// ErrNotDone means the viewer is not a member; nothing changed.
	ErrNotDone = errors.New("engagement: not done")
	// ErrUnsupported is returned for action/direction pairs that do not exist,
	// e.g. removing a share.
	ErrUnsupported = errors.New("engagement: unsupported action")
	// ErrAnonymous is returned when a mutation carries no viewer id.
	ErrAnonymous = errors.New("engagement: viewer required")
	// ErrInvalidComment is returned for an empty comment body.
	ErrInvalidComment = errors.New("engagement: comment body required")
)

const defaultTimeout = 5 * time.Second

// Invalidator drops cached responses that may embed a mutated counter.
// *cache.Cache satisfies it.
type Invalidator interface {
	Clear()
}

// Result is the state after a mutation.
type Result struct {
	Action store.Action
	ItemID string
	// Active reports whether the viewer is now a member of the action's set.
	// Always true for shares.
	Active bool
	Count  int64
}

// Service is the counter mutator.
type Service struct {
	store      store.Store
	publisher  events.Publisher
	invalidate map[store.Action][]Invalidator
	timeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the engagement event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithInvalidation registers caches cleared after a successful mutation of
// action.
func WithInvalidation(action store.Action, caches ...Invalidator) Option {
	return func(s *Service) { s.invalidate[action] = append(s.invalidate[action], caches...) }
}

// WithTimeout bounds every storage call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a Service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		publisher:  events.Nop{},
		invalidate: make(map[store.Action][]Invalidator),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply performs action on itemID for viewerID.
//
// Add succeeds only when the viewer is not yet a member and Remove only when
// it is; otherwise ErrAlreadyDone or ErrNotDone is returned and nothing is
// written. Shares have no membership set: Add always increments and Remove is
// ErrUnsupported. A missing item yields store.ErrNotFound.
func (s *Service) Apply(ctx context.Context, action store.Action, itemID, viewerID string, dir store.Direction) (Result, error) {
	if strings.TrimSpace(viewerID) == "" {
		return Result{}, ErrAnonymous
	}
	switch {
	case action == store.ActionShare:
		if dir != store.Add {
			return Result{}, ErrUnsupported
		}
		return s.share(ctx, itemID, viewerID)
	case action.HasMembership():
		return s.toggle(ctx, action, itemID, viewerID, dir)
	}
	return Result{}, ErrUnsupported
}

func (s *Service) toggle(ctx context.Context, action store.Action, itemID, viewerID string, dir store.Direction) (Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.store.ConditionalSetUpdate(sctx, action, itemID, viewerID, dir)
	if err != nil {
		slog.Error("engagement: conditional update failed",
			"action", action, "direction", dir, "item_id", itemID, "viewer_id", viewerID, "error", err)
		return Result{}, fmt.Errorf("engagement: %s %s: %w", action, dir, err)
	}
	metrics.Mutations.WithLabelValues(string(action), dir.String(), res.Outcome.String()).Inc()

	switch res.Outcome {
	case store.NotFound:
		return Result{}, store.ErrNotFound
	case store.AlreadyDone:
		return Result{Action: action, ItemID: itemID, Active: true, Count: res.Count}, ErrAlreadyDone
	case store.NotDone:
		return Result{Action: action, ItemID: itemID, Active: false, Count: res.Count}, ErrNotDone
	}

	if res.Clamped {
		metrics.DriftClamps.WithLabelValues(string(action)).Inc()
		slog.Warn("engagement: counter clamped at zero",
			"action", action, "item_id", itemID, "viewer_id", viewerID)
	}

	out := Result{Action: action, ItemID: itemID, Active: dir == store.Add, Count: res.Count}
	s.afterMutation(ctx, out, viewerID, dir, &out.Count)
	return out, nil
}

func (s *Service) share(ctx context.Context, itemID, viewerID string) (Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.store.IncrementCounter(sctx, store.ActionShare, itemID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.Mutations.WithLabelValues(string(store.ActionShare), store.Add.String(), store.NotFound.String()).Inc()
		return Result{}, store.ErrNotFound
	}
	if err != nil {
		slog.Error("engagement: share increment failed", "item_id", itemID, "viewer_id", viewerID, "error", err)
		return Result{}, fmt.Errorf("engagement: share: %w", err)
	}
	metrics.Mutations.WithLabelValues(string(store.ActionShare), store.Add.String(), store.Applied.String()).Inc()

	out := Result{Action: store.ActionShare, ItemID: itemID, Active: true, Count: n}
	s.afterMutation(ctx, out, viewerID, store.Add, &out.Count)
	return out, nil
}

// Comment stores a comment and bumps the roll's comment counter. The bump is
// best effort: if it fails the counter drifts and the feed reconciler repairs
// it on a later read.
func (s *Service) Comment(ctx context.Context, rollID, authorID, body string) (store.Comment, error) {
	if strings.TrimSpace(authorID) == "" {
		return store.Comment{}, ErrAnonymous
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, ErrInvalidComment
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.store.CreateComment(sctx, store.Comment{RollID: rollID, AuthorID: authorID, Body: body})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Comment{}, err
		}
		return store.Comment{}, fmt.Errorf("engagement: create comment: %w", err)
	}

	out := Result{Action: store.ActionComment, ItemID: rollID, Active: true}
	count := &out.Count
	out.Count, err = s.store.IncrementCounter(sctx, store.ActionComment, rollID)
	if err != nil {
		// The event goes out without a count.
		slog.Warn("engagement: comment counter not incremented",
			"roll_id", rollID, "comment_id", c.ID, "error", err)
		count = nil
	}
	s.afterMutation(ctx, out, authorID, store.Add, count)
	return c, nil
}

// afterMutation clears affected caches and publishes the event. A nil count
// means the stored counter is unknown.
func (s *Service) afterMutation(ctx context.Context, r Result, viewerID string, dir store.Direction, count *int64) {
	for _, c := range s.invalidate[r.Action] {
		c.Clear()
	}

	ev := events.Event{
		Action:     string(r.Action),
		Direction:  dir.String(),
		ItemID:     r.ItemID,
		ViewerID:   viewerID,
		Count:      count,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		slog.Warn("engagement: event not published", "action", r.Action, "item_id", r.ItemID, "error", err)
	}
}
