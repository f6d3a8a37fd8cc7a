// Package memstore is an in-process store.Store. Every operation runs under
// one mutex, which makes ConditionalSetUpdate trivially atomic. It backs the
// "memory" database driver and the engagement/feed test suites.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ddevcap/rollfeed/store"
)

// Store keeps all entities in maps.
type Store struct {
	mu         sync.Mutex
	rolls      map[string]*store.Roll
	shops      map[string]*store.Shop
	ads        map[string]store.Ad
	comments   map[string][]store.Comment // keyed by roll id
	membership map[store.Action]map[string]map[string]struct{}

	// failNext holds errors returned once by the next call of the named
	// operation ("FindRolls", "CountGrouped", "WriteBackCount", ...).
	failMu   sync.Mutex
	failNext map[string]error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		rolls:    make(map[string]*store.Roll),
		shops:    make(map[string]*store.Shop),
		ads:      make(map[string]store.Ad),
		comments: make(map[string][]store.Comment),
		membership: map[store.Action]map[string]map[string]struct{}{
			store.ActionLike:     {},
			store.ActionSave:     {},
			store.ActionFavorite: {},
		},
		failNext: make(map[string]error),
	}
}

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNext[op] = err
}

func (s *Store) injected(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err := s.failNext[op]
	delete(s.failNext, op)
	return err
}

func (s *Store) Ping(context.Context) error { return s.injected("Ping") }

func (s *Store) FindRolls(ctx context.Context, f store.RollFilter) ([]store.Roll, error) {
	if err := s.injected("FindRolls"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Roll
	for _, r := range s.rolls {
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.ShopID != "" && r.ShopID != f.ShopID {
			continue
		}
		if f.Before != nil && !r.CreatedAt.Before(*f.Before) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return truncate(out, f.Limit), nil
}

func (s *Store) GetRoll(_ context.Context, id string) (store.Roll, error) {
	if err := s.injected("GetRoll"); err != nil {
		return store.Roll{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rolls[id]
	if !ok {
		return store.Roll{}, store.ErrNotFound
	}
	return *r, nil
}

func (s *Store) CreateRoll(_ context.Context, r store.Roll) (store.Roll, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolls[r.ID] = &r
	return r, nil
}

func (s *Store) FindShops(_ context.Context, f store.ShopFilter) ([]store.Shop, error) {
	if err := s.injected("FindShops"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Shop
	for _, sh := range s.shops {
		if f.Category != "" && sh.Category != f.Category {
			continue
		}
		if f.Before != nil && !sh.CreatedAt.Before(*f.Before) {
			continue
		}
		out = append(out, *sh)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return truncate(out, f.Limit), nil
}

func (s *Store) GetShop(_ context.Context, id string) (store.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops[id]
	if !ok {
		return store.Shop{}, store.ErrNotFound
	}
	return *sh, nil
}

func (s *Store) CreateShop(_ context.Context, sh store.Shop) (store.Shop, error) {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now()
	}
	sh.CreatedAt = sh.CreatedAt.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = &sh
	return sh, nil
}

func (s *Store) FindAds(_ context.Context, f store.AdFilter) ([]store.Ad, error) {
	if err := s.injected("FindAds"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Ad, 0, len(s.ads))
	for _, a := range s.ads {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	if f.Limit > 0 {
		out = truncate(out, f.Limit)
	}
	return out, nil
}

func (s *Store) CreateAd(_ context.Context, a store.Ad) (store.Ad, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads[a.ID] = a
	return a, nil
}

func (s *Store) FindMembershipIDs(ctx context.Context, action store.Action, viewerID string) (map[string]struct{}, error) {
	if err := s.injected("FindMembershipIDs"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{})
	for itemID, members := range s.membership[action] {
		if _, ok := members[viewerID]; ok {
			ids[itemID] = struct{}{}
		}
	}
	return ids, nil
}

func (s *Store) ConditionalSetUpdate(_ context.Context, action store.Action, itemID, viewerID string, dir store.Direction) (store.UpdateResult, error) {
	if err := s.injected("ConditionalSetUpdate"); err != nil {
		return store.UpdateResult{}, err
	}
	sets, ok := s.membership[action]
	if !ok {
		return store.UpdateResult{}, fmt.Errorf("memstore: action %q has no membership set", action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counterLocked(action, itemID)
	if !ok {
		return store.UpdateResult{Outcome: store.NotFound}, nil
	}
	members := sets[itemID]
	_, isMember := members[viewerID]

	switch dir {
	case store.Add:
		if isMember {
			return store.UpdateResult{Outcome: store.AlreadyDone, Count: *counter}, nil
		}
		if members == nil {
			members = make(map[string]struct{})
			sets[itemID] = members
		}
		members[viewerID] = struct{}{}
		*counter++
		return store.UpdateResult{Outcome: store.Applied, Count: *counter}, nil
	case store.Remove:
		if !isMember {
			return store.UpdateResult{Outcome: store.NotDone, Count: *counter}, nil
		}
		delete(members, viewerID)
		if *counter <= 0 {
			*counter = 0
			return store.UpdateResult{Outcome: store.Applied, Count: 0, Clamped: true}, nil
		}
		*counter--
		return store.UpdateResult{Outcome: store.Applied, Count: *counter}, nil
	}
	return store.UpdateResult{}, fmt.Errorf("memstore: unknown direction %d", dir)
}

func (s *Store) IncrementCounter(_ context.Context, action store.Action, itemID string) (int64, error) {
	if err := s.injected("IncrementCounter"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counterLocked(action, itemID)
	if !ok {
		return 0, store.ErrNotFound
	}
	*counter++
	return *counter, nil
}

func (s *Store) CountGrouped(ctx context.Context, rollIDs []string) (map[string]int64, error) {
	if err := s.injected("CountGrouped"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, id := range rollIDs {
		if n := len(s.comments[id]); n > 0 {
			counts[id] = int64(n)
		}
	}
	return counts, nil
}

func (s *Store) WriteBackCount(_ context.Context, itemID string, counter store.Counter, value int64) error {
	if err := s.injected("WriteBackCount"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter == store.CounterFavorites {
		sh, ok := s.shops[itemID]
		if !ok {
			return store.ErrNotFound
		}
		sh.FavoritesCount = value
		return nil
	}
	r, ok := s.rolls[itemID]
	if !ok {
		return store.ErrNotFound
	}
	switch counter {
	case store.CounterLikes:
		r.LikesCount = value
	case store.CounterSaves:
		r.SavesCount = value
	case store.CounterShares:
		r.SharesCount = value
	case store.CounterComments:
		r.CommentsCount = value
	default:
		return fmt.Errorf("memstore: unknown counter %q", counter)
	}
	return nil
}

func (s *Store) RecountComments(_ context.Context, rollID string) error {
	if err := s.injected("RecountComments"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rolls[rollID]
	if !ok {
		return store.ErrNotFound
	}
	r.CommentsCount = int64(len(s.comments[rollID]))
	return nil
}

func (s *Store) CreateComment(_ context.Context, c store.Comment) (store.Comment, error) {
	if err := s.injected("CreateComment"); err != nil {
		return store.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolls[c.RollID]; !ok {
		return store.Comment{}, store.ErrNotFound
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	s.comments[c.RollID] = append(s.comments[c.RollID], c)
	return c, nil
}

func (s *Store) ListComments(_ context.Context, f store.CommentFilter) ([]store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Comment
	for _, c := range s.comments[f.RollID] {
		if f.Before != nil && !c.CreatedAt.Before(*f.Before) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return truncate(out, f.Limit), nil
}

// Members returns the viewer ids in an item's membership set.
func (s *Store) Members(action store.Action, itemID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.membership[action][itemID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// counterLocked returns a pointer to the counter field an action mutates.
func (s *Store) counterLocked(action store.Action, itemID string) (*int64, bool) {
	if action == store.ActionFavorite {
		sh, ok := s.shops[itemID]
		if !ok {
			return nil, false
		}
		return &sh.FavoritesCount, true
	}
	r, ok := s.rolls[itemID]
	if !ok {
		return nil, false
	}
	switch action {
	case store.ActionLike:
		return &r.LikesCount, true
	case store.ActionSave:
		return &r.SavesCount, true
	case store.ActionShare:
		return &r.SharesCount, true
	case store.ActionComment:
		return &r.CommentsCount, true
	}
	return nil, false
}

func newer(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = 20
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
