// Package store defines the storage collaborator the feed and engagement
// packages depend on, together with the entities it owns.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the addressed roll, shop or ad does not exist.
var ErrNotFound = errors.New("store: not found")

// Action identifies an engagement action and, through it, the membership set
// and counter column it mutates.
type Action string

const (
	ActionLike     Action = "like"
	ActionSave     Action = "save"
	ActionShare    Action = "share"
	ActionFavorite Action = "favorite"
	// ActionComment is only used for counter increments made by the comment
	// creation path. It has no membership set.
	ActionComment Action = "comment"
)

// HasMembership reports whether the action is guarded by a per-viewer set.
func (a Action) HasMembership() bool {
	switch a {
	case ActionLike, ActionSave, ActionFavorite:
		return true
	}
	return false
}

// Direction selects whether a membership action is performed or undone.
type Direction int

const (
	Add Direction = iota
	Remove
)

func (d Direction) String() string {
	if d == Remove {
		return "remove"
	}
	return "add"
}

// Outcome is the result of a conditional membership update.
type Outcome int

const (
	Applied Outcome = iota
	AlreadyDone
	NotDone
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyDone:
		return "already_done"
	case NotDone:
		return "not_done"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// UpdateResult reports what ConditionalSetUpdate did. Count is the counter
// value after the update (or the current value for no-op outcomes). Clamped
// is set when a decrement would have gone negative and was forced to zero.
type UpdateResult struct {
	Outcome Outcome
	Count   int64
	Clamped bool
}

// Counter names a denormalized counter column that can be written back.
type Counter string

const (
	CounterLikes     Counter = "likes_count"
	CounterSaves     Counter = "saves_count"
	CounterShares    Counter = "shares_count"
	CounterComments  Counter = "comments_count"
	CounterFavorites Counter = "favorites_count"
)

// Roll is a short video posted by a shop. It is the engagement-bearing feed item.
type Roll struct {
	ID            string
	ShopID        string
	CreatorID     string
	Category      string
	Caption       string
	CreatedAt     time.Time
	LikesCount    int64
	SavesCount    int64
	SharesCount   int64
	CommentsCount int64
}

// Shop is a directory listing that viewers can favorite.
type Shop struct {
	ID             string
	OwnerID        string
	Name           string
	Category       string
	Country        string
	Language       string
	FavoritesCount int64
	CreatedAt      time.Time
}

// Ad is a promotional item ranked per viewer.
type Ad struct {
	ID        string
	ShopID    string
	Title     string
	Priority  int
	Country   string
	Language  string
	CreatedAt time.Time
}

// Comment is a row in the comment collection summarized by Roll.CommentsCount.
type Comment struct {
	ID        string
	RollID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// RollFilter selects rolls in descending creation order. Before, when non-nil,
// restricts results to rolls created strictly before it.
type RollFilter struct {
	Category string
	ShopID   string
	Before   *time.Time
	Limit    int
}

// ShopFilter selects shops in descending creation order.
type ShopFilter struct {
	Category string
	Before   *time.Time
	Limit    int
}

// AdFilter selects ad candidates. A zero Limit means no limit.
type AdFilter struct {
	Limit int
}

// CommentFilter selects comments of one roll in descending creation order.
type CommentFilter struct {
	RollID string
	Before *time.Time
	Limit  int
}

// Store is the storage collaborator. Implementations must make
// ConditionalSetUpdate a single atomic operation conditional on the viewer's
// current membership.
type Store interface {
	FindRolls(ctx context.Context, f RollFilter) ([]Roll, error)
	GetRoll(ctx context.Context, id string) (Roll, error)
	CreateRoll(ctx context.Context, r Roll) (Roll, error)

	FindShops(ctx context.Context, f ShopFilter) ([]Shop, error)
	GetShop(ctx context.Context, id string) (Shop, error)
	CreateShop(ctx context.Context, s Shop) (Shop, error)

	FindAds(ctx context.Context, f AdFilter) ([]Ad, error)
	CreateAd(ctx context.Context, a Ad) (Ad, error)

	// FindMembershipIDs returns the ids of every item the viewer is a member
	// of for the given action (e.g. all rolls the viewer liked).
	FindMembershipIDs(ctx context.Context, action Action, viewerID string) (map[string]struct{}, error)
	ConditionalSetUpdate(ctx context.Context, action Action, itemID, viewerID string, dir Direction) (UpdateResult, error)
	// IncrementCounter unconditionally adds one to the action's counter and
	// returns the new value.
	IncrementCounter(ctx context.Context, action Action, itemID string) (int64, error)

	// CountGrouped counts comment rows per roll id. Rolls without comments
	// are absent from the result.
	CountGrouped(ctx context.Context, rollIDs []string) (map[string]int64, error)
	WriteBackCount(ctx context.Context, itemID string, counter Counter, value int64) error
	// RecountComments sets a roll's commentsCount from its comment rows in
	// one statement, so comments added after a drift was detected still count.
	RecountComments(ctx context.Context, rollID string) error

	CreateComment(ctx context.Context, c Comment) (Comment, error)
	ListComments(ctx context.Context, f CommentFilter) ([]Comment, error)

	Ping(ctx context.Context) error
}
