// Package feed assembles the roll, shop and ad listings: fetch, join viewer
// state, reconcile drifted counters, rank, paginate, then cache the encoded
// response.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ddevcap/rollfeed/metrics"
	"github.com/ddevcap/rollfeed/store"
)

const defaultStoreTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/ddevcap/rollfeed/feed")

// ResponseCache holds encoded responses. *cache.Cache satisfies it.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// Settings bounds what a request may ask for.
type Settings struct {
	DefaultLimit int
	MaxLimit     int
	AdLimit      int
	FeedTTL      time.Duration
	ListingTTL   time.Duration
	StoreTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxLimit <= 0 {
		s.MaxLimit = 50
	}
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = 20
	}
	if s.DefaultLimit > s.MaxLimit {
		s.DefaultLimit = s.MaxLimit
	}
	if s.AdLimit <= 0 {
		s.AdLimit = 20
	}
	if s.FeedTTL <= 0 {
		s.FeedTTL = 30 * time.Second
	}
	if s.ListingTTL <= 0 {
		s.ListingTTL = 60 * time.Second
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = defaultStoreTimeout
	}
	return s
}

// RollQuery is a roll feed request as received; values are validated by
// Rolls.
type RollQuery struct {
	Category string
	ShopID   string
	Cursor   string
	Limit    string
	ViewerID string
}

type ShopQuery struct {
	Category string
	Cursor   string
	Limit    string
	ViewerID string
	Country  string
	Language string
}

type AdQuery struct {
	ViewerID string
	Country  string
	Language string
}

// Assembler serves feed pages. Rolls are cached in feedCache; shops and ads
// share listingCache, so a favorite mutation invalidates only listings.
type Assembler struct {
	store        store.Store
	feedCache    ResponseCache
	listingCache ResponseCache
	reconciler   *Reconciler
	settings     Settings

	group singleflight.Group
}

// NewAssembler wires an Assembler. rec may be nil to disable reconciliation.
func NewAssembler(st store.Store, feedCache, listingCache ResponseCache, rec *Reconciler, s Settings) *Assembler {
	return &Assembler{
		store:        st,
		feedCache:    feedCache,
		listingCache: listingCache,
		reconciler:   rec,
		settings:     s.withDefaults(),
	}
}

// Rolls returns the encoded roll page for q.
func (a *Assembler) Rolls(ctx context.Context, q RollQuery) ([]byte, error) {
	cursor, err := ParseCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	limit, err := ClampLimit(q.Limit, a.settings.DefaultLimit, a.settings.MaxLimit)
	if err != nil {
		return nil, err
	}

	key := CacheKey("rolls", url.Values{"category": {q.Category}, "shopId": {q.ShopID}}, cursor, limit, q.ViewerID)
	return a.serve(ctx, "rolls", a.feedCache, a.settings.FeedTTL, key, func(ctx context.Context) ([]byte, error) {
		return a.assembleRolls(ctx, q, cursor, limit)
	})
}

// Shops returns the encoded shop page for q. The cursor follows creation
// time; affinity only reorders entries within the page.
func (a *Assembler) Shops(ctx context.Context, q ShopQuery) ([]byte, error) {
	cursor, err := ParseCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	limit, err := ClampLimit(q.Limit, a.settings.DefaultLimit, a.settings.MaxLimit)
	if err != nil {
		return nil, err
	}

	filters := url.Values{"category": {q.Category}, "country": {q.Country}, "language": {q.Language}}
	key := CacheKey("shops", filters, cursor, limit, q.ViewerID)
	return a.serve(ctx, "shops", a.listingCache, a.settings.ListingTTL, key, func(ctx context.Context) ([]byte, error) {
		return a.assembleShops(ctx, q, cursor, limit)
	})
}

// Ads returns the top ranked ads for the viewer.
func (a *Assembler) Ads(ctx context.Context, q AdQuery) ([]byte, error) {
	filters := url.Values{"country": {q.Country}, "language": {q.Language}}
	key := CacheKey("ads", filters, nil, a.settings.AdLimit, q.ViewerID)
	return a.serve(ctx, "ads", a.listingCache, a.settings.ListingTTL, key, func(ctx context.Context) ([]byte, error) {
		return a.assembleAds(ctx, q)
	})
}

// Roll returns a single roll with the viewer's flags, bypassing the cache.
func (a *Assembler) Roll(ctx context.Context, id, viewerID string) (RollView, error) {
	var (
		roll         store.Roll
		liked, saved map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sctx, cancel := a.storeCtx(gctx)
		defer cancel()
		roll, err = a.store.GetRoll(sctx, id)
		return err
	})
	if viewerID != "" {
		g.Go(a.fetchMembership(gctx, store.ActionLike, viewerID, &liked))
		g.Go(a.fetchMembership(gctx, store.ActionSave, viewerID, &saved))
	}
	if err := g.Wait(); err != nil {
		return RollView{}, err
	}
	return NewRollView(roll, liked, saved), nil
}

// Comments returns an encoded page of comments on rollID, newest first.
func (a *Assembler) Comments(ctx context.Context, rollID, rawCursor, rawLimit string) ([]byte, error) {
	cursor, err := ParseCursor(rawCursor)
	if err != nil {
		return nil, err
	}
	limit, err := ClampLimit(rawLimit, a.settings.DefaultLimit, a.settings.MaxLimit)
	if err != nil {
		return nil, err
	}

	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if _, err := a.store.GetRoll(sctx, rollID); err != nil {
		return nil, err
	}
	comments, err := a.store.ListComments(sctx, store.CommentFilter{RollID: rollID, Before: cursor, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("feed: list comments: %w", err)
	}

	page := BuildPage(comments, limit, func(c store.Comment) time.Time { return c.CreatedAt })
	views := make([]CommentView, 0, len(page.Items))
	for _, c := range page.Items {
		views = append(views, NewCommentView(c))
	}
	return json.Marshal(PageResponse[CommentView]{Data: views, Cursor: FormatCursor(page.NextCursor), HasMore: page.HasMore})
}

// serve returns the cached payload for key or builds it once, even under
// concurrent misses. A failed build is never cached.
func (a *Assembler) serve(ctx context.Context, resource string, c ResponseCache, ttl time.Duration, key string, build func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "feed."+resource)
	defer span.End()

	if payload, ok := c.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.AssembleDuration.WithLabelValues(resource, "hit").Observe(time.Since(start).Seconds())
		return payload, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The shared build must not be aborted because the first caller went away;
	// storage calls carry their own timeouts.
	buildCtx := context.WithoutCancel(ctx)
	v, err, shared := a.group.Do(key, func() (any, error) {
		payload, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, payload, ttl)
		return payload, nil
	})
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	metrics.AssembleDuration.WithLabelValues(resource, "miss").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v.([]byte), nil
}

func (a *Assembler) assembleRolls(ctx context.Context, q RollQuery, cursor *time.Time, limit int) ([]byte, error) {
	var (
		rolls        []store.Roll
		liked, saved map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sctx, cancel := a.storeCtx(gctx)
		defer cancel()
		rolls, err = a.store.FindRolls(sctx, store.RollFilter{
			Category: q.Category,
			ShopID:   q.ShopID,
			Before:   cursor,
			Limit:    limit,
		})
		return err
	})
	if q.ViewerID != "" {
		g.Go(a.fetchMembership(gctx, store.ActionLike, q.ViewerID, &liked))
		g.Go(a.fetchMembership(gctx, store.ActionSave, q.ViewerID, &saved))
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("feed: fetch rolls: %w", err)
	}

	if a.reconciler != nil {
		a.reconciler.Reconcile(ctx, rolls)
	}

	page := BuildPage(rolls, limit, func(r store.Roll) time.Time { return r.CreatedAt })
	views := make([]RollView, 0, len(page.Items))
	for _, r := range page.Items {
		views = append(views, NewRollView(r, liked, saved))
	}
	return json.Marshal(PageResponse[RollView]{Data: views, Cursor: FormatCursor(page.NextCursor), HasMore: page.HasMore})
}

func (a *Assembler) assembleShops(ctx context.Context, q ShopQuery, cursor *time.Time, limit int) ([]byte, error) {
	var (
		shops     []store.Shop
		favorites map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sctx, cancel := a.storeCtx(gctx)
		defer cancel()
		shops, err = a.store.FindShops(sctx, store.ShopFilter{Category: q.Category, Before: cursor, Limit: limit})
		return err
	})
	if q.ViewerID != "" {
		g.Go(a.fetchMembership(gctx, store.ActionFavorite, q.ViewerID, &favorites))
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("feed: fetch shops: %w", err)
	}

	page := BuildPage(shops, limit, func(s store.Shop) time.Time { return s.CreatedAt })
	aff := Affinity{FavoriteShops: favorites, Country: q.Country, Language: q.Language}
	boosted := BoostShops(page.Items, aff)

	views := make([]ShopView, 0, len(boosted))
	for _, s := range boosted {
		views = append(views, NewShopView(s, favorites))
	}
	return json.Marshal(PageResponse[ShopView]{Data: views, Cursor: FormatCursor(page.NextCursor), HasMore: page.HasMore})
}

func (a *Assembler) assembleAds(ctx context.Context, q AdQuery) ([]byte, error) {
	var (
		ads       []store.Ad
		favorites map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sctx, cancel := a.storeCtx(gctx)
		defer cancel()
		ads, err = a.store.FindAds(sctx, store.AdFilter{})
		return err
	})
	if q.ViewerID != "" {
		g.Go(a.fetchMembership(gctx, store.ActionFavorite, q.ViewerID, &favorites))
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("feed: fetch ads: %w", err)
	}

	aff := Affinity{FavoriteShops: favorites, Country: q.Country, Language: q.Language}
	cands := make([]AdCandidate, 0, len(ads))
	for _, ad := range ads {
		cands = append(cands, aff.Candidate(ad))
	}
	ranked := RankAds(cands, a.settings.AdLimit)

	views := make([]AdView, 0, len(ranked))
	for _, c := range ranked {
		views = append(views, NewAdView(c))
	}
	return json.Marshal(AdsResponse{Data: views})
}

func (a *Assembler) fetchMembership(ctx context.Context, action store.Action, viewerID string, dst *map[string]struct{}) func() error {
	return func() error {
		sctx, cancel := a.storeCtx(ctx)
		defer cancel()
		ids, err := a.store.FindMembershipIDs(sctx, action, viewerID)
		if err != nil {
			return fmt.Errorf("%s membership: %w", action, err)
		}
		*dst = ids
		return nil
	}
}

func (a *Assembler) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.settings.StoreTimeout)
}
