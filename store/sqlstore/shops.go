package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/ddevcap/rollfeed/store"
)

var shopColumns = []string{
	"id", "owner_id", "name", "category", "country", "language", "favorites_count", "created_at",
}

func scanShop(sc scanner) (store.Shop, error) {
	var (
		sh store.Shop
		us int64
	)
	err := sc.Scan(&sh.ID, &sh.OwnerID, &sh.Name, &sh.Category, &sh.Country, &sh.Language,
		&sh.FavoritesCount, &us)
	if err != nil {
		return store.Shop{}, err
	}
	sh.CreatedAt = fromMicros(us)
	return sh, nil
}

// FindShops returns shops newest first.
func (s *Store) FindShops(ctx context.Context, f store.ShopFilter) ([]store.Shop, error) {
	b := s.builder()
	sel := b.Select(shopColumns...).From(b.Table(ShopsTable.Name))

	var preds []*entsql.Predicate
	if f.Category != "" {
		preds = append(preds, entsql.EQ("category", f.Category))
	}
	if f.Before != nil {
		preds = append(preds, entsql.LT("created_at", toMicros(*f.Before)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).Limit(limitOrDefault(f.Limit))

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find shops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Shop
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan shop: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// GetShop loads a single shop by id.
func (s *Store) GetShop(ctx context.Context, id string) (store.Shop, error) {
	b := s.builder()
	query, args := b.Select(shopColumns...).
		From(b.Table(ShopsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	sh, err := scanShop(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Shop{}, store.ErrNotFound
	}
	if err != nil {
		return store.Shop{}, fmt.Errorf("sqlstore: get shop %s: %w", id, err)
	}
	return sh, nil
}

// CreateShop inserts a shop.
func (s *Store) CreateShop(ctx context.Context, sh store.Shop) (store.Shop, error) {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now()
	}
	sh.CreatedAt = sh.CreatedAt.UTC().Truncate(time.Microsecond)

	query, args := s.builder().Insert(ShopsTable.Name).
		Columns(shopColumns...).
		Values(sh.ID, sh.OwnerID, sh.Name, sh.Category, sh.Country, sh.Language,
			sh.FavoritesCount, toMicros(sh.CreatedAt)).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return store.Shop{}, fmt.Errorf("sqlstore: create shop: %w", err)
	}
	return sh, nil
}

var adColumns = []string{"id", "shop_id", "title", "priority", "country", "language", "created_at"}

// FindAds returns ad candidates newest first. Ranking happens in the caller.
func (s *Store) FindAds(ctx context.Context, f store.AdFilter) ([]store.Ad, error) {
	b := s.builder()
	sel := b.Select(adColumns...).
		From(b.Table(AdsTable.Name)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find ads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Ad
	for rows.Next() {
		var (
			a  store.Ad
			us int64
		)
		if err := rows.Scan(&a.ID, &a.ShopID, &a.Title, &a.Priority, &a.Country, &a.Language, &us); err != nil {
			return nil, fmt.Errorf("sqlstore: scan ad: %w", err)
		}
		a.CreatedAt = fromMicros(us)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAd inserts an ad.
func (s *Store) CreateAd(ctx context.Context, a store.Ad) (store.Ad, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Microsecond)

	query, args := s.builder().Insert(AdsTable.Name).
		Columns(adColumns...).
		Values(a.ID, a.ShopID, a.Title, a.Priority, a.Country, a.Language, toMicros(a.CreatedAt)).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return store.Ad{}, fmt.Errorf("sqlstore: create ad: %w", err)
	}
	return a, nil
}
