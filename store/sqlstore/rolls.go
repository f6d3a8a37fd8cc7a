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

var rollColumns = []string{
	"id", "shop_id", "creator_id", "category", "caption", "created_at",
	"likes_count", "saves_count", "shares_count", "comments_count",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoll(sc scanner) (store.Roll, error) {
	var (
		r  store.Roll
		us int64
	)
	err := sc.Scan(&r.ID, &r.ShopID, &r.CreatorID, &r.Category, &r.Caption, &us,
		&r.LikesCount, &r.SavesCount, &r.SharesCount, &r.CommentsCount)
	if err != nil {
		return store.Roll{}, err
	}
	r.CreatedAt = fromMicros(us)
	return r, nil
}

// FindRolls returns rolls newest first. Ties on created_at are broken by id
// so that a page boundary is stable.
func (s *Store) FindRolls(ctx context.Context, f store.RollFilter) ([]store.Roll, error) {
	b := s.builder()
	sel := b.Select(rollColumns...).From(b.Table(RollsTable.Name))

	var preds []*entsql.Predicate
	if f.Category != "" {
		preds = append(preds, entsql.EQ("category", f.Category))
	}
	if f.ShopID != "" {
		preds = append(preds, entsql.EQ("shop_id", f.ShopID))
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
		return nil, fmt.Errorf("sqlstore: find rolls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Roll
	for rows.Next() {
		r, err := scanRoll(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan roll: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRoll loads a single roll by id.
func (s *Store) GetRoll(ctx context.Context, id string) (store.Roll, error) {
	b := s.builder()
	query, args := b.Select(rollColumns...).
		From(b.Table(RollsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	r, err := scanRoll(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Roll{}, store.ErrNotFound
	}
	if err != nil {
		return store.Roll{}, fmt.Errorf("sqlstore: get roll %s: %w", id, err)
	}
	return r, nil
}

// CreateRoll inserts a roll with zeroed counters. Missing id and creation
// time are filled in.
func (s *Store) CreateRoll(ctx context.Context, r store.Roll) (store.Roll, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Microsecond)

	query, args := s.builder().Insert(RollsTable.Name).
		Columns(rollColumns...).
		Values(r.ID, r.ShopID, r.CreatorID, r.Category, r.Caption, toMicros(r.CreatedAt),
			r.LikesCount, r.SavesCount, r.SharesCount, r.CommentsCount).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return store.Roll{}, fmt.Errorf("sqlstore: create roll: %w", err)
	}
	return r, nil
}
