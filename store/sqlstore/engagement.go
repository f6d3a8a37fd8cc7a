package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/ddevcap/rollfeed/store"
)

// actionSpec binds an action to the item table, the membership table (empty
// for unguarded counters) and the counter column it mutates.
type actionSpec struct {
	table    string
	setTable string
	counter  store.Counter
}

var actionSpecs = map[store.Action]actionSpec{
	store.ActionLike:     {table: RollsTable.Name, setTable: RollLikesTable.Name, counter: store.CounterLikes},
	store.ActionSave:     {table: RollsTable.Name, setTable: RollSavesTable.Name, counter: store.CounterSaves},
	store.ActionShare:    {table: RollsTable.Name, counter: store.CounterShares},
	store.ActionComment:  {table: RollsTable.Name, counter: store.CounterComments},
	store.ActionFavorite: {table: ShopsTable.Name, setTable: ShopFavoritesTable.Name, counter: store.CounterFavorites},
}

func specFor(action store.Action) (actionSpec, error) {
	spec, ok := actionSpecs[action]
	if !ok {
		return actionSpec{}, fmt.Errorf("sqlstore: unknown action %q", action)
	}
	return spec, nil
}

// FindMembershipIDs returns every item id the viewer is a member of.
func (s *Store) FindMembershipIDs(ctx context.Context, action store.Action, viewerID string) (map[string]struct{}, error) {
	spec, err := specFor(action)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	if spec.setTable == "" || viewerID == "" {
		return ids, nil
	}

	b := s.builder()
	query, args := b.Select("item_id").
		From(b.Table(spec.setTable)).
		Where(entsql.EQ("viewer_id", viewerID)).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find %s membership: %w", action, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: scan membership: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ConditionalSetUpdate inserts or deletes the (item, viewer) membership row and
// moves the counter in one transaction. The membership primary key is the
// precondition: an insert that conflicts or a delete that matches nothing
// leaves the counter untouched.
func (s *Store) ConditionalSetUpdate(ctx context.Context, action store.Action, itemID, viewerID string, dir store.Direction) (store.UpdateResult, error) {
	spec, err := specFor(action)
	if err != nil {
		return store.UpdateResult{}, err
	}
	if spec.setTable == "" {
		return store.UpdateResult{}, fmt.Errorf("sqlstore: action %q has no membership set", action)
	}

	var result store.UpdateResult
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		count, err := s.readCounter(ctx, tx, spec, itemID)
		if errors.Is(err, store.ErrNotFound) {
			result = store.UpdateResult{Outcome: store.NotFound}
			return nil
		}
		if err != nil {
			return err
		}

		b := s.builder()
		counter := string(spec.counter)
		switch dir {
		case store.Add:
			query, args := b.Insert(spec.setTable).
				Columns("item_id", "viewer_id", "created_at").
				Values(itemID, viewerID, toMicros(time.Now())).
				OnConflict(entsql.ConflictColumns("item_id", "viewer_id"), entsql.DoNothing()).
				Query()
			n, err := execAffected(ctx, tx, query, args)
			if err != nil {
				return fmt.Errorf("sqlstore: insert %s membership: %w", action, err)
			}
			if n == 0 {
				result = store.UpdateResult{Outcome: store.AlreadyDone, Count: count}
				return nil
			}
			query, args = b.Update(spec.table).
				Add(counter, 1).
				Where(entsql.EQ("id", itemID)).
				Query()
			if _, err := execAffected(ctx, tx, query, args); err != nil {
				return fmt.Errorf("sqlstore: increment %s: %w", counter, err)
			}

		case store.Remove:
			query, args := b.Delete(spec.setTable).
				Where(entsql.And(entsql.EQ("item_id", itemID), entsql.EQ("viewer_id", viewerID))).
				Query()
			n, err := execAffected(ctx, tx, query, args)
			if err != nil {
				return fmt.Errorf("sqlstore: delete %s membership: %w", action, err)
			}
			if n == 0 {
				result = store.UpdateResult{Outcome: store.NotDone, Count: count}
				return nil
			}
			// The guard keeps the counter at zero when it has drifted below
			// the membership cardinality.
			query, args = b.Update(spec.table).
				Add(counter, -1).
				Where(entsql.And(entsql.EQ("id", itemID), entsql.GT(counter, 0))).
				Query()
			n, err = execAffected(ctx, tx, query, args)
			if err != nil {
				return fmt.Errorf("sqlstore: decrement %s: %w", counter, err)
			}
			result.Clamped = n == 0

		default:
			return fmt.Errorf("sqlstore: unknown direction %d", dir)
		}

		count, err = s.readCounter(ctx, tx, spec, itemID)
		if err != nil {
			return err
		}
		result.Outcome = store.Applied
		result.Count = count
		return nil
	})
	if err != nil {
		return store.UpdateResult{}, err
	}
	return result, nil
}

// IncrementCounter adds one to the action's counter.
func (s *Store) IncrementCounter(ctx context.Context, action store.Action, itemID string) (int64, error) {
	spec, err := specFor(action)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		query, args := s.builder().Update(spec.table).
			Add(string(spec.counter), 1).
			Where(entsql.EQ("id", itemID)).
			Query()
		n, err := execAffected(ctx, tx, query, args)
		if err != nil {
			return fmt.Errorf("sqlstore: increment %s: %w", spec.counter, err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		count, err = s.readCounter(ctx, tx, spec, itemID)
		return err
	})
	return count, err
}

// CountGrouped counts comments per roll with a single GROUP BY query.
func (s *Store) CountGrouped(ctx context.Context, rollIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(rollIDs))
	if len(rollIDs) == 0 {
		return counts, nil
	}

	b := s.builder()
	query, args := b.Select("roll_id", entsql.Count("*")).
		From(b.Table(CommentsTable.Name)).
		Where(entsql.In("roll_id", stringArgs(rollIDs)...)).
		GroupBy("roll_id").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: count comments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("sqlstore: scan comment count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// WriteBackCount overwrites a denormalized counter.
func (s *Store) WriteBackCount(ctx context.Context, itemID string, counter store.Counter, value int64) error {
	table := RollsTable.Name
	if counter == store.CounterFavorites {
		table = ShopsTable.Name
	}
	query, args := s.builder().Update(table).
		Set(string(counter), value).
		Where(entsql.EQ("id", itemID)).
		Query()
	n, err := execAffected(ctx, s.db, query, args)
	if err != nil {
		return fmt.Errorf("sqlstore: write back %s: %w", counter, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecountComments(ctx context.Context, rollID string) error {
	b := s.builder()
	count := b.Select(entsql.Count("*")).
		From(b.Table(CommentsTable.Name)).
		Where(entsql.EQ("roll_id", rollID))
	query, args := b.Update(RollsTable.Name).
		Set(string(store.CounterComments), entsql.ExprFunc(func(b *entsql.Builder) {
			b.Wrap(func(b *entsql.Builder) { b.Join(count) })
		})).
		Where(entsql.EQ("id", rollID)).
		Query()
	n, err := execAffected(ctx, s.db, query, args)
	if err != nil {
		return fmt.Errorf("sqlstore: recount comments: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) readCounter(ctx context.Context, q querier, spec actionSpec, itemID string) (int64, error) {
	b := s.builder()
	query, args := b.Select(string(spec.counter)).
		From(b.Table(spec.table)).
		Where(entsql.EQ("id", itemID)).
		Query()
	var n int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: read %s: %w", spec.counter, err)
	}
	return n, nil
}

func execAffected(ctx context.Context, q querier, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
