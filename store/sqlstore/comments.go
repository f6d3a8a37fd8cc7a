package sqlstore

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/ddevcap/rollfeed/store"
)

var commentColumns = []string{"id", "roll_id", "author_id", "body", "created_at"}

// CreateComment inserts a comment row. It does not touch rolls.comments_count;
// the caller owns that best-effort increment.
func (s *Store) CreateComment(ctx context.Context, c store.Comment) (store.Comment, error) {
	if _, err := s.GetRoll(ctx, c.RollID); err != nil {
		return store.Comment{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Microsecond)

	query, args := s.builder().Insert(CommentsTable.Name).
		Columns(commentColumns...).
		Values(c.ID, c.RollID, c.AuthorID, c.Body, toMicros(c.CreatedAt)).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return store.Comment{}, fmt.Errorf("sqlstore: create comment: %w", err)
	}
	return c, nil
}

// ListComments returns a roll's comments newest first.
func (s *Store) ListComments(ctx context.Context, f store.CommentFilter) ([]store.Comment, error) {
	b := s.builder()
	preds := []*entsql.Predicate{entsql.EQ("roll_id", f.RollID)}
	if f.Before != nil {
		preds = append(preds, entsql.LT("created_at", toMicros(*f.Before)))
	}
	query, args := b.Select(commentColumns...).
		From(b.Table(CommentsTable.Name)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limitOrDefault(f.Limit)).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Comment
	for rows.Next() {
		var (
			c  store.Comment
			us int64
		)
		if err := rows.Scan(&c.ID, &c.RollID, &c.AuthorID, &c.Body, &us); err != nil {
			return nil, fmt.Errorf("sqlstore: scan comment: %w", err)
		}
		c.CreatedAt = fromMicros(us)
		out = append(out, c)
	}
	return out, rows.Err()
}
