package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Rebinder adapts $N placeholders to the underlying dialect.
type Rebinder interface {
	Rebind(query string) string
}

// SQLRepo appends to the tool_invocations table.
type SQLRepo struct {
	db *sql.DB
	rb Rebinder
}

func NewSQLRepo(db *sql.DB, rb Rebinder) *SQLRepo { return &SQLRepo{db: db, rb: rb} }

func (r *SQLRepo) q(query string) string {
	if r.rb == nil {
		return query
	}
	return r.rb.Rebind(query)
}

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, r.q(`
INSERT INTO tool_invocations (id, tool, call_id, user_id, outcome, error_kind, message, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`),
		e.ID, e.Tool, e.CallID, e.UserID, string(e.Outcome), e.ErrorKind, e.Message, e.DurationMS, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.q(`
SELECT id, tool, call_id, user_id, outcome, error_kind, message, duration_ms, created_at
FROM tool_invocations ORDER BY created_at DESC, id DESC LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var outcome string
		if err := rows.Scan(&e.ID, &e.Tool, &e.CallID, &e.UserID, &outcome, &e.ErrorKind, &e.Message, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
