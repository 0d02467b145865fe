package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"call-assistant/pkg/utils"
)

// Rebinder adapts $N placeholders to the underlying dialect.
type Rebinder interface {
	Rebind(query string) string
}

// SQLRepo persists call snapshots in the calls table (postgres or sqlite).
type SQLRepo struct {
	db *sql.DB
	rb Rebinder
}

func NewSQLRepo(db *sql.DB, rb Rebinder) *SQLRepo { return &SQLRepo{db: db, rb: rb} }

const callColumns = `call_id, from_number, to_number, status, duration, price, price_unit, start_time, end_time, updated_at`

func (r *SQLRepo) q(query string) string {
	if r.rb == nil {
		return query
	}
	return r.rb.Rebind(query)
}

// Upsert reads the current row and writes the merged snapshot in one transaction.
func (r *SQLRepo) Upsert(ctx context.Context, c Call) (Call, error) {
	if c.ID == "" {
		return Call{}, errors.New("calls: id required")
	}
	var merged Call
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, r.q(`SELECT `+callColumns+` FROM calls WHERE call_id = $1`), c.ID)
		existing, err := scanCall(row)
		switch {
		case errors.Is(err, ErrNotFound):
			merged = c
		case err != nil:
			return err
		default:
			merged = existing.Merge(c)
		}
		if merged.UpdatedAt.IsZero() {
			merged.UpdatedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, r.q(`
INSERT INTO calls (`+callColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (call_id) DO UPDATE SET
    from_number = excluded.from_number,
    to_number = excluded.to_number,
    status = excluded.status,
    duration = excluded.duration,
    price = excluded.price,
    price_unit = excluded.price_unit,
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    updated_at = excluded.updated_at`),
			merged.ID, merged.From, merged.To, string(merged.Status),
			nullInt(merged.Duration), nullString(merged.Price), merged.PriceUnit,
			nullTime(merged.StartTime), nullTime(merged.EndTime), merged.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("calls: upsert %s: %w", merged.ID, err)
		}
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	return merged, nil
}

func (r *SQLRepo) Get(ctx context.Context, id string) (Call, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+callColumns+` FROM calls WHERE call_id = $1`), id)
	return scanCall(row)
}

func (r *SQLRepo) List(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+callColumns+` FROM calls ORDER BY updated_at DESC, call_id ASC LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(s scanner) (Call, error) {
	var (
		c         Call
		status    string
		duration  sql.NullInt64
		price     sql.NullString
		startTime sql.NullTime
		endTime   sql.NullTime
	)
	err := s.Scan(&c.ID, &c.From, &c.To, &status, &duration, &price, &c.PriceUnit, &startTime, &endTime, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("calls: scan: %w", err)
	}
	c.Status = CallStatus(status)
	if duration.Valid {
		d := int(duration.Int64)
		c.Duration = &d
	}
	if price.Valid {
		p := price.String
		c.Price = &p
	}
	if startTime.Valid {
		t := startTime.Time
		c.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	return c, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
