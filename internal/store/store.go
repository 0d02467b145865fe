// Package store opens the optional SQL backing store and applies schema migrations.
//
// Two dialects are supported: postgres (pgx stdlib driver) for shared deployments and sqlite
// (modernc, pure Go) for single-node installs. Queries are written with $N placeholders and
// rebound for sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"call-assistant/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is a migrated database handle plus the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects with the driver matching dialect and runs pending migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var driver string
	pool := utils.SQLPoolConfig{}
	switch dialect {
	case DialectPostgres:
		driver = "pgx"
	case DialectSQLite:
		driver = "sqlite"
		// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
		pool.MaxOpenConns = 1
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}

	db, err := utils.OpenSQL(ctx, driver, dsn, pool)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}
	out := &DB{DB: db, Dialect: dialect}
	if err := out.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return out, nil
}

// Migrate applies embedded migrations with goose.
func (d *DB) Migrate(ctx context.Context) error {
	if d == nil || d.DB == nil {
		return errors.New("store: db is nil")
	}
	provider, err := goose.NewProvider(gooseDialect(d.Dialect), d.DB, mustSub(migrations, "migrations"))
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Rebind converts $N placeholders to the dialect's form.
func (d *DB) Rebind(query string) string {
	if d == nil || d.Dialect != DialectSQLite {
		return query
	}
	return rebindQuestion(query)
}

func rebindQuestion(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		if _, err := strconv.Atoi(query[i+1 : j]); err != nil {
			b.WriteString(query[i:j])
		} else {
			b.WriteByte('?')
		}
		i = j - 1
	}
	return b.String()
}

func gooseDialect(d Dialect) goose.Dialect {
	if d == DialectSQLite {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}
