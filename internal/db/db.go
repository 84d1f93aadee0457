// Package db provides PostgreSQL storage for Blitz projects, websites, jobs, content and users.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// DatabaseName returns the name of the connected database.
func (db *DB) DatabaseName() string {
	return db.pool.Config().ConnConfig.Database
}

// ErrNotFound is returned by mutations that target a row that does not exist.
var ErrNotFound = errors.New("not found")

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// noRows reports whether err signals an empty single-row result.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// filter accumulates WHERE clauses with positional arguments.
type filter struct {
	where string
	args  []any
}

func (f *filter) add(clause string, value any) {
	f.args = append(f.args, value)
	f.where += " AND " + fmt.Sprintf(clause, len(f.args))
}

// next returns the placeholder for an argument appended after the filter's own.
func (f *filter) next(value any) string {
	f.args = append(f.args, value)
	return fmt.Sprintf("$%d", len(f.args))
}
