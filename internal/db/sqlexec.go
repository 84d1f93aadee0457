package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jonathan/blitz/internal/sqlguard"
	"github.com/jonathan/blitz/internal/types"
)

// consoleTimeout bounds each console statement.
const consoleTimeout = "30s"

// passthroughRowCap limits unwrapped statements (EXPLAIN, SHOW) that cannot be paginated.
const passthroughRowCap = 1000

// SQLResult is the outcome of one console statement.
type SQLResult struct {
	Kind       sqlguard.Kind
	Columns    []string
	Rows       [][]any
	Pagination types.Pagination
	RowCount   int
	Affected   int64
}

// ExecuteSQL runs an admin console statement. Result-set statements are paginated by
// re-running them inside `SELECT * FROM (...) AS q LIMIT/OFFSET`; everything else runs in a
// transaction and reports rows affected. Callers are responsible for the blocked and
// dangerous checks.
func (db *DB) ExecuteSQL(ctx context.Context, query string, page, perPage int) (*SQLResult, error) {
	stmt := sqlguard.StripTerminator(query)
	if stmt == "" {
		return nil, fmt.Errorf("empty statement")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL statement_timeout = '`+consoleTimeout+`'`); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	var res *SQLResult
	switch sqlguard.Classify(stmt) {
	case sqlguard.Select:
		res, err = selectPage(ctx, tx, stmt, page, perPage)
	case sqlguard.Passthrough:
		res, err = selectAll(ctx, tx, stmt)
	default:
		tag, execErr := tx.Exec(ctx, stmt)
		if execErr != nil {
			return nil, execErr
		}
		res = &SQLResult{Kind: sqlguard.Modify, Affected: tag.RowsAffected()}
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return res, nil
}

func selectPage(ctx context.Context, tx pgx.Tx, stmt string, page, perPage int) (*SQLResult, error) {
	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM (`+stmt+`) AS q`).Scan(&total); err != nil {
		return nil, err
	}
	p := types.NewPagination(page, perPage, total)

	rows, err := tx.Query(ctx, `SELECT * FROM (`+stmt+`) AS q LIMIT $1 OFFSET $2`, p.PerPage, p.Offset())
	if err != nil {
		return nil, err
	}
	columns, data, err := collect(rows, p.PerPage)
	if err != nil {
		return nil, err
	}
	return &SQLResult{Kind: sqlguard.Select, Columns: columns, Rows: data, Pagination: p, RowCount: len(data)}, nil
}

func selectAll(ctx context.Context, tx pgx.Tx, stmt string) (*SQLResult, error) {
	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	columns, data, err := collect(rows, passthroughRowCap)
	if err != nil {
		return nil, err
	}
	n := len(data)
	return &SQLResult{
		Kind:       sqlguard.Passthrough,
		Columns:    columns,
		Rows:       data,
		Pagination: types.NewPagination(1, max(n, 1), n),
		RowCount:   n,
	}, nil
}

func collect(rows pgx.Rows, limit int) ([]string, [][]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	data := [][]any{}
	for rows.Next() {
		if len(data) >= limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = jsonValue(v)
		}
		data = append(data, row)
	}
	return columns, data, rows.Err()
}

// jsonValue converts driver values to something encoding/json renders readably.
func jsonValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		if utf8.Valid(t) {
			return string(t)
		}
		return base64.StdEncoding.EncodeToString(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case *big.Int:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
