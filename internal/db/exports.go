package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/blitz/internal/types"
)

const exportColumns = `id, user_id, project_id, export_type, filename, filters, status, progress, file_size, row_count,
	error_message, created_at, completed_at, expires_at`

func scanExport(row pgx.Row) (*types.Export, error) {
	var e types.Export
	var filters []byte
	err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.ExportType, &e.Filename, &filters, &e.Status, &e.Progress,
		&e.FileSize, &e.RowCount, &e.ErrorMessage, &e.CreatedAt, &e.CompletedAt, &e.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		e.Filters = json.RawMessage(filters)
	}
	return &e, nil
}

// ExportInput holds a new export request.
type ExportInput struct {
	UserID     uuid.UUID
	ProjectID  *uuid.UUID
	ExportType string
	Filename   string
	Filters    json.RawMessage
}

// CreateExport inserts a pending export.
func (db *DB) CreateExport(ctx context.Context, in *ExportInput) (*types.Export, error) {
	e, err := scanExport(db.pool.QueryRow(ctx,
		`INSERT INTO exports (user_id, project_id, export_type, filename, filters)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+exportColumns,
		in.UserID, in.ProjectID, in.ExportType, in.Filename, jsonOrEmpty(in.Filters),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create export: %w", err)
	}
	return e, nil
}

// SetExportProcessing marks an export as being generated.
func (db *DB) SetExportProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `UPDATE exports SET status = 'processing', progress = 10 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update export: %w", err)
	}
	return nil
}

// CompleteExport stores the generated file.
func (db *DB) CompleteExport(ctx context.Context, id uuid.UUID, content []byte, rowCount int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE exports SET status = 'completed', progress = 100, content = $2, file_size = $3, row_count = $4,
		   completed_at = NOW()
		 WHERE id = $1`,
		id, content, int64(len(content)), rowCount)
	if err != nil {
		return fmt.Errorf("failed to complete export: %w", err)
	}
	return nil
}

// FailExport records a generation failure.
func (db *DB) FailExport(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE exports SET status = 'failed', error_message = $2, completed_at = NOW() WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("failed to fail export: %w", err)
	}
	return nil
}

// GetExport retrieves export metadata. Returns nil, nil when absent.
func (db *DB) GetExport(ctx context.Context, id uuid.UUID) (*types.Export, error) {
	e, err := scanExport(db.pool.QueryRow(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	return e, nil
}

// GetExportContent returns the stored file bytes, nil when none were generated.
func (db *DB) GetExportContent(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var content []byte
	err := db.pool.QueryRow(ctx, `SELECT content FROM exports WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get export content: %w", err)
	}
	return content, nil
}

// ListExports returns one page of a user's exports (all users when userID is nil), newest first.
func (db *DB) ListExports(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]types.Export, int, error) {
	f := filter{}
	if userID != nil {
		f.add("user_id = $%d", *userID)
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exports WHERE 1=1`+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count exports: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+exportColumns+` FROM exports WHERE 1=1`+f.where+
			` ORDER BY created_at DESC LIMIT `+f.next(limit)+` OFFSET `+f.next(offset), f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	exports := []types.Export{}
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, *e)
	}
	return exports, total, rows.Err()
}

// DeleteExpiredExports removes exports past their retention window.
func (db *DB) DeleteExpiredExports(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM exports WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired exports: %w", err)
	}
	return tag.RowsAffected(), nil
}
