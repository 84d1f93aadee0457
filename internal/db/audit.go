package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
	"golang.org/x/sync/errgroup"
)

// AuditEntry is a new audit log row.
type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
}

// InsertAuditLog records an action.
func (db *DB) InsertAuditLog(ctx context.Context, e *AuditEntry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = b
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO audit_logs (user_id, action, resource_type, resource_id, details, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.Action, e.ResourceType, e.ResourceID, details, e.IPAddress, e.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// AuditFilters narrows ListAuditLogs.
type AuditFilters struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	Limit        int
	Offset       int
}

// ListAuditLogs returns one page of audit entries, newest first, with the total.
func (db *DB) ListAuditLogs(ctx context.Context, filters AuditFilters) ([]types.AuditLog, int, error) {
	f := filter{}
	if filters.UserID != nil {
		f.add("user_id = $%d", *filters.UserID)
	}
	if filters.Action != "" {
		f.add("action = $%d", filters.Action)
	}
	if filters.ResourceType != "" {
		f.add("resource_type = $%d", filters.ResourceType)
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE 1=1`+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
		 FROM audit_logs WHERE 1=1`+f.where+
			` ORDER BY created_at DESC LIMIT `+f.next(filters.Limit)+` OFFSET `+f.next(filters.Offset), f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []types.AuditLog{}
	for rows.Next() {
		var l types.AuditLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &details,
			&l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.Details = json.RawMessage(details)
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// SystemStatus counts every table and groups the last 24 hours of audit activity by action.
func (db *DB) SystemStatus(ctx context.Context) (*types.SystemStatus, error) {
	status := &types.SystemStatus{
		Counts:         make(map[string]int64, len(Tables)),
		RecentActivity: map[string]int64{},
		CheckedAt:      time.Now().UTC(),
	}
	counts := make([]int64, len(Tables))

	g, gctx := errgroup.WithContext(ctx)
	for i, table := range Tables {
		g.Go(func() error {
			// Table names come from the fixed Tables list.
			return db.pool.QueryRow(gctx, `SELECT COUNT(*) FROM `+table).Scan(&counts[i])
		})
	}
	g.Go(func() error {
		return db.pool.QueryRow(gctx,
			`SELECT COUNT(*) FROM scraping_jobs WHERE status IN ('pending', 'running')`).Scan(&status.ActiveJobs)
	})
	var activity map[string]int64
	g.Go(func() error {
		rows, err := db.pool.Query(gctx,
			`SELECT action, COUNT(*) FROM audit_logs WHERE created_at > NOW() - INTERVAL '24 hours' GROUP BY action`)
		if err != nil {
			return err
		}
		defer rows.Close()
		activity = map[string]int64{}
		for rows.Next() {
			var action string
			var n int64
			if err := rows.Scan(&action, &n); err != nil {
				return err
			}
			activity[action] = n
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute system status: %w", err)
	}
	for i, table := range Tables {
		status.Counts[table] = counts[i]
	}
	status.RecentActivity = activity
	return status, nil
}
