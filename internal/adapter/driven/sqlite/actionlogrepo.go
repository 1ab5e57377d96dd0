package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActionLogStore = (*ActionLogRepo)(nil)

// ActionLogRepo is the SQLite implementation of the action log ports.
type ActionLogRepo struct {
	db *DB
}

// NewActionLogRepo creates a new ActionLogRepo.
func NewActionLogRepo(db *DB) *ActionLogRepo {
	return &ActionLogRepo{db: db}
}

// Record appends rec. An empty ID is replaced with a random UUID.
func (r *ActionLogRepo) Record(ctx context.Context, rec model.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const query = `INSERT INTO action_log
		(id, tenant_id, domain, vendor, operation, started_at, duration_ms, status, error_kind, attempts, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		rec.ID, rec.TenantID, string(rec.Domain), rec.Vendor, rec.Operation,
		formatTime(rec.StartedAt), rec.Duration.Milliseconds(), string(rec.Status),
		string(rec.ErrorKind), rec.Attempts, rec.Message,
	)
	if err != nil {
		return fmt.Errorf("record action %s %s: %w", rec.TenantID, rec.Operation, err)
	}
	return nil
}

// List returns up to limit records for tenantID, newest first. A
// non-positive limit means 50.
func (r *ActionLogRepo) List(ctx context.Context, tenantID string, limit int) ([]model.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, tenant_id, domain, vendor, operation, started_at, duration_ms, status, error_kind, attempts, message
		FROM action_log WHERE tenant_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		var domain, startedAt, status, kind string
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.TenantID, &domain, &rec.Vendor, &rec.Operation,
			&startedAt, &durationMS, &status, &kind, &rec.Attempts, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.Domain = model.Domain(domain)
		rec.Status = model.ActionStatus(status)
		rec.ErrorKind = model.ErrorKind(kind)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.StartedAt, err = parseTime(startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at for action %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}
