package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// AuditRepo appends to audit_logs.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Record inserts an entry.  Detail must be a JSON document or empty.
func (r *AuditRepo) Record(ctx context.Context, e model.AuditLog) error {
	var actor sql.NullInt64
	if e.ActorUserID != nil {
		actor = sql.NullInt64{Int64: int64(*e.ActorUserID), Valid: true}
	}
	detail := e.Detail
	if detail == "" {
		detail = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_logs (actor_user_id, action, entity, entity_id, detail) VALUES (?, ?, ?, ?, ?)",
		actor, e.Action, e.Entity, e.EntityID, detail)
	return err
}

// ListRecent returns the newest entries, at most limit.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, actor_user_id, action, entity, entity_id, detail, created_at FROM audit_logs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditLog{}
	for rows.Next() {
		var (
			e     model.AuditLog
			actor sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			id := uint64(actor.Int64)
			e.ActorUserID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
