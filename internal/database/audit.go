package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fieldops-backend/internal/models"
)

// AuditRepo appends to the audit_events table. Implements services.AuditRepo.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, ev *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, tenant_id, team_id, event, details, created_at)
		VALUES (:id, :tenant_id, :team_id, :event, :details, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
