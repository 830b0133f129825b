package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
)

// RouteProgressRepo persists per-day route progress rows. Implements
// services.RouteProgressRepo.
type RouteProgressRepo struct {
	db *sqlx.DB
}

func NewRouteProgressRepo(db *sqlx.DB) *RouteProgressRepo {
	return &RouteProgressRepo{db: db}
}

func (r *RouteProgressRepo) GetByDay(ctx context.Context, tenantID, teamID, routeDate string) (*models.RouteProgress, error) {
	var rp models.RouteProgress
	query := `SELECT * FROM route_progress
	          WHERE tenant_id = $1 AND team_id = $2 AND route_date = $3`

	err := r.db.GetContext(ctx, &rp, query, tenantID, teamID, routeDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route progress: %w", err)
	}
	return &rp, nil
}

func (r *RouteProgressRepo) Create(ctx context.Context, rp *models.RouteProgress) error {
	rp.Version = 1
	query := `
		INSERT INTO route_progress (
			id, tenant_id, team_id, route_date,
			stops, route_status, current_stop_index, completed_count,
			estimated_completion_time, progress_updates, version, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :team_id, :route_date,
			:stops, :route_status, :current_stop_index, :completed_count,
			:estimated_completion_time, :progress_updates, :version, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, rp); err != nil {
		return fmt.Errorf("failed to create route progress: %w", err)
	}
	return nil
}

func (r *RouteProgressRepo) Update(ctx context.Context, rp *models.RouteProgress, expectedVersion int64) error {
	rp.Version = expectedVersion
	query := `
		UPDATE route_progress SET
			stops = :stops, route_status = :route_status,
			current_stop_index = :current_stop_index, completed_count = :completed_count,
			estimated_completion_time = :estimated_completion_time,
			progress_updates = :progress_updates, updated_at = :updated_at,
			version = version + 1
		WHERE tenant_id = :tenant_id AND team_id = :team_id
		  AND route_date = :route_date AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, rp)
	if err != nil {
		return fmt.Errorf("failed to update route progress: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := r.GetByDay(ctx, rp.TenantID, rp.TeamID, rp.RouteDate); getErr != nil {
			return services.ErrRecordNotFound
		}
		return services.ErrConcurrencyConflict
	}
	rp.Version = expectedVersion + 1
	return nil
}
