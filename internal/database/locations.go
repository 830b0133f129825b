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

// LocationRepo persists the single live location row per (tenant, team).
// Implements services.LocationRepo; writes go through a compare-and-set on
// the version column.
type LocationRepo struct {
	db *sqlx.DB
}

func NewLocationRepo(db *sqlx.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) Get(ctx context.Context, tenantID, teamID string) (*models.TeamLocationRecord, error) {
	var rec models.TeamLocationRecord
	query := `SELECT * FROM team_locations
	          WHERE tenant_id = $1 AND team_id = $2 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &rec, query, tenantID, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team location: %w", err)
	}
	return &rec, nil
}

func (r *LocationRepo) Create(ctx context.Context, rec *models.TeamLocationRecord) error {
	rec.Version = 1
	query := `
		INSERT INTO team_locations (
			id, tenant_id, team_id, team_name,
			latitude, longitude, address, accuracy, altitude, speed, heading,
			status, connectivity, battery_level, current_task_id, device_id, app_version,
			history, last_update, status_changed_at, version, created_at
		) VALUES (
			:id, :tenant_id, :team_id, :team_name,
			:latitude, :longitude, :address, :accuracy, :altitude, :speed, :heading,
			:status, :connectivity, :battery_level, :current_task_id, :device_id, :app_version,
			:history, :last_update, :status_changed_at, :version, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to create team location: %w", err)
	}
	return nil
}

func (r *LocationRepo) Update(ctx context.Context, rec *models.TeamLocationRecord, expectedVersion int64) error {
	rec.Version = expectedVersion
	query := `
		UPDATE team_locations SET
			team_name = :team_name,
			latitude = :latitude, longitude = :longitude, address = :address,
			accuracy = :accuracy, altitude = :altitude, speed = :speed, heading = :heading,
			status = :status, connectivity = :connectivity, battery_level = :battery_level,
			current_task_id = :current_task_id, device_id = :device_id, app_version = :app_version,
			history = :history, last_update = :last_update, status_changed_at = :status_changed_at,
			version = version + 1
		WHERE tenant_id = :tenant_id AND team_id = :team_id
		  AND version = :version AND deleted_at IS NULL`

	result, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to update team location: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// the row either moved underneath us or is gone
		if _, getErr := r.Get(ctx, rec.TenantID, rec.TeamID); getErr != nil {
			return services.ErrRecordNotFound
		}
		return services.ErrConcurrencyConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

func (r *LocationRepo) List(ctx context.Context, tenantID string, filters services.LocationFilters) ([]models.TeamLocationRecord, error) {
	query := `SELECT * FROM team_locations WHERE tenant_id = $1 AND deleted_at IS NULL`
	args := []interface{}{tenantID}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.TaskID != nil {
		args = append(args, *filters.TaskID)
		query += fmt.Sprintf(" AND current_task_id = $%d", len(args))
	}
	if filters.UpdatedSince != nil {
		args = append(args, *filters.UpdatedSince)
		query += fmt.Sprintf(" AND last_update >= $%d", len(args))
	}
	query += " ORDER BY last_update DESC"

	var records []models.TeamLocationRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list team locations: %w", err)
	}
	return records, nil
}

func (r *LocationRepo) Stats(ctx context.Context, tenantID string, staleBefore int64) (*services.LocationStats, error) {
	stats := &services.LocationStats{
		ByStatus:       map[string]int{},
		ByConnectivity: map[string]int{},
	}

	summary := struct {
		Total      int     `db:"total"`
		Stale      int     `db:"stale"`
		AvgBattery float64 `db:"avg_battery"`
	}{}
	err := r.db.GetContext(ctx, &summary, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE last_update < $2) AS stale,
		       COALESCE(AVG(battery_level), 0) AS avg_battery
		FROM team_locations
		WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to get location stats: %w", err)
	}
	stats.TotalTeams = summary.Total
	stats.StaleTeams = summary.Stale
	stats.AverageBattery = summary.AvgBattery

	rows, err := r.db.QueryxContext(ctx, `
		SELECT status, connectivity, COUNT(*) AS n
		FROM team_locations
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY status, connectivity`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, connectivity string
		var n int
		if err := rows.Scan(&status, &connectivity, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.ByStatus[status] += n
		stats.ByConnectivity[connectivity] += n
	}
	return stats, rows.Err()
}

func (r *LocationRepo) SoftDelete(ctx context.Context, tenantID, teamID string, now int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE team_locations SET deleted_at = $3
		WHERE tenant_id = $1 AND team_id = $2 AND deleted_at IS NULL`,
		tenantID, teamID, now)
	if err != nil {
		return fmt.Errorf("failed to delete team location: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return services.ErrRecordNotFound
	}
	return nil
}
