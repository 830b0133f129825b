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

// AvailabilityRepo persists the derived availability cache. Implements
// services.AvailabilityRepo.
type AvailabilityRepo struct {
	db *sqlx.DB
}

func NewAvailabilityRepo(db *sqlx.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) Get(ctx context.Context, tenantID, teamID string) (*models.TeamAvailability, error) {
	var av models.TeamAvailability
	query := `SELECT * FROM team_availability WHERE tenant_id = $1 AND team_id = $2`

	err := r.db.GetContext(ctx, &av, query, tenantID, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team availability: %w", err)
	}
	return &av, nil
}

func (r *AvailabilityRepo) Upsert(ctx context.Context, av *models.TeamAvailability) error {
	query := `
		INSERT INTO team_availability (
			id, tenant_id, team_id, status, status_since,
			working_hours, unavailable_periods, skills, updated_at
		) VALUES (
			:id, :tenant_id, :team_id, :status, :status_since,
			:working_hours, :unavailable_periods, :skills, :updated_at
		)
		ON CONFLICT (tenant_id, team_id) DO UPDATE SET
			status = EXCLUDED.status,
			status_since = EXCLUDED.status_since,
			working_hours = EXCLUDED.working_hours,
			unavailable_periods = EXCLUDED.unavailable_periods,
			skills = EXCLUDED.skills,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, av); err != nil {
		return fmt.Errorf("failed to upsert team availability: %w", err)
	}
	return nil
}
