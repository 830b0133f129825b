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

// TeamRepo reads the tenant roster. Implements services.TeamFinder.
type TeamRepo struct {
	db *sqlx.DB
}

func NewTeamRepo(db *sqlx.DB) *TeamRepo {
	return &TeamRepo{db: db}
}

func (r *TeamRepo) FindByLegacyID(ctx context.Context, tenantID, legacyID string) (*models.Team, error) {
	var team models.Team
	query := `SELECT * FROM teams WHERE tenant_id = $1 AND legacy_id = $2`

	err := r.db.GetContext(ctx, &team, query, tenantID, legacyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by legacy id: %w", err)
	}
	return &team, nil
}

// List returns the full roster for a tenant, active teams first.
func (r *TeamRepo) List(ctx context.Context, tenantID string) ([]models.Team, error) {
	teams := []models.Team{}
	query := `SELECT * FROM teams WHERE tenant_id = $1 ORDER BY status, name`

	if err := r.db.SelectContext(ctx, &teams, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (r *TeamRepo) FindByID(ctx context.Context, tenantID, id string) (*models.Team, error) {
	var team models.Team
	query := `SELECT * FROM teams WHERE tenant_id = $1 AND id = $2`

	err := r.db.GetContext(ctx, &team, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return &team, nil
}
