package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
)

// TaskRepo reads from the task collaborator's table. Implements
// services.TaskReader and services.TaskLocator.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// TasksInRange returns tasks scheduled in [from, to) for any of the given
// team keys. Callers pass the whole candidate-key set so rows written under
// either identifier still match.
func (r *TaskRepo) TasksInRange(ctx context.Context, tenantID string, teamIDs []string, from, to int64) ([]models.Task, error) {
	var tasks []models.Task
	query := `SELECT * FROM tasks
	          WHERE tenant_id = $1 AND team_id = ANY($2)
	            AND scheduled_date >= $3 AND scheduled_date < $4
	          ORDER BY scheduled_date ASC`

	err := r.db.SelectContext(ctx, &tasks, query, tenantID, pq.Array(teamIDs), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepo) TaskByID(ctx context.Context, tenantID, taskID string) (*models.Task, error) {
	var task models.Task
	query := `SELECT * FROM tasks WHERE tenant_id = $1 AND id = $2`

	err := r.db.GetContext(ctx, &task, query, tenantID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}
