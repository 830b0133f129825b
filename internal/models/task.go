package models

// TaskStatus mirrors the task collaborator's status values
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task is the read-only view of a scheduled field assignment, owned by the
// task collaborator. The tracking engine never creates or deletes tasks.
type Task struct {
	ID                 string     `json:"id" db:"id"`
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	TeamID             string     `json:"team_id" db:"team_id"`
	Status             TaskStatus `json:"status" db:"status"`
	ScheduledDate      int64      `json:"scheduled_date" db:"scheduled_date"`
	EstimatedDuration  int        `json:"estimated_duration" db:"estimated_duration"` // minutes
	ActualStart        *int64     `json:"actual_start,omitempty" db:"actual_start"`
	ActualDuration     *int       `json:"actual_duration,omitempty" db:"actual_duration"` // minutes
	SatisfactionRating *float64   `json:"satisfaction_rating,omitempty" db:"satisfaction_rating"`
	Latitude           *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude          *float64   `json:"longitude,omitempty" db:"longitude"`
	Address            *string    `json:"address,omitempty" db:"address"`
}
