package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StopStatus represents the state of a single route stop.
// pending -> in_progress -> completed | skipped | cancelled (all terminal)
type StopStatus string

const (
	StopStatusPending    StopStatus = "pending"
	StopStatusInProgress StopStatus = "in_progress"
	StopStatusCompleted  StopStatus = "completed"
	StopStatusSkipped    StopStatus = "skipped"
	StopStatusCancelled  StopStatus = "cancelled"
)

// RouteStatus represents the state of the whole route for a day.
// PENDING -> IN_PROGRESS -> COMPLETED | CANCELLED, PAUSED reachable from
// IN_PROGRESS and back.
type RouteStatus string

const (
	RouteStatusPending    RouteStatus = "PENDING"
	RouteStatusInProgress RouteStatus = "IN_PROGRESS"
	RouteStatusCompleted  RouteStatus = "COMPLETED"
	RouteStatusPaused     RouteStatus = "PAUSED"
	RouteStatusCancelled  RouteStatus = "CANCELLED"
)

// RouteStop is one task/location entry within a day's route
type RouteStop struct {
	TaskID            string     `json:"task_id"`
	ScheduledOrder    int        `json:"scheduled_order"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	Address           *string    `json:"address,omitempty"`
	EstimatedStart    int64      `json:"estimated_start"`
	EstimatedEnd      int64      `json:"estimated_end"`
	ActualStart       *int64     `json:"actual_start,omitempty"`
	ActualEnd         *int64     `json:"actual_end,omitempty"`
	Status            StopStatus `json:"status"`
	EstimatedDuration int        `json:"estimated_duration"` // minutes
	ActualDuration    *int       `json:"actual_duration,omitempty"`
	DelayReasons      []string   `json:"delay_reasons,omitempty"`
}

// RouteStops is stored as JSONB, ordered by ScheduledOrder
type RouteStops []RouteStop

func (s RouteStops) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *RouteStops) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for route stops: %T", src)
	}
	return json.Unmarshal(b, s)
}

// ProgressUpdate is one append-only entry in the route's progress log
type ProgressUpdate struct {
	Timestamp int64    `json:"timestamp"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Summary   string   `json:"summary"`
}

// ProgressUpdates is stored as JSONB
type ProgressUpdates []ProgressUpdate

func (p ProgressUpdates) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *ProgressUpdates) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for progress updates: %T", src)
	}
	return json.Unmarshal(b, p)
}

// RouteProgress is the per-team, per-calendar-day route record.
// Singleton per (tenant, team, route_date); TeamID is the canonical key.
type RouteProgress struct {
	ID                      string          `json:"id" db:"id"`
	TenantID                string          `json:"tenant_id" db:"tenant_id"`
	TeamID                  string          `json:"team_id" db:"team_id"`
	RouteDate               string          `json:"route_date" db:"route_date"` // YYYY-MM-DD
	Stops                   RouteStops      `json:"stops" db:"stops"`
	RouteStatus             RouteStatus     `json:"route_status" db:"route_status"`
	CurrentStopIndex        int             `json:"current_stop_index" db:"current_stop_index"`
	CompletedCount          int             `json:"completed_count" db:"completed_count"`
	EstimatedCompletionTime *int64          `json:"estimated_completion_time,omitempty" db:"estimated_completion_time"`
	ProgressUpdates         ProgressUpdates `json:"progress_updates" db:"progress_updates"`
	Version                 int64           `json:"-" db:"version"`
	CreatedAt               int64           `json:"created_at" db:"created_at"`
	UpdatedAt               int64           `json:"updated_at" db:"updated_at"`
}
