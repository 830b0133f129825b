package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AvailabilityStatus is the derived availability state for a team
type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "AVAILABLE"
	AvailabilityBusy      AvailabilityStatus = "BUSY"
	AvailabilityBreak     AvailabilityStatus = "BREAK"
	AvailabilityOffline   AvailabilityStatus = "OFFLINE"
)

// UnavailablePeriod is a planned window during which the team is not schedulable
type UnavailablePeriod struct {
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// UnavailablePeriods is stored as JSONB
type UnavailablePeriods []UnavailablePeriod

func (u UnavailablePeriods) Value() (driver.Value, error) {
	if u == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(u)
}

func (u *UnavailablePeriods) Scan(src interface{}) error {
	if src == nil {
		*u = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for unavailable periods: %T", src)
	}
	return json.Unmarshal(b, u)
}

// TeamAvailability is the cached availability record, re-derived whenever the
// team's location status changes. One row per (tenant, team).
type TeamAvailability struct {
	ID                 string             `json:"id" db:"id"`
	TenantID           string             `json:"tenant_id" db:"tenant_id"`
	TeamID             string             `json:"team_id" db:"team_id"`
	Status             AvailabilityStatus `json:"status" db:"status"`
	StatusSince        int64              `json:"status_since" db:"status_since"`
	WorkingHours       WorkingHours       `json:"working_hours" db:"working_hours"`
	UnavailablePeriods UnavailablePeriods `json:"unavailable_periods" db:"unavailable_periods"`
	Skills             StringList         `json:"skills" db:"skills"`
	UpdatedAt          int64              `json:"updated_at" db:"updated_at"`
}

// TodayAvailability is the computed availability for the current day
type TodayAvailability struct {
	TeamID           string       `json:"team_id"`
	TeamName         string       `json:"team_name"`
	Date             string       `json:"date"`
	Status           string       `json:"status"` // available | busy | unavailable | offline
	WorkingHours     WorkingHours `json:"working_hours"`
	ScheduledTasks   int          `json:"scheduled_tasks"`
	CompletedTasks   int          `json:"completed_tasks"`
	InProgressTasks  int          `json:"in_progress_tasks"`
	MaxDailyCapacity int          `json:"max_daily_capacity"`
	Utilization      float64      `json:"utilization"` // percent, may exceed 100
}

// DayAvailability classifies one day of the weekly outlook
type DayAvailability struct {
	Date           string `json:"date"`
	Status         string `json:"status"` // busy | scheduled | available
	ScheduledTasks int    `json:"scheduled_tasks"`
}

// PerformanceMetrics are computed over a trailing 30-day window of completed
// tasks. All values degrade to 0 when no qualifying tasks exist.
type PerformanceMetrics struct {
	Efficiency          float64 `json:"efficiency"`            // percent, capped at 200 per task
	CompletionRate      float64 `json:"completion_rate"`       // percent
	AverageResponseTime float64 `json:"average_response_time"` // minutes, capped at 120 per task
	Rating              float64 `json:"rating"`
}

// AvailabilityReport is the full availability response for one team
type AvailabilityReport struct {
	Today       TodayAvailability  `json:"today"`
	Week        []DayAvailability  `json:"week"`
	Performance PerformanceMetrics `json:"performance"`
}
