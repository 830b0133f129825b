package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LocationStatus represents a team's reported operational status
type LocationStatus string

const (
	LocationStatusActive    LocationStatus = "ACTIVE"
	LocationStatusInactive  LocationStatus = "INACTIVE"
	LocationStatusBreak     LocationStatus = "BREAK"
	LocationStatusOffline   LocationStatus = "OFFLINE"
	LocationStatusEmergency LocationStatus = "EMERGENCY"
)

// Connectivity represents the device's network state
type Connectivity string

const (
	ConnectivityOnline  Connectivity = "ONLINE"
	ConnectivityOffline Connectivity = "OFFLINE"
	ConnectivityPoor    Connectivity = "POOR"
)

// MaxHistoryEntries bounds the per-team movement history ring.
// Oldest entries are evicted FIFO once the ring is full.
const MaxHistoryEntries = 50

// HistoryEntry is one prior fix retained in the movement history ring
type HistoryEntry struct {
	Timestamp int64    `json:"timestamp"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// HistoryEntries is stored as JSONB, ordered oldest first
type HistoryEntries []HistoryEntry

func (h HistoryEntries) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *HistoryEntries) Scan(src interface{}) error {
	if src == nil {
		*h = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for history: %T", src)
	}
	return json.Unmarshal(b, h)
}

// TeamLocationRecord is the single live location record per (tenant, team).
// TeamID always holds the canonical key from the identity resolver.
// The record is never hard-deleted; decommissioned teams get deleted_at set.
type TeamLocationRecord struct {
	ID              string         `json:"id" db:"id"`
	TenantID        string         `json:"tenant_id" db:"tenant_id"`
	TeamID          string         `json:"team_id" db:"team_id"`
	TeamName        string         `json:"team_name" db:"team_name"`
	Latitude        float64        `json:"latitude" db:"latitude"`
	Longitude       float64        `json:"longitude" db:"longitude"`
	Address         *string        `json:"address,omitempty" db:"address"`
	Accuracy        *float64       `json:"accuracy,omitempty" db:"accuracy"`
	Altitude        *float64       `json:"altitude,omitempty" db:"altitude"`
	Speed           *float64       `json:"speed,omitempty" db:"speed"`     // km/h
	Heading         *float64       `json:"heading,omitempty" db:"heading"` // degrees, [0, 360)
	Status          LocationStatus `json:"status" db:"status"`
	Connectivity    Connectivity   `json:"connectivity" db:"connectivity"`
	BatteryLevel    *int           `json:"battery_level,omitempty" db:"battery_level"`
	CurrentTaskID   *string        `json:"current_task_id,omitempty" db:"current_task_id"`
	DeviceID        *string        `json:"device_id,omitempty" db:"device_id"`
	AppVersion      *string        `json:"app_version,omitempty" db:"app_version"`
	History         HistoryEntries `json:"history" db:"history"`
	LastUpdate      int64          `json:"last_update" db:"last_update"`
	StatusChangedAt *int64         `json:"status_changed_at,omitempty" db:"status_changed_at"`
	Version         int64          `json:"-" db:"version"`
	DeletedAt       *int64         `json:"-" db:"deleted_at"`
	CreatedAt       int64          `json:"created_at" db:"created_at"`
}

// ValidStatus reports whether s is a known location status
func ValidStatus(s LocationStatus) bool {
	switch s {
	case LocationStatusActive, LocationStatusInactive, LocationStatusBreak,
		LocationStatusOffline, LocationStatusEmergency:
		return true
	}
	return false
}

// ValidConnectivity reports whether c is a known connectivity state
func ValidConnectivity(c Connectivity) bool {
	switch c {
	case ConnectivityOnline, ConnectivityOffline, ConnectivityPoor:
		return true
	}
	return false
}
