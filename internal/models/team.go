package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TeamStatus represents the lifecycle status of a team roster entry
type TeamStatus string

const (
	TeamStatusActive   TeamStatus = "active"
	TeamStatusInactive TeamStatus = "inactive"
)

// TeamMember is one crew member on a team roster
type TeamMember struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
}

// TeamMembers is stored as JSONB
type TeamMembers []TeamMember

func (m TeamMembers) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *TeamMembers) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for team members: %T", src)
	}
	return json.Unmarshal(b, m)
}

// WorkingHours defines the daily work window for a team ("08:00" - "17:00")
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h WorkingHours) Value() (driver.Value, error) {
	return json.Marshal(h)
}

func (h *WorkingHours) Scan(src interface{}) error {
	if src == nil {
		*h = WorkingHours{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for working hours: %T", src)
	}
	return json.Unmarshal(b, h)
}

// VehicleInfo holds the vehicle assigned to a team
type VehicleInfo struct {
	PlateNumber string `json:"plate_number,omitempty"`
	Model       string `json:"model,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
}

func (v VehicleInfo) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VehicleInfo) Scan(src interface{}) error {
	if src == nil {
		*v = VehicleInfo{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for vehicle info: %T", src)
	}
	return json.Unmarshal(b, v)
}

// Team represents a field crew roster entry. Teams migrated from the legacy
// system carry a legacy_id; that id is the canonical storage key for all
// location/route/availability records (see services.IdentityResolver).
type Team struct {
	ID               string        `json:"id" db:"id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	LegacyID         *string       `json:"legacy_id,omitempty" db:"legacy_id"`
	Name             string        `json:"name" db:"name"`
	Status           TeamStatus    `json:"status" db:"status"`
	Members          TeamMembers   `json:"members" db:"members"`
	WorkingHours     *WorkingHours `json:"working_hours,omitempty" db:"working_hours"`
	MaxDailyCapacity *int          `json:"max_daily_capacity,omitempty" db:"max_daily_capacity"`
	EmergencyContact *string       `json:"emergency_contact,omitempty" db:"emergency_contact"`
	Vehicle          *VehicleInfo  `json:"vehicle,omitempty" db:"vehicle"`
	Skills           StringList    `json:"skills" db:"skills"`
	CreatedAt        int64         `json:"created_at" db:"created_at"`
	UpdatedAt        int64         `json:"updated_at" db:"updated_at"`
}

// CanonicalKey returns the storage key used by every location/route record
// for this team: the legacy id when present, otherwise the internal id.
func (t *Team) CanonicalKey() string {
	if t.LegacyID != nil && *t.LegacyID != "" {
		return *t.LegacyID
	}
	return t.ID
}

// StringList is a JSONB-backed string slice
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for string list: %T", src)
	}
	return json.Unmarshal(b, l)
}
