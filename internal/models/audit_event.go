package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AuditDetails is an opaque JSONB payload attached to an audit event
type AuditDetails json.RawMessage

func (d AuditDetails) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return []byte(d), nil
}

func (d *AuditDetails) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for audit details: %T", src)
	}
	*d = append((*d)[0:0], b...)
	return nil
}

func (d AuditDetails) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

func (d *AuditDetails) UnmarshalJSON(b []byte) error {
	*d = append((*d)[0:0], b...)
	return nil
}

// AuditEvent is one structured audit record. Writes are fire-and-forget;
// losing one must never block the primary operation.
type AuditEvent struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	TeamID    string       `json:"team_id" db:"team_id"`
	Event     string       `json:"event" db:"event"` // location_updated | route_progress_tracked | availability_accessed
	Details   AuditDetails `json:"details" db:"details"`
	CreatedAt int64        `json:"created_at" db:"created_at"`
}
