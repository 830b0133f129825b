package services

import (
	"context"
	"errors"
	"log"
	"time"

	"fieldops-backend/internal/geomath"
	"fieldops-backend/internal/models"

	"github.com/google/uuid"
)

// Fixes closer than this in both space and time are treated as duplicate
// reports from the mobile client and do not grow the history ring.
const (
	nearDuplicateMeters  = 10.0
	nearDuplicateSeconds = 60
)

// LocationFilters narrows ListCurrent results
type LocationFilters struct {
	Status       *models.LocationStatus
	TaskID       *string
	UpdatedSince *int64
}

// LocationStats is the tenant-wide aggregate for the stats endpoint
type LocationStats struct {
	TotalTeams     int            `json:"total_teams"`
	ByStatus       map[string]int `json:"by_status"`
	ByConnectivity map[string]int `json:"by_connectivity"`
	AverageBattery float64        `json:"average_battery"`
	StaleTeams     int            `json:"stale_teams"` // no update in the last 15 minutes
}

// LocationRepo is the persistence port for team location records.
// Update is a compare-and-set on the record version and returns
// ErrConcurrencyConflict when the row moved underneath the caller.
type LocationRepo interface {
	Get(ctx context.Context, tenantID, teamID string) (*models.TeamLocationRecord, error)
	Create(ctx context.Context, rec *models.TeamLocationRecord) error
	Update(ctx context.Context, rec *models.TeamLocationRecord, expectedVersion int64) error
	List(ctx context.Context, tenantID string, f LocationFilters) ([]models.TeamLocationRecord, error)
	Stats(ctx context.Context, tenantID string, staleBefore int64) (*LocationStats, error)
	SoftDelete(ctx context.Context, tenantID, teamID string, now int64) error
}

// StatusSyncer re-derives the cached availability record after a location
// status transition
type StatusSyncer interface {
	SyncStatus(ctx context.Context, tenantID, teamID string, status models.LocationStatus, at int64)
}

// Auditor records structured audit events, fire-and-forget
type Auditor interface {
	Record(event, tenantID, teamID string, details map[string]interface{})
}

// UpdatePositionInput is one inbound position report. Optional fields use
// partial-update semantics: only explicitly supplied values are written.
type UpdatePositionInput struct {
	Latitude     float64                `json:"latitude"`
	Longitude    float64                `json:"longitude"`
	Address      *string                `json:"address,omitempty"`
	Accuracy     *float64               `json:"accuracy,omitempty"`
	Altitude     *float64               `json:"altitude,omitempty"`
	Speed        *float64               `json:"speed,omitempty"`
	Heading      *float64               `json:"heading,omitempty"`
	Status       *models.LocationStatus `json:"status,omitempty"`
	Connectivity *models.Connectivity   `json:"connectivity,omitempty"`
	BatteryLevel *int                   `json:"battery_level,omitempty"`
	TaskID       *string                `json:"task_id,omitempty"`
	DeviceID     *string                `json:"device_id,omitempty"`
	AppVersion   *string                `json:"app_version,omitempty"`
	Timestamp    int64                  `json:"timestamp,omitempty"` // client-side epoch seconds, 0 means now
}

// UpdateResult describes what a position report did to the record
type UpdateResult struct {
	Record        *models.TeamLocationRecord `json:"record"`
	Created       bool                       `json:"created"`
	StatusChanged bool                       `json:"status_changed"`
	Deduplicated  bool                       `json:"deduplicated"`
}

// LocationStore owns the current-fix record and the bounded movement
// history ring per (tenant, team)
type LocationStore struct {
	repo     LocationRepo
	resolver *IdentityResolver
	status   StatusSyncer
	audit    Auditor
	now      func() int64
}

// NewLocationStore wires the location store. status and audit may be nil in
// tests that do not exercise the side effects.
func NewLocationStore(repo LocationRepo, resolver *IdentityResolver, status StatusSyncer, audit Auditor) *LocationStore {
	return &LocationStore{
		repo:     repo,
		resolver: resolver,
		status:   status,
		audit:    audit,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// ValidateCoordinates rejects out-of-range latitude/longitude
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// UpdatePosition applies one position report. Coordinates are validated
// before anything is written; the team reference is resolved to its
// canonical key; the record is created on first report, otherwise the
// previous current fix is pushed into the history ring (FIFO, max 50)
// before the new fix overwrites it. A supplied status that differs from the
// stored one stamps status_changed_at and triggers availability
// re-derivation. Writes are all-or-nothing per record; a lost
// compare-and-set race returns ErrConcurrencyConflict for the caller to
// retry.
func (s *LocationStore) UpdatePosition(ctx context.Context, tenantID, teamRef string, in UpdatePositionInput) (*UpdateResult, error) {
	if err := ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.Status != nil && !models.ValidStatus(*in.Status) {
		return nil, ErrInvalidCoordinates
	}

	ct, err := s.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fixTS := in.Timestamp
	if fixTS == 0 {
		fixTS = now
	}

	rec, err := s.repo.Get(ctx, tenantID, ct.Key)
	if errors.Is(err, ErrRecordNotFound) {
		rec = s.newRecord(tenantID, ct, in, fixTS, now)
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, err
		}
		s.afterWrite(ctx, rec, true, in.Status != nil, false)
		return &UpdateResult{Record: rec, Created: true, StatusChanged: in.Status != nil}, nil
	}
	if err != nil {
		return nil, err
	}

	prevStatus := rec.Status
	deduped := s.applyFix(rec, in, fixTS)
	applyPartialFields(rec, in)

	statusChanged := in.Status != nil && *in.Status != prevStatus
	if statusChanged {
		changedAt := now
		rec.StatusChangedAt = &changedAt
	}
	rec.LastUpdate = fixTS

	if err := s.repo.Update(ctx, rec, rec.Version); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, rec, false, statusChanged, deduped)

	return &UpdateResult{Record: rec, StatusChanged: statusChanged, Deduplicated: deduped}, nil
}

func (s *LocationStore) newRecord(tenantID string, ct *CanonicalTeam, in UpdatePositionInput, fixTS, now int64) *models.TeamLocationRecord {
	rec := &models.TeamLocationRecord{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		TeamID:       ct.Key,
		TeamName:     ct.Team.Name,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Address:      in.Address,
		Accuracy:     in.Accuracy,
		Altitude:     in.Altitude,
		Speed:        in.Speed,
		Heading:      in.Heading,
		Status:       models.LocationStatusActive,
		Connectivity: models.ConnectivityOnline,
		History:      models.HistoryEntries{},
		LastUpdate:   fixTS,
		CreatedAt:    now,
	}
	if in.Status != nil {
		rec.Status = *in.Status
		rec.StatusChangedAt = &now
	}
	applyPartialFields(rec, in)
	return rec
}

// applyFix moves the previous current fix into the history ring and
// overwrites the current fix, deriving speed/heading when the report omits
// them. Returns true when the report was a near-duplicate of the stored fix
// and the ring was left untouched.
func (s *LocationStore) applyFix(rec *models.TeamLocationRecord, in UpdatePositionInput, fixTS int64) bool {
	distM := geomath.DistanceMeters(rec.Latitude, rec.Longitude, in.Latitude, in.Longitude)
	elapsed := fixTS - rec.LastUpdate
	deduped := distM < nearDuplicateMeters && absInt64(elapsed) < nearDuplicateSeconds

	if !deduped {
		rec.History = append(rec.History, models.HistoryEntry{
			Timestamp: rec.LastUpdate,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			Accuracy:  rec.Accuracy,
		})
		if len(rec.History) > models.MaxHistoryEntries {
			rec.History = rec.History[len(rec.History)-models.MaxHistoryEntries:]
		}

		speed, heading := DeriveMotion(rec.Latitude, rec.Longitude, rec.LastUpdate, in.Latitude, in.Longitude, fixTS)
		if in.Speed == nil {
			rec.Speed = speed
		}
		if in.Heading == nil {
			rec.Heading = heading
		}
	}

	rec.Latitude = in.Latitude
	rec.Longitude = in.Longitude
	if in.Address != nil {
		rec.Address = in.Address
	}
	if in.Accuracy != nil {
		rec.Accuracy = in.Accuracy
	}
	if in.Altitude != nil {
		rec.Altitude = in.Altitude
	}
	if in.Speed != nil {
		rec.Speed = in.Speed
	}
	if in.Heading != nil {
		rec.Heading = in.Heading
	}
	return deduped
}

// applyPartialFields writes only the optional fields the report supplied
func applyPartialFields(rec *models.TeamLocationRecord, in UpdatePositionInput) {
	if in.Status != nil {
		rec.Status = *in.Status
	}
	if in.Connectivity != nil {
		rec.Connectivity = *in.Connectivity
	}
	if in.BatteryLevel != nil {
		rec.BatteryLevel = in.BatteryLevel
	}
	if in.TaskID != nil {
		rec.CurrentTaskID = in.TaskID
	}
	if in.DeviceID != nil {
		rec.DeviceID = in.DeviceID
	}
	if in.AppVersion != nil {
		rec.AppVersion = in.AppVersion
	}
}

func (s *LocationStore) afterWrite(ctx context.Context, rec *models.TeamLocationRecord, created, statusChanged, deduped bool) {
	if statusChanged && s.status != nil {
		at := rec.LastUpdate
		if rec.StatusChangedAt != nil {
			at = *rec.StatusChangedAt
		}
		s.status.SyncStatus(ctx, rec.TenantID, rec.TeamID, rec.Status, at)
	}
	if s.audit != nil {
		s.audit.Record("location_updated", rec.TenantID, rec.TeamID, map[string]interface{}{
			"created":        created,
			"status":         string(rec.Status),
			"status_changed": statusChanged,
			"deduplicated":   deduped,
			"latitude":       rec.Latitude,
			"longitude":      rec.Longitude,
		})
	}
}

// DeriveMotion computes speed (km/h) and initial bearing from two
// timestamped fixes. Both are nil when the elapsed time is zero or negative.
func DeriveMotion(prevLat, prevLng float64, prevTS int64, lat, lng float64, ts int64) (*float64, *float64) {
	elapsed := ts - prevTS
	if elapsed <= 0 {
		return nil, nil
	}
	distKm := geomath.HaversineKm(prevLat, prevLng, lat, lng)
	speed := geomath.SpeedKmh(distKm, elapsed)
	heading := geomath.InitialBearing(prevLat, prevLng, lat, lng)
	return &speed, &heading
}

// GetCurrent returns the live record for a team. Teams with no record yet
// are reported as OFFLINE with a sentinel location instead of an error.
func (s *LocationStore) GetCurrent(ctx context.Context, tenantID, teamRef string) (*models.TeamLocationRecord, error) {
	ct, err := s.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Get(ctx, tenantID, ct.Key)
	if errors.Is(err, ErrRecordNotFound) {
		return OfflinePlaceholder(tenantID, ct), nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// OfflinePlaceholder is the "no data yet" record reads hand back instead of
// failing. Callers must treat absence as a valid state, not a fault.
func OfflinePlaceholder(tenantID string, ct *CanonicalTeam) *models.TeamLocationRecord {
	addr := "Location not available"
	return &models.TeamLocationRecord{
		TenantID:     tenantID,
		TeamID:       ct.Key,
		TeamName:     ct.Team.Name,
		Address:      &addr,
		Status:       models.LocationStatusOffline,
		Connectivity: models.ConnectivityOffline,
		History:      models.HistoryEntries{},
	}
}

// ListCurrent returns every live record for a tenant, optionally filtered
func (s *LocationStore) ListCurrent(ctx context.Context, tenantID string, f LocationFilters) ([]models.TeamLocationRecord, error) {
	return s.repo.List(ctx, tenantID, f)
}

// Stats aggregates the tenant's location records for dashboards
func (s *LocationStore) Stats(ctx context.Context, tenantID string) (*LocationStats, error) {
	staleBefore := s.now() - 15*60
	stats, err := s.repo.Stats(ctx, tenantID, staleBefore)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record("availability_accessed", tenantID, "", map[string]interface{}{
			"scope": "stats", "total_teams": stats.TotalTeams,
		})
	}
	return stats, nil
}

// Decommission soft-deletes a team's location record. The row is kept for
// history; it just stops showing up in reads.
func (s *LocationStore) Decommission(ctx context.Context, tenantID, teamRef string) error {
	ct, err := s.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, tenantID, ct.Key, s.now()); err != nil {
		return err
	}
	log.Printf("🗑️  Decommissioned location record for team %s (tenant %s)", ct.Key, tenantID)
	if s.audit != nil {
		s.audit.Record("location_updated", tenantID, ct.Key, map[string]interface{}{
			"decommissioned": true,
		})
	}
	return nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
