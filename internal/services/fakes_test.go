package services

import (
	"context"
	"sync"

	"fieldops-backend/internal/models"
)

// In-memory fakes for the persistence ports, used across the service tests.

type fakeTeamFinder struct {
	teams []*models.Team
}

func (f *fakeTeamFinder) FindByLegacyID(ctx context.Context, tenantID, legacyID string) (*models.Team, error) {
	for _, t := range f.teams {
		if t.TenantID == tenantID && t.LegacyID != nil && *t.LegacyID == legacyID {
			return t, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (f *fakeTeamFinder) FindByID(ctx context.Context, tenantID, id string) (*models.Team, error) {
	for _, t := range f.teams {
		if t.TenantID == tenantID && t.ID == id {
			return t, nil
		}
	}
	return nil, ErrRecordNotFound
}

type fakeLocationRepo struct {
	mu      sync.Mutex
	records map[string]*models.TeamLocationRecord // tenant/team -> record
	fail    error
}

func newFakeLocationRepo() *fakeLocationRepo {
	return &fakeLocationRepo{records: map[string]*models.TeamLocationRecord{}}
}

func locKey(tenantID, teamID string) string { return tenantID + "/" + teamID }

func (f *fakeLocationRepo) Get(ctx context.Context, tenantID, teamID string) (*models.TeamLocationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	rec, ok := f.records[locKey(tenantID, teamID)]
	if !ok || rec.DeletedAt != nil {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	cp.History = append(models.HistoryEntries{}, rec.History...)
	return &cp, nil
}

func (f *fakeLocationRepo) Create(ctx context.Context, rec *models.TeamLocationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.Version = 1
	cp := *rec
	f.records[locKey(rec.TenantID, rec.TeamID)] = &cp
	return nil
}

func (f *fakeLocationRepo) Update(ctx context.Context, rec *models.TeamLocationRecord, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.records[locKey(rec.TenantID, rec.TeamID)]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	rec.Version = expectedVersion + 1
	cp := *rec
	cp.History = append(models.HistoryEntries{}, rec.History...)
	f.records[locKey(rec.TenantID, rec.TeamID)] = &cp
	return nil
}

func (f *fakeLocationRepo) List(ctx context.Context, tenantID string, filters LocationFilters) ([]models.TeamLocationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TeamLocationRecord
	for _, rec := range f.records {
		if rec.TenantID != tenantID || rec.DeletedAt != nil {
			continue
		}
		if filters.Status != nil && rec.Status != *filters.Status {
			continue
		}
		if filters.UpdatedSince != nil && rec.LastUpdate < *filters.UpdatedSince {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeLocationRepo) Stats(ctx context.Context, tenantID string, staleBefore int64) (*LocationStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &LocationStats{ByStatus: map[string]int{}, ByConnectivity: map[string]int{}}
	for _, rec := range f.records {
		if rec.TenantID != tenantID || rec.DeletedAt != nil {
			continue
		}
		stats.TotalTeams++
		stats.ByStatus[string(rec.Status)]++
		stats.ByConnectivity[string(rec.Connectivity)]++
		if rec.LastUpdate < staleBefore {
			stats.StaleTeams++
		}
	}
	return stats, nil
}

func (f *fakeLocationRepo) SoftDelete(ctx context.Context, tenantID, teamID string, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[locKey(tenantID, teamID)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.DeletedAt = &now
	return nil
}

type fakeRouteRepo struct {
	mu      sync.Mutex
	records map[string]*models.RouteProgress // tenant/team/date -> record
}

func newFakeRouteRepo() *fakeRouteRepo {
	return &fakeRouteRepo{records: map[string]*models.RouteProgress{}}
}

func routeKey(tenantID, teamID, date string) string { return tenantID + "/" + teamID + "/" + date }

func (f *fakeRouteRepo) GetByDay(ctx context.Context, tenantID, teamID, routeDate string) (*models.RouteProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rp, ok := f.records[routeKey(tenantID, teamID, routeDate)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rp
	cp.Stops = append(models.RouteStops{}, rp.Stops...)
	cp.ProgressUpdates = append(models.ProgressUpdates{}, rp.ProgressUpdates...)
	return &cp, nil
}

func (f *fakeRouteRepo) Create(ctx context.Context, rp *models.RouteProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rp.Version = 1
	cp := *rp
	f.records[routeKey(rp.TenantID, rp.TeamID, rp.RouteDate)] = &cp
	return nil
}

func (f *fakeRouteRepo) Update(ctx context.Context, rp *models.RouteProgress, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.records[routeKey(rp.TenantID, rp.TeamID, rp.RouteDate)]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	rp.Version = expectedVersion + 1
	cp := *rp
	f.records[routeKey(rp.TenantID, rp.TeamID, rp.RouteDate)] = &cp
	return nil
}

type fakeTaskReader struct {
	tasks []models.Task
	err   error
}

func (f *fakeTaskReader) TasksInRange(ctx context.Context, tenantID string, teamIDs []string, from, to int64) ([]models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	match := map[string]bool{}
	for _, id := range teamIDs {
		match[id] = true
	}
	var out []models.Task
	for _, t := range f.tasks {
		if t.TenantID == tenantID && match[t.TeamID] && t.ScheduledDate >= from && t.ScheduledDate < to {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeAvailabilityRepo struct {
	mu      sync.Mutex
	records map[string]*models.TeamAvailability
}

func newFakeAvailabilityRepo() *fakeAvailabilityRepo {
	return &fakeAvailabilityRepo{records: map[string]*models.TeamAvailability{}}
}

func (f *fakeAvailabilityRepo) Get(ctx context.Context, tenantID, teamID string) (*models.TeamAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	av, ok := f.records[locKey(tenantID, teamID)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *av
	return &cp, nil
}

func (f *fakeAvailabilityRepo) Upsert(ctx context.Context, av *models.TeamAvailability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *av
	f.records[locKey(av.TenantID, av.TeamID)] = &cp
	return nil
}

type recordedStatus struct {
	teamID string
	status models.LocationStatus
	at     int64
}

type fakeStatusSyncer struct {
	mu    sync.Mutex
	calls []recordedStatus
}

func (f *fakeStatusSyncer) SyncStatus(ctx context.Context, tenantID, teamID string, status models.LocationStatus, at int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedStatus{teamID: teamID, status: status, at: at})
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func statusPtr(s models.LocationStatus) *models.LocationStatus { return &s }

func testTeam(tenantID, id string, legacy *string) *models.Team {
	return &models.Team{
		ID:       id,
		TenantID: tenantID,
		LegacyID: legacy,
		Name:     "Team " + id,
		Status:   models.TeamStatusActive,
	}
}
