package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fieldops-backend/internal/models"
)

func newTestLocationStore(t *testing.T) (*LocationStore, *fakeLocationRepo, *fakeStatusSyncer) {
	t.Helper()
	finder := &fakeTeamFinder{teams: []*models.Team{
		testTeam("tenant-1", "internal-1", strPtr("T1")),
		testTeam("tenant-1", "internal-2", nil),
	}}
	repo := newFakeLocationRepo()
	syncer := &fakeStatusSyncer{}
	store := NewLocationStore(repo, NewIdentityResolver(finder), syncer, nil)

	clock := int64(1_700_000_000)
	store.now = func() int64 { clock += 100; return clock }
	return store, repo, syncer
}

func TestUpdatePosition_FirstReportCreatesRecord(t *testing.T) {
	store, _, _ := newTestLocationStore(t)

	res, err := store.UpdatePosition(context.Background(), "tenant-1", "T1", UpdatePositionInput{
		Latitude:  40.7,
		Longitude: -74.0,
		Status:    statusPtr(models.LocationStatusActive),
	})
	if err != nil {
		t.Fatalf("UpdatePosition failed: %v", err)
	}
	if !res.Created {
		t.Error("expected Created=true on first report")
	}

	rec, err := store.GetCurrent(context.Background(), "tenant-1", "T1")
	if err != nil {
		t.Fatalf("GetCurrent failed: %v", err)
	}
	if rec.Status != models.LocationStatusActive {
		t.Errorf("status = %s, want ACTIVE", rec.Status)
	}
	if len(rec.History) != 0 {
		t.Errorf("history length = %d, want 0", len(rec.History))
	}
	if rec.Latitude != 40.7 || rec.Longitude != -74.0 {
		t.Errorf("current fix = (%v, %v), want (40.7, -74.0)", rec.Latitude, rec.Longitude)
	}
	if rec.TeamID != "T1" {
		t.Errorf("canonical team id = %q, want T1", rec.TeamID)
	}
}

func TestUpdatePosition_RejectsInvalidCoordinates(t *testing.T) {
	store, repo, _ := newTestLocationStore(t)

	for _, in := range []UpdatePositionInput{
		{Latitude: 95, Longitude: 0},
		{Latitude: -95, Longitude: 0},
		{Latitude: 0, Longitude: 200},
		{Latitude: 0, Longitude: -200},
	} {
		if _, err := store.UpdatePosition(context.Background(), "tenant-1", "T1", in); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("UpdatePosition(%v, %v) err = %v, want ErrInvalidCoordinates", in.Latitude, in.Longitude, err)
		}
	}

	// no partial write happened
	if len(repo.records) != 0 {
		t.Errorf("repo has %d records after rejected updates, want 0", len(repo.records))
	}
}

func TestUpdatePosition_UnknownTeam(t *testing.T) {
	store, _, _ := newTestLocationStore(t)

	_, err := store.UpdatePosition(context.Background(), "tenant-1", "nobody", UpdatePositionInput{Latitude: 1, Longitude: 1})
	if !errors.Is(err, ErrTeamNotFound) {
		t.Errorf("err = %v, want ErrTeamNotFound", err)
	}
}

func TestUpdatePosition_HistoryHoldsPriorFixes(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 40.0, Longitude: -73.0, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 40.1, Longitude: -73.1, Timestamp: ts + 600}); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.GetCurrent(ctx, "tenant-1", "T1")
	if len(rec.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(rec.History))
	}
	// the ring holds the prior fix, not the current one
	if rec.History[0].Latitude != 40.0 || rec.History[0].Longitude != -73.0 {
		t.Errorf("history[0] = (%v, %v), want (40.0, -73.0)", rec.History[0].Latitude, rec.History[0].Longitude)
	}
	if rec.Latitude != 40.1 {
		t.Errorf("current latitude = %v, want 40.1", rec.Latitude)
	}
}

func TestUpdatePosition_BoundedHistoryFIFO(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	base := int64(1_700_000_000)
	total := 60
	for i := 0; i < total; i++ {
		// spread fixes out so none collapse as near-duplicates
		in := UpdatePositionInput{
			Latitude:  40.0 + float64(i)*0.01,
			Longitude: -73.0,
			Timestamp: base + int64(i)*300,
		}
		if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", in); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
	}

	rec, _ := store.GetCurrent(ctx, "tenant-1", "T1")
	if len(rec.History) != models.MaxHistoryEntries {
		t.Fatalf("history length = %d, want %d", len(rec.History), models.MaxHistoryEntries)
	}
	// exactly the most recent 50 prior fixes survive: fixes 9..58
	wantOldest := 40.0 + 9*0.01
	if rec.History[0].Latitude != wantOldest {
		t.Errorf("oldest retained latitude = %v, want %v", rec.History[0].Latitude, wantOldest)
	}
	wantNewest := 40.0 + 58*0.01
	if rec.History[len(rec.History)-1].Latitude != wantNewest {
		t.Errorf("newest retained latitude = %v, want %v", rec.History[len(rec.History)-1].Latitude, wantNewest)
	}
}

func TestUpdatePosition_NearDuplicateDoesNotGrowHistory(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 40.0000, Longitude: -73.0000, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	res, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 40.00005, Longitude: -73.00005, Timestamp: ts + 10})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Deduplicated {
		t.Error("expected near-duplicate fix to be deduplicated")
	}
	rec, _ := store.GetCurrent(ctx, "tenant-1", "T1")
	if len(rec.History) != 0 {
		t.Errorf("history length = %d, want 0 after dedup", len(rec.History))
	}
	if rec.LastUpdate != ts+10 {
		t.Errorf("lastUpdate = %d, want refresh to %d", rec.LastUpdate, ts+10)
	}
}

func TestUpdatePosition_DerivesMotion(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 0, Longitude: 0, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	// one degree north in one hour: ~111.19 km/h heading 0
	res, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 1, Longitude: 0, Timestamp: ts + 3600})
	if err != nil {
		t.Fatal(err)
	}
	rec := res.Record
	if rec.Speed == nil || *rec.Speed < 110 || *rec.Speed > 112 {
		t.Errorf("derived speed = %v, want ~111.19 km/h", rec.Speed)
	}
	if rec.Heading == nil || *rec.Heading > 0.01 {
		t.Errorf("derived heading = %v, want ~0", rec.Heading)
	}
}

func TestUpdatePosition_SuppliedMotionWins(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 0, Longitude: 0, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	res, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1, Longitude: 0, Timestamp: ts + 3600,
		Speed: floatPtr(42), Heading: floatPtr(123),
	})
	if err != nil {
		t.Fatal(err)
	}
	if *res.Record.Speed != 42 || *res.Record.Heading != 123 {
		t.Errorf("motion = (%v, %v), want supplied (42, 123)", *res.Record.Speed, *res.Record.Heading)
	}
}

func TestUpdatePosition_StatusChangeTriggersSync(t *testing.T) {
	store, _, syncer := newTestLocationStore(t)
	ctx := context.Background()

	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1, Longitude: 1, Status: statusPtr(models.LocationStatusActive),
	}); err != nil {
		t.Fatal(err)
	}
	// same status again: no transition
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1.1, Longitude: 1.1, Status: statusPtr(models.LocationStatusActive),
	}); err != nil {
		t.Fatal(err)
	}
	res, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1.2, Longitude: 1.2, Status: statusPtr(models.LocationStatusBreak),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.StatusChanged {
		t.Error("expected StatusChanged on ACTIVE -> BREAK")
	}
	if res.Record.StatusChangedAt == nil {
		t.Error("statusChangedAt not stamped")
	}

	if len(syncer.calls) != 2 {
		t.Fatalf("syncer calls = %d, want 2 (create + transition)", len(syncer.calls))
	}
	last := syncer.calls[len(syncer.calls)-1]
	if last.status != models.LocationStatusBreak {
		t.Errorf("synced status = %s, want BREAK", last.status)
	}
}

func TestUpdatePosition_PartialFieldUpdates(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1, Longitude: 1,
		BatteryLevel: intPtr(80),
		DeviceID:     strPtr("device-a"),
	}); err != nil {
		t.Fatal(err)
	}
	// second report omits battery and device: both must survive
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 1.1, Longitude: 1.1}); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.GetCurrent(ctx, "tenant-1", "T1")
	if rec.BatteryLevel == nil || *rec.BatteryLevel != 80 {
		t.Errorf("battery = %v, want 80", rec.BatteryLevel)
	}
	if rec.DeviceID == nil || *rec.DeviceID != "device-a" {
		t.Errorf("device = %v, want device-a", rec.DeviceID)
	}
}

func TestGetCurrent_OfflinePlaceholder(t *testing.T) {
	store, _, _ := newTestLocationStore(t)

	rec, err := store.GetCurrent(context.Background(), "tenant-1", "internal-2")
	if err != nil {
		t.Fatalf("GetCurrent for team without record failed: %v", err)
	}
	if rec.Status != models.LocationStatusOffline {
		t.Errorf("status = %s, want OFFLINE", rec.Status)
	}
	if rec.Address == nil || *rec.Address != "Location not available" {
		t.Errorf("address = %v, want sentinel", rec.Address)
	}
}

// conflictOnceRepo makes the next compare-and-set lose, like a racing
// writer slipping in between the read and the write
type conflictOnceRepo struct {
	*fakeLocationRepo
	tripped bool
}

func (r *conflictOnceRepo) Update(ctx context.Context, rec *models.TeamLocationRecord, expectedVersion int64) error {
	if !r.tripped {
		r.tripped = true
		return ErrConcurrencyConflict
	}
	return r.fakeLocationRepo.Update(ctx, rec, expectedVersion)
}

func TestUpdatePosition_ConcurrencyConflictSurfaces(t *testing.T) {
	finder := &fakeTeamFinder{teams: []*models.Team{testTeam("tenant-1", "internal-1", strPtr("T1"))}}
	repo := &conflictOnceRepo{fakeLocationRepo: newFakeLocationRepo()}
	store := NewLocationStore(repo, NewIdentityResolver(finder), nil, nil)
	ctx := context.Background()

	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 1, Longitude: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 2, Longitude: 2})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}

	// the retry succeeds
	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 2, Longitude: 2}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestDecommission_SoftDeletes(t *testing.T) {
	store, repo, _ := newTestLocationStore(t)
	ctx := context.Background()

	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{Latitude: 1, Longitude: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Decommission(ctx, "tenant-1", "T1"); err != nil {
		t.Fatalf("Decommission failed: %v", err)
	}

	// the row still exists but reads see the offline placeholder
	if repo.records[locKey("tenant-1", "T1")].DeletedAt == nil {
		t.Error("expected deleted_at to be set")
	}
	rec, err := store.GetCurrent(ctx, "tenant-1", "T1")
	if err != nil {
		t.Fatalf("GetCurrent after decommission failed: %v", err)
	}
	if rec.Status != models.LocationStatusOffline {
		t.Errorf("status after decommission = %s, want OFFLINE placeholder", rec.Status)
	}
}

func TestStats(t *testing.T) {
	store, _, _ := newTestLocationStore(t)
	ctx := context.Background()

	if _, err := store.UpdatePosition(ctx, "tenant-1", "T1", UpdatePositionInput{
		Latitude: 1, Longitude: 1, Status: statusPtr(models.LocationStatusActive),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdatePosition(ctx, "tenant-1", "internal-2", UpdatePositionInput{
		Latitude: 2, Longitude: 2, Status: statusPtr(models.LocationStatusBreak),
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalTeams != 2 {
		t.Errorf("total teams = %d, want 2", stats.TotalTeams)
	}
	if stats.ByStatus["ACTIVE"] != 1 || stats.ByStatus["BREAK"] != 1 {
		t.Errorf("by status = %v", stats.ByStatus)
	}
}

func ExampleValidateCoordinates() {
	fmt.Println(ValidateCoordinates(40.7, -74.0))
	fmt.Println(ValidateCoordinates(95, 0))
	// Output:
	// <nil>
	// invalid coordinates
}
