package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"fieldops-backend/internal/models"
)

func newTestTracker(t *testing.T) (*RouteProgressTracker, *fakeRouteRepo) {
	t.Helper()
	finder := &fakeTeamFinder{teams: []*models.Team{
		testTeam("tenant-1", "internal-1", strPtr("T1")),
	}}
	repo := newFakeRouteRepo()
	tracker := NewRouteProgressTracker(repo, NewIdentityResolver(finder), nil, nil)
	tracker.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	}
	return tracker, repo
}

func fiveTasks() []string {
	return []string{"task-1", "task-2", "task-3", "task-4", "task-5"}
}

func TestAdvance_SeedsStopsWithEstimateChain(t *testing.T) {
	tracker, _ := newTestTracker(t)

	rp, err := tracker.Advance(context.Background(), "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 0, CompletedCount: 0,
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if len(rp.Stops) != 5 {
		t.Fatalf("stops = %d, want 5", len(rp.Stops))
	}
	// 480 minutes over 5 stops = 96 minutes per stop
	dayStart := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC).Unix()
	for i, stop := range rp.Stops {
		if stop.ScheduledOrder != i {
			t.Errorf("stop %d scheduled order = %d", i, stop.ScheduledOrder)
		}
		wantStart := dayStart + int64(i)*96*60
		if stop.EstimatedStart != wantStart {
			t.Errorf("stop %d estimated start = %d, want %d", i, stop.EstimatedStart, wantStart)
		}
		if stop.EstimatedEnd != wantStart+96*60 {
			t.Errorf("stop %d estimated end = %d, want %d", i, stop.EstimatedEnd, wantStart+96*60)
		}
		if stop.EstimatedDuration != 96 {
			t.Errorf("stop %d estimated duration = %d, want 96", i, stop.EstimatedDuration)
		}
	}
	if rp.EstimatedCompletionTime == nil || *rp.EstimatedCompletionTime != rp.Stops[4].EstimatedEnd {
		t.Errorf("estimated completion = %v, want last stop end", rp.EstimatedCompletionTime)
	}
}

func TestAdvance_DerivesStopStatusesFromCounters(t *testing.T) {
	tracker, _ := newTestTracker(t)

	rp, err := tracker.Advance(context.Background(), "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 2, CompletedCount: 2,
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	want := []models.StopStatus{
		models.StopStatusCompleted,
		models.StopStatusCompleted,
		models.StopStatusInProgress,
		models.StopStatusPending,
		models.StopStatusPending,
	}
	for i, stop := range rp.Stops {
		if stop.Status != want[i] {
			t.Errorf("stop %d status = %s, want %s", i, stop.Status, want[i])
		}
	}
	if rp.RouteStatus != models.RouteStatusInProgress {
		t.Errorf("route status = %s, want IN_PROGRESS", rp.RouteStatus)
	}
	if rp.CompletedCount != 2 || rp.CurrentStopIndex != 2 {
		t.Errorf("counters = (%d, %d), want (2, 2)", rp.CurrentStopIndex, rp.CompletedCount)
	}
}

func TestAdvance_Idempotent(t *testing.T) {
	tracker, repo := newTestTracker(t)
	ctx := context.Background()

	in := AdvanceInput{TaskIDs: fiveTasks(), CurrentIndex: 2, CompletedCount: 2}
	first, err := tracker.Advance(ctx, "tenant-1", "T1", in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tracker.Advance(ctx, "tenant-1", "T1", in)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Stops, second.Stops) {
		t.Errorf("stops changed on retried advance:\nfirst:  %+v\nsecond: %+v", first.Stops, second.Stops)
	}
	if second.RouteStatus != first.RouteStatus ||
		second.CurrentStopIndex != first.CurrentStopIndex ||
		second.CompletedCount != first.CompletedCount {
		t.Error("derived state changed on retried advance")
	}
	// only the progress log grows
	if len(second.ProgressUpdates) != 2 {
		t.Errorf("progress updates = %d, want 2", len(second.ProgressUpdates))
	}

	// still a single record for the day
	if len(repo.records) != 1 {
		t.Errorf("records = %d, want 1 singleton per (tenant, team, day)", len(repo.records))
	}
}

func TestAdvance_CompletesRoute(t *testing.T) {
	tracker, _ := newTestTracker(t)

	rp, err := tracker.Advance(context.Background(), "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 5, CompletedCount: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rp.RouteStatus != models.RouteStatusCompleted {
		t.Errorf("route status = %s, want COMPLETED", rp.RouteStatus)
	}
	for i, stop := range rp.Stops {
		if stop.Status != models.StopStatusCompleted {
			t.Errorf("stop %d status = %s, want completed", i, stop.Status)
		}
		if stop.ActualEnd == nil {
			t.Errorf("stop %d actual end not stamped", i)
		}
	}
}

func TestAdvance_SeparateDaysSeparateRecords(t *testing.T) {
	tracker, repo := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), RouteDate: "2026-08-29",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), RouteDate: "2026-08-30",
	}); err != nil {
		t.Fatal(err)
	}

	if len(repo.records) != 2 {
		t.Errorf("records = %d, want one per calendar day", len(repo.records))
	}
}

func TestAdvance_CountersClamped(t *testing.T) {
	tracker, _ := newTestTracker(t)

	rp, err := tracker.Advance(context.Background(), "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 99, CompletedCount: -3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rp.CompletedCount != 0 {
		t.Errorf("completed count = %d, want clamped to 0", rp.CompletedCount)
	}
	if rp.CurrentStopIndex != 5 {
		t.Errorf("current index = %d, want clamped to len(stops)", rp.CurrentStopIndex)
	}
}

func TestAdvance_UnknownTeam(t *testing.T) {
	tracker, _ := newTestTracker(t)
	_, err := tracker.Advance(context.Background(), "tenant-1", "ghost", AdvanceInput{TaskIDs: fiveTasks()})
	if !errors.Is(err, ErrTeamNotFound) {
		t.Errorf("err = %v, want ErrTeamNotFound", err)
	}
}

func TestSetRouteStatus_Transitions(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 1, CompletedCount: 1,
	}); err != nil {
		t.Fatal(err)
	}

	rp, err := tracker.SetRouteStatus(ctx, "tenant-1", "T1", "", models.RouteStatusPaused)
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if rp.RouteStatus != models.RouteStatusPaused {
		t.Errorf("status = %s, want PAUSED", rp.RouteStatus)
	}

	// progress reports do not undo an explicit pause
	rp, err = tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 1, CompletedCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rp.RouteStatus != models.RouteStatusPaused {
		t.Errorf("status after advance while paused = %s, want PAUSED", rp.RouteStatus)
	}

	// resume
	rp, err = tracker.SetRouteStatus(ctx, "tenant-1", "T1", "", models.RouteStatusInProgress)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if rp.RouteStatus != models.RouteStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", rp.RouteStatus)
	}

	// COMPLETED -> anything is rejected
	if _, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 5, CompletedCount: 5,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.SetRouteStatus(ctx, "tenant-1", "T1", "", models.RouteStatusPaused); err == nil {
		t.Error("expected invalid transition COMPLETED -> PAUSED to fail")
	}
}

func TestGetProgress_NoRecord(t *testing.T) {
	tracker, _ := newTestTracker(t)
	_, err := tracker.GetProgress(context.Background(), "tenant-1", "T1", "2026-08-30")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestAdvance_TerminalStopStatesPreserved(t *testing.T) {
	tracker, repo := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 1, CompletedCount: 1,
	}); err != nil {
		t.Fatal(err)
	}

	// mark a stop skipped out-of-band
	stored := repo.records[routeKey("tenant-1", "T1", "2026-08-30")]
	stored.Stops[3].Status = models.StopStatusSkipped

	rp, err := tracker.Advance(ctx, "tenant-1", "T1", AdvanceInput{
		TaskIDs: fiveTasks(), CurrentIndex: 4, CompletedCount: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rp.Stops[3].Status != models.StopStatusSkipped {
		t.Errorf("skipped stop re-derived to %s, want skipped kept", rp.Stops[3].Status)
	}
}
