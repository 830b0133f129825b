package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"fieldops-backend/internal/models"
)

func historyRecord(current models.HistoryEntry, history ...models.HistoryEntry) *models.TeamLocationRecord {
	return &models.TeamLocationRecord{
		ID: "rec-1", TenantID: "tenant-1", TeamID: "T1",
		Latitude: current.Latitude, Longitude: current.Longitude,
		Accuracy: current.Accuracy, LastUpdate: current.Timestamp,
		Status: models.LocationStatusActive, Connectivity: models.ConnectivityOnline,
		History: history,
	}
}

func TestFormatHistory_DedupCollapsesNearIdenticalFixes(t *testing.T) {
	base := int64(1_700_000_000)
	// two fixes ~7 m and 10 s apart must collapse to one entry
	rec := historyRecord(
		models.HistoryEntry{Timestamp: base + 10, Latitude: 40.00005, Longitude: -73.00005},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0000, Longitude: -73.0000},
	)

	entries := FormatHistory(rec, nil, HistoryQuery{})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 after dedup", len(entries))
	}
	if entries[0].Latitude != 40.0000 || entries[0].Timestamp != base {
		t.Errorf("dedup kept %+v, want the first-seen fix", entries[0])
	}
	if !entries[0].IsCurrent {
		t.Error("is_current flag not carried onto the kept entry")
	}
}

func TestFormatHistory_KeepsDistinctFixes(t *testing.T) {
	base := int64(1_700_000_000)
	// same spot but 60 s apart: outside the dedup window
	rec := historyRecord(
		models.HistoryEntry{Timestamp: base + 60, Latitude: 40.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0, Longitude: -73.0},
	)
	if got := len(FormatHistory(rec, nil, HistoryQuery{})); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}

	// close in time but ~1.1 km apart
	rec = historyRecord(
		models.HistoryEntry{Timestamp: base + 5, Latitude: 40.01, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0, Longitude: -73.0},
	)
	if got := len(FormatHistory(rec, nil, HistoryQuery{})); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestFormatHistory_DescendingWithDerivedMotion(t *testing.T) {
	base := int64(1_700_000_000)
	rec := historyRecord(
		models.HistoryEntry{Timestamp: base + 7200, Latitude: 42.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base + 3600, Latitude: 41.0, Longitude: -73.0},
	)

	entries := FormatHistory(rec, nil, HistoryQuery{})
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp >= entries[i-1].Timestamp {
			t.Fatalf("entries not descending: %d before %d", entries[i-1].Timestamp, entries[i].Timestamp)
		}
	}
	if entries[len(entries)-1].Speed != nil {
		t.Error("oldest entry must carry no derived speed")
	}
	// 1 degree north in one hour: ~111 km/h heading ~0
	newest := entries[0]
	if newest.Speed == nil || *newest.Speed < 110 || *newest.Speed > 113 {
		t.Errorf("newest speed = %v, want ~111 km/h", newest.Speed)
	}
	if newest.Heading == nil || *newest.Heading > 1 {
		t.Errorf("newest heading = %v, want ~0", newest.Heading)
	}
}

func TestFormatHistory_LimitAndRange(t *testing.T) {
	base := int64(1_700_000_000)
	rec := historyRecord(
		models.HistoryEntry{Timestamp: base + 300, Latitude: 43.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base + 100, Latitude: 41.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base + 200, Latitude: 42.0, Longitude: -73.0},
	)

	entries := FormatHistory(rec, nil, HistoryQuery{Limit: 2})
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 with limit", len(entries))
	}
	if entries[0].Timestamp != base+300 || entries[1].Timestamp != base+200 {
		t.Errorf("limit kept the wrong entries: %d, %d", entries[0].Timestamp, entries[1].Timestamp)
	}

	from, to := base+100, base+200
	entries = FormatHistory(rec, nil, HistoryQuery{From: &from, To: &to})
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 in range", len(entries))
	}
	if entries[0].Timestamp != base+200 || entries[1].Timestamp != base+100 {
		t.Errorf("range kept the wrong entries: %d, %d", entries[0].Timestamp, entries[1].Timestamp)
	}
}

func TestFormatHistory_SourceInference(t *testing.T) {
	base := int64(1_700_000_000)
	precise := 5.0
	coarse := 150.0
	addr := "221B Baker Street"
	rec := historyRecord(
		models.HistoryEntry{Timestamp: base + 200, Latitude: 42.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: base, Latitude: 40.0, Longitude: -73.0, Accuracy: &precise},
		models.HistoryEntry{Timestamp: base + 100, Latitude: 41.0, Longitude: -73.0, Accuracy: &coarse},
	)
	rec.Address = &addr

	entries := FormatHistory(rec, nil, HistoryQuery{})
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	// descending: current(address), coarse(manual), precise(gps)
	if entries[0].Source != "address" {
		t.Errorf("current source = %s, want address", entries[0].Source)
	}
	if entries[1].Source != "manual" {
		t.Errorf("coarse source = %s, want manual", entries[1].Source)
	}
	if entries[2].Source != "gps" {
		t.Errorf("precise source = %s, want gps", entries[2].Source)
	}
}

func TestFormatHistory_Notes(t *testing.T) {
	insideTS := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local).Unix()
	outsideTS := time.Date(2026, 8, 28, 3, 0, 0, 0, time.Local).Unix()
	team := testTeam("tenant-1", "internal-1", strPtr("T1"))

	rec := historyRecord(
		models.HistoryEntry{Timestamp: insideTS, Latitude: 42.0, Longitude: -73.0},
		models.HistoryEntry{Timestamp: outsideTS, Latitude: 40.0, Longitude: -73.0},
	)
	rec.Connectivity = models.ConnectivityPoor

	entries := FormatHistory(rec, team, HistoryQuery{})
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !strings.Contains(entries[0].Notes, "poor connectivity") {
		t.Errorf("current notes = %q, want poor connectivity flag", entries[0].Notes)
	}
	if !strings.Contains(entries[1].Notes, "outside working hours") {
		t.Errorf("3am notes = %q, want outside working hours", entries[1].Notes)
	}
	if strings.Contains(entries[0].Notes, "outside working hours") {
		t.Errorf("noon entry flagged outside working hours: %q", entries[0].Notes)
	}
}

func TestHistory_NoRecordYieldsEmptySequence(t *testing.T) {
	finder := &fakeTeamFinder{teams: []*models.Team{testTeam("tenant-1", "internal-1", strPtr("T1"))}}
	resolver := NewIdentityResolver(finder)
	store := NewLocationStore(newFakeLocationRepo(), resolver, nil, nil)
	formatter := NewHistoryFormatter(store, resolver)

	entries, err := formatter.History(context.Background(), "tenant-1", "T1", HistoryQuery{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
}

func TestWithinWorkingHours(t *testing.T) {
	hours := models.WorkingHours{Start: "08:00", End: "17:00"}
	noon := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local).Unix()
	night := time.Date(2026, 8, 28, 3, 0, 0, 0, time.Local).Unix()

	if !withinWorkingHours(noon, hours) {
		t.Error("noon should be within 08:00-17:00")
	}
	if withinWorkingHours(night, hours) {
		t.Error("3am should be outside 08:00-17:00")
	}
	if !withinWorkingHours(night, models.WorkingHours{Start: "bogus"}) {
		t.Error("unparseable hours must not flag anything")
	}
}

func TestCSVRow(t *testing.T) {
	speed := 42.5
	e := ExportEntry{
		Timestamp: 1_700_000_000,
		Latitude:  40.0, Longitude: -73.0,
		Speed: &speed, Source: "gps", IsCurrent: true,
	}
	row := CSVRow(e)
	if len(row) != len(CSVHeader) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(CSVHeader))
	}
	if row[0] != "2023-11-14T22:13:20Z" {
		t.Errorf("timestamp column = %s", row[0])
	}
	if row[4] != "42.50" {
		t.Errorf("speed column = %s, want 42.50", row[4])
	}
	if row[3] != "" {
		t.Errorf("accuracy column = %q, want empty", row[3])
	}
	if row[8] != "true" {
		t.Errorf("is_current column = %s, want true", row[8])
	}
}
