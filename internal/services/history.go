package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fieldops-backend/internal/geomath"
	"fieldops-backend/internal/models"
)

// Source inference: fixes with sub-20-unit accuracy came from GPS, fixes
// carrying an address were address lookups, anything else was entered by
// hand.
const gpsAccuracyThreshold = 20.0

// ExportEntry is one display-ready row of reconstructed location history
type ExportEntry struct {
	Timestamp int64    `json:"timestamp"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`   // km/h, derived per pair
	Heading   *float64 `json:"heading,omitempty"` // degrees
	Source    string   `json:"source"`            // gps | address | manual
	Notes     string   `json:"notes,omitempty"`
	IsCurrent bool     `json:"is_current"`
}

// HistoryFormatter flattens a team's stored history into a deduplicated,
// chronologically descending sequence for display and export
type HistoryFormatter struct {
	store    *LocationStore
	resolver *IdentityResolver
	now      func() time.Time
}

func NewHistoryFormatter(store *LocationStore, resolver *IdentityResolver) *HistoryFormatter {
	return &HistoryFormatter{store: store, resolver: resolver, now: time.Now}
}

// HistoryQuery bounds the reconstructed sequence. Limit applies after
// deduplication; From/To are optional epoch-second bounds.
type HistoryQuery struct {
	Limit int
	From  *int64
	To    *int64
}

// History reconstructs the display history for one team: current fix plus
// historical fixes, deduplicated, annotated, newest first. Teams with no
// record yield an empty sequence, not an error.
func (f *HistoryFormatter) History(ctx context.Context, tenantID, teamRef string, q HistoryQuery) ([]ExportEntry, error) {
	ct, err := f.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}

	rec, err := f.store.repo.Get(ctx, tenantID, ct.Key)
	if errors.Is(err, ErrRecordNotFound) {
		return []ExportEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	return FormatHistory(rec, ct.Team, q), nil
}

// FormatHistory is the pure formatting core, exposed for tests
func FormatHistory(rec *models.TeamLocationRecord, team *models.Team, q HistoryQuery) []ExportEntry {
	// ascending raw sequence: ring entries are stored oldest first, the
	// current fix is the newest sample
	raw := make([]ExportEntry, 0, len(rec.History)+1)
	for _, h := range rec.History {
		raw = append(raw, ExportEntry{
			Timestamp: h.Timestamp,
			Latitude:  h.Latitude,
			Longitude: h.Longitude,
			Accuracy:  h.Accuracy,
		})
	}
	raw = append(raw, ExportEntry{
		Timestamp: rec.LastUpdate,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Accuracy:  rec.Accuracy,
		IsCurrent: true,
	})
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Timestamp < raw[j].Timestamp })

	// collapse near-identical neighbors, keeping the first-seen entry
	deduped := make([]ExportEntry, 0, len(raw))
	for _, e := range raw {
		if len(deduped) > 0 {
			prev := deduped[len(deduped)-1]
			distM := geomath.DistanceMeters(prev.Latitude, prev.Longitude, e.Latitude, e.Longitude)
			if distM < nearDuplicateMeters && absInt64(e.Timestamp-prev.Timestamp) < nearDuplicateSeconds {
				if e.IsCurrent {
					deduped[len(deduped)-1].IsCurrent = true
				}
				continue
			}
		}
		if q.From != nil && e.Timestamp < *q.From {
			continue
		}
		if q.To != nil && e.Timestamp > *q.To {
			continue
		}
		deduped = append(deduped, e)
	}

	// motion attributes per consecutive pair, then annotations
	for i := range deduped {
		if i > 0 {
			prev := deduped[i-1]
			e := &deduped[i]
			e.Speed, e.Heading = DeriveMotion(prev.Latitude, prev.Longitude, prev.Timestamp, e.Latitude, e.Longitude, e.Timestamp)
		}
		annotate(&deduped[i], rec, team)
	}

	// newest first, bounded by the caller's limit
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}
	if q.Limit > 0 && len(deduped) > q.Limit {
		deduped = deduped[:q.Limit]
	}
	return deduped
}

func annotate(e *ExportEntry, rec *models.TeamLocationRecord, team *models.Team) {
	switch {
	case e.Accuracy != nil && *e.Accuracy < gpsAccuracyThreshold:
		e.Source = "gps"
	case e.IsCurrent && rec.Address != nil && *rec.Address != "":
		e.Source = "address"
	default:
		e.Source = "manual"
	}

	var notes []string
	if team != nil && !withinWorkingHours(e.Timestamp, workingHoursFor(team)) {
		notes = append(notes, "outside working hours")
	}
	if e.IsCurrent && rec.Connectivity == models.ConnectivityPoor {
		notes = append(notes, "poor connectivity")
	}
	e.Notes = strings.Join(notes, "; ")
}

// withinWorkingHours checks an epoch-second timestamp against an "HH:MM"
// working-hours window in local time
func withinWorkingHours(ts int64, hours models.WorkingHours) bool {
	t := time.Unix(ts, 0)
	minute := t.Hour()*60 + t.Minute()
	start, okStart := parseClock(hours.Start)
	end, okEnd := parseClock(hours.End)
	if !okStart || !okEnd {
		return true
	}
	return minute >= start && minute <= end
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}

// CSVHeader is the column order for history exports
var CSVHeader = []string{"timestamp", "latitude", "longitude", "accuracy", "speed_kmh", "heading", "source", "notes", "is_current"}

// CSVRow renders one export entry as a CSV record
func CSVRow(e ExportEntry) []string {
	return []string{
		time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
		strconv.FormatFloat(e.Latitude, 'f', 6, 64),
		strconv.FormatFloat(e.Longitude, 'f', 6, 64),
		floatOrEmpty(e.Accuracy),
		floatOrEmpty(e.Speed),
		floatOrEmpty(e.Heading),
		e.Source,
		e.Notes,
		strconv.FormatBool(e.IsCurrent),
	}
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
