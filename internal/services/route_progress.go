package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldops-backend/internal/models"

	"github.com/google/uuid"
)

// Work-day model used to seed stop estimates: the first stop starts at the
// day-start hour and each later stop starts when the previous one is
// estimated to end.
const (
	workDayStartHour = 8
	workDayMinutes   = 8 * 60
	minStopMinutes   = 15
	maxStopMinutes   = 120
)

// RouteProgressRepo is the persistence port for per-day route records.
// GetByDay looks the singleton up by the [dayStart, dayEnd) range.
type RouteProgressRepo interface {
	GetByDay(ctx context.Context, tenantID, teamID, routeDate string) (*models.RouteProgress, error)
	Create(ctx context.Context, rp *models.RouteProgress) error
	Update(ctx context.Context, rp *models.RouteProgress, expectedVersion int64) error
}

// TaskLocator resolves stop locations when seeding a new route. May be nil;
// stops then carry no location until the mobile client reports one.
type TaskLocator interface {
	TaskByID(ctx context.Context, tenantID, taskID string) (*models.Task, error)
}

// RouteProgressTracker owns the ordered per-day stop sequence and both
// progress state machines
type RouteProgressTracker struct {
	repo     RouteProgressRepo
	resolver *IdentityResolver
	tasks    TaskLocator
	audit    Auditor
	now      func() time.Time
}

func NewRouteProgressTracker(repo RouteProgressRepo, resolver *IdentityResolver, tasks TaskLocator, audit Auditor) *RouteProgressTracker {
	return &RouteProgressTracker{
		repo:     repo,
		resolver: resolver,
		tasks:    tasks,
		audit:    audit,
		now:      time.Now,
	}
}

// AdvanceInput carries the full current counters from the caller. Statuses
// are re-derived from them on every call, so retried or duplicate deliveries
// land on the same state.
type AdvanceInput struct {
	TaskIDs        []string `json:"task_ids"`
	CurrentIndex   int      `json:"current_index"`
	CompletedCount int      `json:"completed_count"`
	RouteDate      string   `json:"route_date,omitempty"` // YYYY-MM-DD, empty means today
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// Advance records route progress for a team's day. The day's singleton
// record is created on the first call (seeding stop estimates from the
// work-day model) and updated thereafter. Stop statuses are derived purely
// from (currentIndex, completedCount): indices below completedCount are
// completed, the current index is in_progress, the rest stay pending.
func (t *RouteProgressTracker) Advance(ctx context.Context, tenantID, teamRef string, in AdvanceInput) (*models.RouteProgress, error) {
	ct, err := t.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}

	now := t.now()
	routeDate := in.RouteDate
	if routeDate == "" {
		routeDate = now.Format("2006-01-02")
	}

	rp, err := t.repo.GetByDay(ctx, tenantID, ct.Key, routeDate)
	created := false
	if errors.Is(err, ErrRecordNotFound) {
		rp = t.seedRoute(ctx, tenantID, ct.Key, routeDate, in.TaskIDs, now)
		created = true
	} else if err != nil {
		return nil, err
	}

	DeriveStopStatuses(rp, in.CurrentIndex, in.CompletedCount, now.Unix())

	summary := fmt.Sprintf("%d/%d stops completed, current stop %d",
		rp.CompletedCount, len(rp.Stops), rp.CurrentStopIndex)
	rp.ProgressUpdates = append(rp.ProgressUpdates, models.ProgressUpdate{
		Timestamp: now.Unix(),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Summary:   summary,
	})
	rp.UpdatedAt = now.Unix()

	if created {
		if err := t.repo.Create(ctx, rp); err != nil {
			return nil, err
		}
	} else {
		if err := t.repo.Update(ctx, rp, rp.Version); err != nil {
			return nil, err
		}
	}

	if t.audit != nil {
		t.audit.Record("route_progress_tracked", tenantID, ct.Key, map[string]interface{}{
			"route_date":      routeDate,
			"completed_count": rp.CompletedCount,
			"route_status":    string(rp.RouteStatus),
			"created":         created,
		})
	}
	return rp, nil
}

// seedRoute builds the day's record with estimated start/end times chained
// through the 8-hour work-day model
func (t *RouteProgressTracker) seedRoute(ctx context.Context, tenantID, teamID, routeDate string, taskIDs []string, now time.Time) *models.RouteProgress {
	day, err := time.ParseInLocation("2006-01-02", routeDate, now.Location())
	if err != nil {
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	cursor := day.Add(workDayStartHour * time.Hour)

	perStop := minStopMinutes
	if len(taskIDs) > 0 {
		perStop = workDayMinutes / len(taskIDs)
		if perStop > maxStopMinutes {
			perStop = maxStopMinutes
		}
		if perStop < minStopMinutes {
			perStop = minStopMinutes
		}
	}

	stops := make(models.RouteStops, 0, len(taskIDs))
	for i, taskID := range taskIDs {
		stop := models.RouteStop{
			TaskID:            taskID,
			ScheduledOrder:    i,
			EstimatedStart:    cursor.Unix(),
			EstimatedEnd:      cursor.Add(time.Duration(perStop) * time.Minute).Unix(),
			Status:            models.StopStatusPending,
			EstimatedDuration: perStop,
		}
		if t.tasks != nil {
			if task, err := t.tasks.TaskByID(ctx, tenantID, taskID); err == nil {
				stop.Latitude = task.Latitude
				stop.Longitude = task.Longitude
				stop.Address = task.Address
			}
		}
		stops = append(stops, stop)
		cursor = cursor.Add(time.Duration(perStop) * time.Minute)
	}

	var eta *int64
	if len(stops) > 0 {
		v := stops[len(stops)-1].EstimatedEnd
		eta = &v
	}

	return &models.RouteProgress{
		ID:                      uuid.New().String(),
		TenantID:                tenantID,
		TeamID:                  teamID,
		RouteDate:               routeDate,
		Stops:                   stops,
		RouteStatus:             models.RouteStatusPending,
		EstimatedCompletionTime: eta,
		ProgressUpdates:         models.ProgressUpdates{},
		CreatedAt:               now.Unix(),
	}
}

// DeriveStopStatuses is the pure re-derivation at the heart of the tracker.
// It maps the two counters onto every stop status, stamps actual start/end
// on first transition, and recomputes the route status. Calling it twice
// with the same counters leaves the record unchanged.
func DeriveStopStatuses(rp *models.RouteProgress, currentIndex, completedCount int, nowUnix int64) {
	if completedCount < 0 {
		completedCount = 0
	}
	if completedCount > len(rp.Stops) {
		completedCount = len(rp.Stops)
	}
	if currentIndex < 0 {
		currentIndex = 0
	}
	if currentIndex > len(rp.Stops) {
		currentIndex = len(rp.Stops)
	}

	for i := range rp.Stops {
		stop := &rp.Stops[i]
		// terminal stop states set out-of-band stay terminal
		if stop.Status == models.StopStatusSkipped || stop.Status == models.StopStatusCancelled {
			continue
		}
		switch {
		case i < completedCount:
			if stop.ActualStart == nil {
				start := nowUnix
				stop.ActualStart = &start
			}
			if stop.Status != models.StopStatusCompleted {
				end := nowUnix
				stop.ActualEnd = &end
				dur := int((end - *stop.ActualStart) / 60)
				stop.ActualDuration = &dur
			}
			stop.Status = models.StopStatusCompleted
		case i == currentIndex:
			if stop.Status != models.StopStatusInProgress {
				start := nowUnix
				stop.ActualStart = &start
			}
			stop.Status = models.StopStatusInProgress
		default:
			stop.Status = models.StopStatusPending
		}
	}

	rp.CurrentStopIndex = currentIndex
	rp.CompletedCount = completedCount

	switch {
	case len(rp.Stops) > 0 && completedCount == len(rp.Stops):
		rp.RouteStatus = models.RouteStatusCompleted
	case rp.RouteStatus == models.RouteStatusPaused || rp.RouteStatus == models.RouteStatusCancelled:
		// pause/cancel are explicit transitions, progress reports do not undo them
	default:
		rp.RouteStatus = models.RouteStatusInProgress
	}
}

// SetRouteStatus applies an explicit route-level transition (pause, resume,
// cancel). Invalid transitions are rejected.
func (t *RouteProgressTracker) SetRouteStatus(ctx context.Context, tenantID, teamRef, routeDate string, status models.RouteStatus) (*models.RouteProgress, error) {
	ct, err := t.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}
	if routeDate == "" {
		routeDate = t.now().Format("2006-01-02")
	}
	rp, err := t.repo.GetByDay(ctx, tenantID, ct.Key, routeDate)
	if err != nil {
		return nil, err
	}
	if !validRouteTransition(rp.RouteStatus, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rp.RouteStatus, status)
	}
	rp.RouteStatus = status
	rp.UpdatedAt = t.now().Unix()
	if err := t.repo.Update(ctx, rp, rp.Version); err != nil {
		return nil, err
	}
	return rp, nil
}

func validRouteTransition(from, to models.RouteStatus) bool {
	switch from {
	case models.RouteStatusPending:
		return to == models.RouteStatusInProgress || to == models.RouteStatusCancelled
	case models.RouteStatusInProgress:
		return to == models.RouteStatusPaused || to == models.RouteStatusCompleted || to == models.RouteStatusCancelled
	case models.RouteStatusPaused:
		return to == models.RouteStatusInProgress || to == models.RouteStatusCancelled
	}
	return false
}

// GetProgress returns the day's route record, or ErrRecordNotFound when the
// team has no route for that date
func (t *RouteProgressTracker) GetProgress(ctx context.Context, tenantID, teamRef, routeDate string) (*models.RouteProgress, error) {
	ct, err := t.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}
	if routeDate == "" {
		routeDate = t.now().Format("2006-01-02")
	}
	return t.repo.GetByDay(ctx, tenantID, ct.Key, routeDate)
}
