package services

import (
	"context"
	"log"
	"time"

	"fieldops-backend/internal/models"

	"github.com/google/uuid"
)

// Business-wide defaults used when the roster entry does not override them
const (
	DefaultMaxDailyCapacity = 8
	busyUtilizationPercent  = 80
	metricsWindowDays       = 30
	taskQueryTimeout        = 3 * time.Second

	efficiencyCapPercent   = 200
	responseTimeCapMinutes = 120
)

var defaultWorkingHours = models.WorkingHours{Start: "08:00", End: "17:00"}

// TaskReader is the read-only port onto the task collaborator. teamIDs
// carries the candidate-key set so historically inconsistent rows still
// match.
type TaskReader interface {
	TasksInRange(ctx context.Context, tenantID string, teamIDs []string, from, to int64) ([]models.Task, error)
}

// AvailabilityRepo persists the derived per-team availability record
type AvailabilityRepo interface {
	Get(ctx context.Context, tenantID, teamID string) (*models.TeamAvailability, error)
	Upsert(ctx context.Context, av *models.TeamAvailability) error
}

// AvailabilityEngine derives present and weekly availability, utilization,
// and the trailing performance metrics from location status plus task load
type AvailabilityEngine struct {
	tasks       TaskReader
	repo        AvailabilityRepo
	locations   LocationRepo
	resolver    *IdentityResolver
	audit       Auditor
	now         func() time.Time
	taskTimeout time.Duration
}

func NewAvailabilityEngine(tasks TaskReader, repo AvailabilityRepo, locations LocationRepo, resolver *IdentityResolver, audit Auditor) *AvailabilityEngine {
	return &AvailabilityEngine{
		tasks:       tasks,
		repo:        repo,
		locations:   locations,
		resolver:    resolver,
		audit:       audit,
		now:         time.Now,
		taskTimeout: taskQueryTimeout,
	}
}

// SyncStatus re-derives the cached TeamAvailability record after a location
// status transition. Implements StatusSyncer for the location store.
func (e *AvailabilityEngine) SyncStatus(ctx context.Context, tenantID, teamID string, status models.LocationStatus, at int64) {
	if e.repo == nil {
		return
	}
	derived := MapLocationStatus(status)

	av, err := e.repo.Get(ctx, tenantID, teamID)
	if err != nil {
		av = &models.TeamAvailability{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			TeamID:       teamID,
			WorkingHours: defaultWorkingHours,
		}
	}
	if av.Status != derived {
		av.Status = derived
		av.StatusSince = at
	}
	av.UpdatedAt = at
	if err := e.repo.Upsert(ctx, av); err != nil {
		log.Printf("❌ Failed to sync availability for team %s: %v", teamID, err)
	}
}

// MapLocationStatus maps a location status onto the availability enum
func MapLocationStatus(status models.LocationStatus) models.AvailabilityStatus {
	switch status {
	case models.LocationStatusBreak:
		return models.AvailabilityBreak
	case models.LocationStatusOffline, models.LocationStatusInactive:
		return models.AvailabilityOffline
	case models.LocationStatusEmergency:
		return models.AvailabilityBusy
	default:
		return models.AvailabilityAvailable
	}
}

// Report computes the full availability report for one team: today's
// status/utilization, the 7-day outlook, and 30-day performance metrics.
// Task collaborator failures degrade to zero-valued sections, never errors.
func (e *AvailabilityEngine) Report(ctx context.Context, tenantID, teamRef string) (*models.AvailabilityReport, error) {
	ct, err := e.resolver.Resolve(ctx, tenantID, teamRef)
	if err != nil {
		return nil, err
	}

	report := &models.AvailabilityReport{
		Today:       e.today(ctx, tenantID, ct, teamRef),
		Week:        e.week(ctx, tenantID, ct, teamRef),
		Performance: e.performance(ctx, tenantID, ct, teamRef),
	}

	if e.audit != nil {
		e.audit.Record("availability_accessed", tenantID, ct.Key, map[string]interface{}{
			"status": report.Today.Status,
		})
	}
	return report, nil
}

func (e *AvailabilityEngine) today(ctx context.Context, tenantID string, ct *CanonicalTeam, teamRef string) models.TodayAvailability {
	now := e.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	today := models.TodayAvailability{
		TeamID:           ct.Key,
		TeamName:         ct.Team.Name,
		Date:             dayStart.Format("2006-01-02"),
		WorkingHours:     workingHoursFor(ct.Team),
		MaxDailyCapacity: capacityFor(ct.Team),
	}

	tasks := e.queryTasks(ctx, tenantID, ct, teamRef, dayStart.Unix(), dayEnd.Unix())
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusCancelled:
			continue
		case models.TaskStatusCompleted:
			today.CompletedTasks++
		case models.TaskStatusInProgress:
			today.InProgressTasks++
		}
		today.ScheduledTasks++
	}
	today.Utilization = float64(today.ScheduledTasks) / float64(today.MaxDailyCapacity) * 100

	today.Status = e.deriveTodayStatus(ctx, tenantID, ct.Key, today.Utilization)
	return today
}

// deriveTodayStatus applies the status priority rule: BREAK wins, then
// OFFLINE/INACTIVE, then utilization decides between busy and available.
func (e *AvailabilityEngine) deriveTodayStatus(ctx context.Context, tenantID, teamID string, utilization float64) string {
	locStatus := models.LocationStatusOffline
	if e.locations != nil {
		if rec, err := e.locations.Get(ctx, tenantID, teamID); err == nil {
			locStatus = rec.Status
		}
	}

	switch locStatus {
	case models.LocationStatusBreak:
		return "unavailable"
	case models.LocationStatusOffline, models.LocationStatusInactive:
		return "offline"
	}
	if utilization >= busyUtilizationPercent {
		return "busy"
	}
	return "available"
}

func (e *AvailabilityEngine) week(ctx context.Context, tenantID string, ct *CanonicalTeam, teamRef string) []models.DayAvailability {
	now := e.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	tasks := e.queryTasks(ctx, tenantID, ct, teamRef, dayStart.Unix(), dayStart.Add(7*24*time.Hour).Unix())

	week := make([]models.DayAvailability, 0, 7)
	for d := 0; d < 7; d++ {
		from := dayStart.Add(time.Duration(d) * 24 * time.Hour)
		to := from.Add(24 * time.Hour)

		day := models.DayAvailability{Date: from.Format("2006-01-02"), Status: "available"}
		pending, inProgress := 0, 0
		for _, task := range tasks {
			if task.ScheduledDate < from.Unix() || task.ScheduledDate >= to.Unix() {
				continue
			}
			switch task.Status {
			case models.TaskStatusInProgress:
				inProgress++
			case models.TaskStatusPending:
				pending++
			}
			if task.Status != models.TaskStatusCancelled {
				day.ScheduledTasks++
			}
		}
		switch {
		case inProgress > 0:
			day.Status = "busy"
		case pending > 0:
			day.Status = "scheduled"
		}
		week = append(week, day)
	}
	return week
}

func (e *AvailabilityEngine) performance(ctx context.Context, tenantID string, ct *CanonicalTeam, teamRef string) models.PerformanceMetrics {
	now := e.now()
	from := now.Add(-metricsWindowDays * 24 * time.Hour).Unix()

	tasks := e.queryTasks(ctx, tenantID, ct, teamRef, from, now.Unix())
	return ComputePerformance(tasks)
}

// ComputePerformance derives the trailing-window metrics from raw tasks.
// Every metric degrades to 0 when no qualifying tasks exist.
func ComputePerformance(tasks []models.Task) models.PerformanceMetrics {
	var m models.PerformanceMetrics
	if len(tasks) == 0 {
		return m
	}

	var completed, effCount, respCount, ratingCount int
	var effSum, respSum, ratingSum float64

	for _, task := range tasks {
		if task.Status != models.TaskStatusCompleted {
			continue
		}
		completed++

		if task.ActualDuration != nil && *task.ActualDuration > 0 && task.EstimatedDuration > 0 {
			eff := float64(task.EstimatedDuration) / float64(*task.ActualDuration) * 100
			if eff > efficiencyCapPercent {
				eff = efficiencyCapPercent
			}
			effSum += eff
			effCount++
		}

		if task.ActualStart != nil {
			deviation := float64(absInt64(*task.ActualStart-task.ScheduledDate)) / 60
			if deviation > responseTimeCapMinutes {
				deviation = responseTimeCapMinutes
			}
			respSum += deviation
			respCount++
		}

		if task.SatisfactionRating != nil {
			ratingSum += *task.SatisfactionRating
			ratingCount++
		}
	}

	m.CompletionRate = float64(completed) / float64(len(tasks)) * 100
	if effCount > 0 {
		m.Efficiency = effSum / float64(effCount)
	}
	if respCount > 0 {
		m.AverageResponseTime = respSum / float64(respCount)
	}
	if ratingCount > 0 {
		m.Rating = ratingSum / float64(ratingCount)
	}
	return m
}

// queryTasks wraps the task collaborator call with a timeout and degrades
// to an empty slice on failure
func (e *AvailabilityEngine) queryTasks(ctx context.Context, tenantID string, ct *CanonicalTeam, teamRef string, from, to int64) []models.Task {
	if e.tasks == nil {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	keys := e.resolver.CandidateKeys(ct, teamRef)
	tasks, err := e.tasks.TasksInRange(tctx, tenantID, keys, from, to)
	if err != nil {
		log.Printf("⚠️  Task lookup failed for team %s, degrading to empty: %v", ct.Key, err)
		return nil
	}
	return tasks
}

func workingHoursFor(team *models.Team) models.WorkingHours {
	if team.WorkingHours != nil && team.WorkingHours.Start != "" {
		return *team.WorkingHours
	}
	return defaultWorkingHours
}

func capacityFor(team *models.Team) int {
	if team.MaxDailyCapacity != nil && *team.MaxDailyCapacity > 0 {
		return *team.MaxDailyCapacity
	}
	return DefaultMaxDailyCapacity
}
