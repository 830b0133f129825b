package handlers

import (
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"fieldops-backend/internal/metrics"
	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
	"fieldops-backend/internal/websocket"
	"fieldops-backend/pkg/utils"
)

type UpdateLocationRequest struct {
	TeamID string `json:"team_id"`
	services.UpdatePositionInput
}

// UpdateTeamLocation ingests one position report: validates, reconciles the
// team identity, applies the fix, and fans the result out to dashboards
func UpdateTeamLocation(store *services.LocationStore, hub *websocket.Hub, fcm *services.FCMService, live *services.LiveCache, reg *metrics.MetricsRegistry, db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req UpdateLocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.TeamID == "" {
			utils.RespondError(w, http.StatusBadRequest, "team_id is required")
			return
		}

		log.Printf("📥 Position report for team %s (%.5f, %.5f)", req.TeamID, req.Latitude, req.Longitude)

		result, err := store.UpdatePosition(r.Context(), claims.TenantID, req.TeamID, req.UpdatePositionInput)
		if err != nil {
			if reg != nil {
				reg.LocationUpdatesTotal.WithLabelValues("error").Inc()
			}
			respondServiceError(w, err)
			return
		}
		if reg != nil {
			outcome := "applied"
			if result.Deduplicated {
				outcome = "deduplicated"
			}
			reg.LocationUpdatesTotal.WithLabelValues(outcome).Inc()
		}

		rec := result.Record
		hub.BroadcastToRole(claims.TenantID, "admin", map[string]interface{}{
			"type": "team_location_update",
			"data": map[string]interface{}{
				"team_id":        rec.TeamID,
				"team_name":      rec.TeamName,
				"latitude":       rec.Latitude,
				"longitude":      rec.Longitude,
				"speed":          rec.Speed,
				"heading":        rec.Heading,
				"status":         rec.Status,
				"connectivity":   rec.Connectivity,
				"last_update":    rec.LastUpdate,
				"status_changed": result.StatusChanged,
			},
		})

		live.Publish(r.Context(), claims.TenantID, rec.TeamID, rec.Latitude, rec.Longitude, rec)

		if result.StatusChanged && rec.Status == models.LocationStatusEmergency {
			go notifyEmergency(db, fcm, claims.TenantID, rec)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"location":       rec,
			"created":        result.Created,
			"status_changed": result.StatusChanged,
			"deduplicated":   result.Deduplicated,
		})
	}
}

// notifyEmergency pushes an FCM alert to every admin device in the tenant.
// Failures are logged and dropped.
func notifyEmergency(db *sqlx.DB, fcm *services.FCMService, tenantID string, rec *models.TeamLocationRecord) {
	if fcm == nil || db == nil {
		return
	}

	var tokens []string
	err := db.Select(&tokens, `
		SELECT ft.token FROM fcm_tokens ft
		JOIN users u ON u.id = ft.user_id
		WHERE u.tenant_id = $1 AND u.role = 'admin'`, tenantID)
	if err != nil {
		log.Printf("⚠️  Failed to load admin FCM tokens: %v", err)
		return
	}

	for _, token := range tokens {
		if err := fcm.SendEmergencyAlert(token, rec.TeamName, rec.Latitude, rec.Longitude); err != nil {
			log.Printf("⚠️  Emergency alert delivery failed: %v", err)
		}
	}
	log.Printf("🚨 Emergency alert dispatched for team %s to %d devices", rec.TeamID, len(tokens))
}

// GetTeamLocations lists current locations for the tenant with optional
// status / task / freshness filters
func GetTeamLocations(store *services.LocationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var filters services.LocationFilters
		if s := r.URL.Query().Get("status"); s != "" {
			status := models.LocationStatus(s)
			if !models.ValidStatus(status) {
				utils.RespondError(w, http.StatusBadRequest, "Unknown status filter")
				return
			}
			filters.Status = &status
		}
		if t := r.URL.Query().Get("task_id"); t != "" {
			filters.TaskID = &t
		}
		if since := r.URL.Query().Get("updated_since"); since != "" {
			ts, err := strconv.ParseInt(since, 10, 64)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "updated_since must be epoch seconds")
				return
			}
			filters.UpdatedSince = &ts
		}

		records, err := store.ListCurrent(r.Context(), claims.TenantID, filters)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"locations": records,
			"count":     len(records),
		})
	}
}

// GetLocationStats returns the tenant-wide location aggregate
func GetLocationStats(store *services.LocationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		stats, err := store.Stats(r.Context(), claims.TenantID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"stats":   stats,
		})
	}
}

// GetTeamLocation returns one team's current location, or the offline
// placeholder when the team has never reported
func GetTeamLocation(store *services.LocationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		rec, err := store.GetCurrent(r.Context(), claims.TenantID, chi.URLParam(r, "teamRef"))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"location": rec,
		})
	}
}

func parseHistoryQuery(r *http.Request) (services.HistoryQuery, error) {
	var q services.HistoryQuery
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return q, services.ErrInvalidCoordinates
		}
		q.Limit = limit
	}
	if f := r.URL.Query().Get("from"); f != "" {
		ts, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return q, services.ErrInvalidCoordinates
		}
		q.From = &ts
	}
	if t := r.URL.Query().Get("to"); t != "" {
		ts, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return q, services.ErrInvalidCoordinates
		}
		q.To = &ts
	}
	return q, nil
}

// GetLocationHistory returns the reconstructed movement history, newest
// first
func GetLocationHistory(formatter *services.HistoryFormatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		q, err := parseHistoryQuery(r)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid history query parameters")
			return
		}

		entries, err := formatter.History(r.Context(), claims.TenantID, chi.URLParam(r, "teamRef"), q)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"history": entries,
			"count":   len(entries),
		})
	}
}

// ExportLocationHistory streams the reconstructed history as CSV
func ExportLocationHistory(formatter *services.HistoryFormatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		q, err := parseHistoryQuery(r)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid history query parameters")
			return
		}

		teamRef := chi.URLParam(r, "teamRef")
		entries, err := formatter.History(r.Context(), claims.TenantID, teamRef, q)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="location-history-`+teamRef+`.csv"`)

		cw := csv.NewWriter(w)
		cw.Write(services.CSVHeader)
		for _, e := range entries {
			cw.Write(services.CSVRow(e))
		}
		cw.Flush()
	}
}

// DeleteTeamLocation decommissions a team's location record (admin only)
func DeleteTeamLocation(store *services.LocationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if err := store.Decommission(r.Context(), claims.TenantID, chi.URLParam(r, "teamRef")); err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Location record decommissioned",
		})
	}
}
