package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"fieldops-backend/internal/metrics"
	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
	"fieldops-backend/internal/websocket"
	"fieldops-backend/pkg/utils"
)

type UpdateRouteProgressRequest struct {
	TeamID string `json:"team_id"`
	services.AdvanceInput
}

// UpdateRouteProgress records a route progress snapshot for a team's day
// and fans the derived state out to dashboards
func UpdateRouteProgress(tracker *services.RouteProgressTracker, hub *websocket.Hub, fcm *services.FCMService, reg *metrics.MetricsRegistry, db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req UpdateRouteProgressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.TeamID == "" {
			utils.RespondError(w, http.StatusBadRequest, "team_id is required")
			return
		}

		log.Printf("📥 Route progress for team %s: stop %d, %d completed", req.TeamID, req.CurrentIndex, req.CompletedCount)

		rp, err := tracker.Advance(r.Context(), claims.TenantID, req.TeamID, req.AdvanceInput)
		if err != nil {
			if reg != nil {
				reg.RouteProgressTotal.WithLabelValues("error").Inc()
			}
			respondServiceError(w, err)
			return
		}
		if reg != nil {
			reg.RouteProgressTotal.WithLabelValues("applied").Inc()
		}

		hub.BroadcastToRole(claims.TenantID, "admin", map[string]interface{}{
			"type": "route_progress_update",
			"data": map[string]interface{}{
				"team_id":            rp.TeamID,
				"route_date":         rp.RouteDate,
				"route_status":       rp.RouteStatus,
				"current_stop_index": rp.CurrentStopIndex,
				"completed_count":    rp.CompletedCount,
				"total_stops":        len(rp.Stops),
			},
		})

		// first snapshot of the day seeded the route: nudge field devices
		if len(rp.ProgressUpdates) == 1 {
			go notifyRouteAssigned(db, fcm, claims.TenantID, rp)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"progress": rp,
		})
	}
}

func notifyRouteAssigned(db *sqlx.DB, fcm *services.FCMService, tenantID string, rp *models.RouteProgress) {
	if fcm == nil || db == nil {
		return
	}

	var tokens []string
	err := db.Select(&tokens, `
		SELECT ft.token FROM fcm_tokens ft
		JOIN users u ON u.id = ft.user_id
		WHERE u.tenant_id = $1 AND u.role = 'field'`, tenantID)
	if err != nil {
		log.Printf("⚠️  Failed to load field FCM tokens: %v", err)
		return
	}

	for _, token := range tokens {
		if err := fcm.SendRouteAssignedNotification(token, rp.RouteDate, len(rp.Stops)); err != nil {
			log.Printf("⚠️  Route notification delivery failed: %v", err)
		}
	}
}

// GetRouteProgress returns a team's route progress for a day (today when
// no date is given)
func GetRouteProgress(tracker *services.RouteProgressTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		rp, err := tracker.GetProgress(r.Context(), claims.TenantID, chi.URLParam(r, "teamRef"), r.URL.Query().Get("date"))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"progress": rp,
		})
	}
}

type SetRouteStatusRequest struct {
	RouteDate string             `json:"route_date,omitempty"`
	Status    models.RouteStatus `json:"status"`
}

// SetRouteStatus applies an explicit route state transition (pause, resume,
// cancel)
func SetRouteStatus(tracker *services.RouteProgressTracker, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req SetRouteStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		rp, err := tracker.SetRouteStatus(r.Context(), claims.TenantID, chi.URLParam(r, "teamRef"), req.RouteDate, req.Status)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		hub.BroadcastToRole(claims.TenantID, "admin", map[string]interface{}{
			"type": "route_progress_update",
			"data": map[string]interface{}{
				"team_id":      rp.TeamID,
				"route_date":   rp.RouteDate,
				"route_status": rp.RouteStatus,
			},
		})
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"progress": rp,
		})
	}
}
