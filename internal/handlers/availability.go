package handlers

import (
	"log"
	"net/http"

	"fieldops-backend/internal/database"
	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
	"fieldops-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// GetTeamAvailability returns today's availability, the 7-day outlook, and
// trailing performance metrics for one team.
func GetTeamAvailability(engine *services.AvailabilityEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		teamRef := chi.URLParam(r, "teamRef")

		report, err := engine.Report(r.Context(), claims.TenantID, teamRef)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"availability": report,
		})
	}
}

// GetTeamsAvailability returns the availability report for every roster team
// in the caller's tenant. Teams whose report cannot be computed are skipped
// rather than failing the whole response.
func GetTeamsAvailability(engine *services.AvailabilityEngine, teams *database.TeamRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		roster, err := teams.List(r.Context(), claims.TenantID)
		if err != nil {
			log.Printf("❌ Failed to list teams: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to list teams")
			return
		}

		reports := make([]*models.AvailabilityReport, 0, len(roster))
		for i := range roster {
			team := &roster[i]
			report, err := engine.Report(r.Context(), claims.TenantID, team.CanonicalKey())
			if err != nil {
				log.Printf("⚠️  Skipping availability for team %s: %v", team.CanonicalKey(), err)
				continue
			}
			reports = append(reports, report)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"teams":   reports,
			"count":   len(reports),
		})
	}
}
