package handlers

import (
	"errors"
	"net/http"

	"fieldops-backend/internal/services"
	"fieldops-backend/pkg/utils"
)

// respondServiceError maps service sentinel errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCoordinates):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrTeamNotFound):
		utils.RespondError(w, http.StatusNotFound, "Team not found")
	case errors.Is(err, services.ErrRecordNotFound):
		utils.RespondError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, services.ErrInvalidTransition):
		utils.RespondError(w, http.StatusConflict, "Invalid route status transition")
	case errors.Is(err, services.ErrConcurrencyConflict):
		utils.RespondError(w, http.StatusConflict, "Concurrent update, retry the request")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
