package handlers

import (
	"net/http"
	"time"

	"fieldops-backend/internal/websocket"
	"fieldops-backend/pkg/utils"

	"github.com/jmoiron/sqlx"
)

// Health reports process liveness plus database reachability and the number
// of connected websocket clients.
func Health(db *sqlx.DB, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		status := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}

		utils.RespondJSON(w, status, map[string]interface{}{
			"status":            "ok",
			"database":          dbStatus,
			"websocket_clients": hub.GetClientCount(),
			"time":              time.Now().Unix(),
		})
	}
}
