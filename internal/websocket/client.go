package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"fieldops-backend/internal/models"
	"fieldops-backend/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048 // position_report payloads fit comfortably
)

// Client represents a WebSocket client connection
type Client struct {
	UserID   string
	TenantID string
	UserRole string // "field" or "admin"
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
	store    *services.LocationStore
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// positionReportMessage is the payload of a position_report frame
type positionReportMessage struct {
	TeamID string `json:"team_id"`
	services.UpdatePositionInput
}

// NewClient creates a new WebSocket client
func NewClient(userID, tenantID, userRole string, conn *websocket.Conn, hub *Hub, store *services.LocationStore) *Client {
	return &Client{
		UserID:   userID,
		TenantID: tenantID,
		UserRole: userRole,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
		store:    store,
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		switch msg.Type {
		case "ping":
			response := map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			}
			responseData, _ := json.Marshal(response)
			c.send <- responseData

		case "position_report":
			c.handlePositionReport(msg.Data)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handlePositionReport routes a position_report frame through the same
// ingestion path as the REST endpoint and fans the result out to admins
func (c *Client) handlePositionReport(data json.RawMessage) {
	if c.store == nil {
		log.Printf("❌ Location store not available for websocket ingestion")
		return
	}

	var report positionReportMessage
	if err := json.Unmarshal(data, &report); err != nil {
		log.Printf("❌ Invalid position_report from %s: %v", c.UserID, err)
		return
	}
	if report.TeamID == "" {
		log.Printf("❌ position_report from %s carries no team_id", c.UserID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := c.store.UpdatePosition(ctx, c.TenantID, report.TeamID, report.UpdatePositionInput)
	if err != nil {
		log.Printf("❌ Websocket position report for team %s failed: %v", report.TeamID, err)
		c.sendError("position_report_failed", err.Error())
		return
	}

	c.hub.BroadcastToRole(c.TenantID, "admin", map[string]interface{}{
		"type": "team_location_update",
		"data": map[string]interface{}{
			"team_id":        result.Record.TeamID,
			"latitude":       result.Record.Latitude,
			"longitude":      result.Record.Longitude,
			"speed":          result.Record.Speed,
			"heading":        result.Record.Heading,
			"status":         result.Record.Status,
			"last_update":    result.Record.LastUpdate,
			"status_changed": result.StatusChanged,
		},
	})

	if result.StatusChanged && result.Record.Status == models.LocationStatusEmergency {
		log.Printf("🚨 Emergency status reported over websocket by team %s", result.Record.TeamID)
	}
}

func (c *Client) sendError(kind, detail string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":  kind,
		"error": detail,
	})
	select {
	case c.send <- payload:
	default:
	}
}
