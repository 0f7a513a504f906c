package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/printdesk/fleet/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventMessage is the envelope pushed to dashboard WebSocket clients.
type EventMessage struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventHub fans state changes out to connected dashboards. It
// implements core.EventSink so it can be wired alongside the webhook
// sender.
type EventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS upgrades the connection and parks it until the client
// disconnects. All traffic is server to client.
func (h *EventHub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			break
		}
	}
}

func (h *EventHub) broadcast(event string, data interface{}) {
	msg := EventMessage{Event: event, Timestamp: time.Now().UTC(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			conn.Close()
			delete(h.clients, conn)
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *EventHub) JobEvent(event string, job core.Job) {
	h.broadcast(event, jobResponse(job))
}

func (h *EventHub) PrinterStatusChanged(printerID string, old, new core.PrinterStatus, reason string) {
	h.broadcast("printer_status_changed", gin.H{
		"printer_id": printerID,
		"old_status": old,
		"new_status": new,
		"reason":     reason,
	})
}

func (h *EventHub) AlertRaised(alert core.Alert) {
	h.broadcast("alert_raised", alert)
}
