package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fieldserve/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type statusPayload struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

const (
	readDeadline      = 60 * time.Second
	keepaliveInterval = 20 * time.Second
)

// ServeViewer upgrades a dashboard connection and streams business
// events until the peer goes away.
func (h *Hub) ServeViewer(w http.ResponseWriter, r *http.Request, businessID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := h.ConnectViewer(businessID)
	c.Send(Envelope{Type: "connected", Data: map[string]any{"businessId": businessID}, Timestamp: h.now().UTC().Format(time.RFC3339)})
	go h.writePump(ws, c)
	h.readPump(ws, c, nil)
}

// ServeTechnician upgrades a technician device connection. Inbound
// location and status frames update presence and fan out to viewers.
func (h *Hub) ServeTechnician(w http.ResponseWriter, r *http.Request, businessID, techID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := h.ConnectTechnician(businessID, techID)
	c.Send(Envelope{Type: "connected", Data: map[string]any{"businessId": businessID, "technicianId": techID}, Timestamp: h.now().UTC().Format(time.RFC3339)})
	go h.writePump(ws, c)
	h.readPump(ws, c, func(msg inboundMessage) {
		switch msg.Type {
		case "location":
			var pl locationPayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil {
				return
			}
			h.UpdateLocation(businessID, techID, pl.Latitude, pl.Longitude)
		case "status":
			var pl statusPayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil {
				return
			}
			h.UpdateStatus(businessID, techID, model.TechStatus(pl.Status), pl.JobID)
		default:
			// ignore
		}
	})
}

// readPump drains inbound frames until error or close, then tears the
// connection down. Malformed frames are dropped silently.
func (h *Hub) readPump(ws *websocket.Conn, c *Conn, onMessage func(inboundMessage)) {
	defer func() {
		h.Disconnect(c)
		_ = ws.Close()
	}()
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error { _ = ws.SetReadDeadline(time.Now().Add(readDeadline)); return nil })
	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("hub: read error tech=%s: %v", c.TechnicianID, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
		if msg.Type == "ping" {
			c.Send(Envelope{Type: "pong", Timestamp: h.now().UTC().Format(time.RFC3339)})
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// writePump serializes outbound envelopes and keeps the peer alive
// with pings. Exits when the hub closes the connection.
func (h *Hub) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case evt := <-c.Outbox():
			if err := ws.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Closed():
			// flush nothing further; the peer was replaced or dropped
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}
