package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fieldserve/internal/model"
)

func dialTechnician(t *testing.T, h *Hub, businessID, techID string) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeTechnician(w, r, businessID, techID)
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return ws, func() {
		_ = ws.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, ws *websocket.Conn, wantType string) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var evt Envelope
	if err := ws.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != wantType {
		t.Fatalf("got %s, want %s", evt.Type, wantType)
	}
	return evt
}

func waitPresence(t *testing.T, h *Hub, businessID string, ok func(model.TechnicianPresence) bool) model.TechnicianPresence {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, p := range h.Presence(businessID) {
			if ok(p) {
				return p
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("presence never reached expected state")
	return model.TechnicianPresence{}
}

func TestInboundLocationFrameUpdatesPresence(t *testing.T) {
	h := New()
	ws, done := dialTechnician(t, h, "biz1", "tech1")
	defer done()
	readFrame(t, ws, "technician_online")
	readFrame(t, ws, "connected")

	err := ws.WriteJSON(map[string]any{
		"type":    "location",
		"payload": map[string]any{"latitude": 40.71, "longitude": -74.01},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	p := waitPresence(t, h, "biz1", func(p model.TechnicianPresence) bool {
		return p.TechID == "tech1" && p.Location != nil
	})
	if p.Location.Lat != 40.71 || p.Location.Lon != -74.01 {
		t.Fatalf("location (%v,%v), want (40.71,-74.01)", p.Location.Lat, p.Location.Lon)
	}

	// The reporting device is a business connection too, so it hears
	// its own fan-out.
	evt := readFrame(t, ws, "tech_location")
	if evt.Data["technicianId"] != "tech1" {
		t.Fatalf("fan-out data %+v", evt.Data)
	}
}

func TestInboundStatusFrameCarriesJob(t *testing.T) {
	h := New()
	ws, done := dialTechnician(t, h, "biz1", "tech1")
	defer done()
	readFrame(t, ws, "technician_online")
	readFrame(t, ws, "connected")

	err := ws.WriteJSON(map[string]any{
		"type":    "status",
		"payload": map[string]any{"status": "on_job", "job_id": "job_9"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	p := waitPresence(t, h, "biz1", func(p model.TechnicianPresence) bool {
		return p.Status == model.TechOnJob
	})
	if p.CurrentJobID != "job_9" {
		t.Fatalf("current job %q, want job_9", p.CurrentJobID)
	}

	evt := readFrame(t, ws, "tech_status")
	if evt.Data["status"] != "on_job" || evt.Data["jobId"] != "job_9" {
		t.Fatalf("fan-out data %+v", evt.Data)
	}
}

func TestInboundMalformedPayloadDroppedSilently(t *testing.T) {
	h := New()
	ws, done := dialTechnician(t, h, "biz1", "tech1")
	defer done()
	readFrame(t, ws, "technician_online")
	readFrame(t, ws, "connected")

	// Not an object where one is expected; must not kill the connection.
	if err := ws.WriteJSON(map[string]any{"type": "location", "payload": "garbage"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ws.WriteJSON(map[string]any{"type": "no_such_kind"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := ws.WriteJSON(map[string]any{
		"type":    "location",
		"payload": map[string]any{"latitude": 1.5, "longitude": 2.5},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	p := waitPresence(t, h, "biz1", func(p model.TechnicianPresence) bool {
		return p.Location != nil
	})
	if p.Location.Lat != 1.5 || p.Location.Lon != 2.5 {
		t.Fatalf("location (%v,%v), want (1.5,2.5)", p.Location.Lat, p.Location.Lon)
	}
}

func TestInboundPingAnswered(t *testing.T) {
	h := New()
	ws, done := dialTechnician(t, h, "biz1", "tech1")
	defer done()
	readFrame(t, ws, "technician_online")
	readFrame(t, ws, "connected")

	if err := ws.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrame(t, ws, "pong")
}
