package hub

import (
	"sync"
	"time"

	"fieldserve/internal/metrics"
	"fieldserve/internal/model"
)

// Envelope is the wire frame pushed to connected clients.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"ts"`
}

// Conn is one websocket peer registered with the hub. Writes go through
// the buffered send channel; the owning write pump drains it.
type Conn struct {
	BusinessID   string
	TechnicianID string // empty for viewers
	send         chan Envelope
	closeOnce    sync.Once
	closed       chan struct{}
}

func newConn(businessID, techID string) *Conn {
	return &Conn{
		BusinessID:   businessID,
		TechnicianID: techID,
		send:         make(chan Envelope, 16),
		closed:       make(chan struct{}),
	}
}

// Send queues an envelope without blocking. Returns false when the
// buffer is full or the connection is closed.
func (c *Conn) Send(evt Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// Outbox exposes the send channel to the write pump.
func (c *Conn) Outbox() <-chan Envelope { return c.send }

// Closed reports connection shutdown to the write pump.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Hub fans appointment and technician events out to live connections,
// keyed by business. At most one connection per technician: a new
// device replaces the old one.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]map[*Conn]struct{} // businessID -> set of connections
	techs    map[string]*Conn              // technicianID -> its single connection
	presence map[string]model.TechnicianPresence
	now      func() time.Time
}

func New() *Hub {
	return &Hub{
		conns:    map[string]map[*Conn]struct{}{},
		techs:    map[string]*Conn{},
		presence: map[string]model.TechnicianPresence{},
		now:      time.Now,
	}
}

// ConnectViewer registers a dashboard connection for a business.
func (h *Hub) ConnectViewer(businessID string) *Conn {
	c := newConn(businessID, "")
	h.mu.Lock()
	h.addLocked(c)
	h.mu.Unlock()
	metrics.HubConnections.WithLabelValues("viewer").Inc()
	return c
}

// ConnectTechnician registers a technician's device. Any previous
// connection for the same technician is evicted: the old peer gets a
// session_replaced frame and is closed.
func (h *Hub) ConnectTechnician(businessID, techID string) *Conn {
	c := newConn(businessID, techID)
	h.mu.Lock()
	old := h.techs[techID]
	if old != nil {
		old.Send(Envelope{Type: "session_replaced", Timestamp: h.now().UTC().Format(time.RFC3339)})
		h.removeLocked(old)
	}
	h.techs[techID] = c
	h.addLocked(c)
	p := h.presence[techID]
	p.TechID = techID
	p.BusinessID = businessID
	p.Online = true
	p.UpdatedAt = h.now().UTC()
	if p.Status == "" {
		p.Status = model.TechAvailable
	}
	h.presence[techID] = p
	h.mu.Unlock()
	if old != nil {
		old.close()
		metrics.HubEvictions.Inc()
	}
	metrics.HubConnections.WithLabelValues("technician").Inc()
	h.BroadcastToBusiness(businessID, Envelope{Type: "technician_online", Data: map[string]any{"technicianId": techID}, Timestamp: h.now().UTC().Format(time.RFC3339)})
	return c
}

// Disconnect removes a connection from the registry. Technician slots
// are only cleared when they still point at this connection, so an
// eviction followed by the old reader's cleanup does not knock out the
// replacement.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	h.removeLocked(c)
	wasTech := false
	if c.TechnicianID != "" && h.techs[c.TechnicianID] == c {
		delete(h.techs, c.TechnicianID)
		wasTech = true
		p := h.presence[c.TechnicianID]
		p.Online = false
		p.UpdatedAt = h.now().UTC()
		h.presence[c.TechnicianID] = p
	}
	h.mu.Unlock()
	c.close()
	if c.TechnicianID == "" {
		metrics.HubConnections.WithLabelValues("viewer").Dec()
	} else {
		metrics.HubConnections.WithLabelValues("technician").Dec()
	}
	if wasTech {
		h.BroadcastToBusiness(c.BusinessID, Envelope{Type: "technician_offline", Data: map[string]any{"technicianId": c.TechnicianID}, Timestamp: h.now().UTC().Format(time.RFC3339)})
	}
}

func (h *Hub) addLocked(c *Conn) {
	if h.conns[c.BusinessID] == nil {
		h.conns[c.BusinessID] = map[*Conn]struct{}{}
	}
	h.conns[c.BusinessID][c] = struct{}{}
}

func (h *Hub) removeLocked(c *Conn) {
	if m := h.conns[c.BusinessID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.conns, c.BusinessID)
		}
	}
}

// BroadcastToBusiness sends an envelope to every connection for the
// business. Slow peers have the frame dropped rather than stalling the
// caller.
func (h *Hub) BroadcastToBusiness(businessID string, evt Envelope) {
	if evt.Timestamp == "" {
		evt.Timestamp = h.now().UTC().Format(time.RFC3339)
	}
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns[businessID]))
	for c := range h.conns[businessID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		if !c.Send(evt) {
			metrics.HubDroppedSends.Inc()
		}
	}
	metrics.HubBroadcasts.WithLabelValues(evt.Type).Inc()
}

// SendToTechnician delivers an envelope to a technician's connection,
// if present. Returns false when the technician is offline or the
// send is dropped.
func (h *Hub) SendToTechnician(techID string, evt Envelope) bool {
	if evt.Timestamp == "" {
		evt.Timestamp = h.now().UTC().Format(time.RFC3339)
	}
	h.mu.Lock()
	c := h.techs[techID]
	h.mu.Unlock()
	if c == nil {
		return false
	}
	if !c.Send(evt) {
		metrics.HubDroppedSends.Inc()
		return false
	}
	return true
}

// UpdateLocation records a technician's reported position and fans a
// tech_location out to the business.
func (h *Hub) UpdateLocation(businessID, techID string, lat, lon float64) {
	now := h.now().UTC()
	ts := now.Format(time.RFC3339)
	h.mu.Lock()
	p := h.presence[techID]
	p.TechID = techID
	p.BusinessID = businessID
	p.Online = true
	p.Location = &model.GeoPoint{Lat: lat, Lon: lon}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.TechAvailable
	}
	h.presence[techID] = p
	h.mu.Unlock()
	h.BroadcastToBusiness(businessID, Envelope{
		Type:      "tech_location",
		Data:      map[string]any{"technicianId": techID, "lat": lat, "lon": lon},
		Timestamp: ts,
	})
}

// UpdateStatus records a technician's working status and current job,
// then fans a tech_status out to the business. Unknown statuses are
// ignored.
func (h *Hub) UpdateStatus(businessID, techID string, status model.TechStatus, jobID string) {
	if !status.Valid() {
		return
	}
	now := h.now().UTC()
	ts := now.Format(time.RFC3339)
	h.mu.Lock()
	p := h.presence[techID]
	p.TechID = techID
	p.BusinessID = businessID
	p.Online = true
	p.Status = status
	p.CurrentJobID = jobID
	p.UpdatedAt = now
	h.presence[techID] = p
	h.mu.Unlock()
	data := map[string]any{"technicianId": techID, "status": string(status)}
	if jobID != "" {
		data["jobId"] = jobID
	}
	h.BroadcastToBusiness(businessID, Envelope{
		Type:      "tech_status",
		Data:      data,
		Timestamp: ts,
	})
}

// Presence lists known technicians for a business, online or not.
func (h *Hub) Presence(businessID string) []model.TechnicianPresence {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []model.TechnicianPresence{}
	for _, p := range h.presence {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out
}
