package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fieldserve/internal/hub"
	"fieldserve/internal/model"
	"fieldserve/internal/schedule"
	"fieldserve/internal/store"
)

// SlotsHandler handles GET /v1/slots. With from/to it walks a date
// range and reports how many days were left unscanned when the budget
// ran out.
func (s *Server) SlotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	biz := s.businessID(r)
	duration := 60
	if v := q.Get("duration"); v != "" {
		fmt.Sscanf(v, "%d", &duration)
	}
	if duration <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid duration", "duration must be > 0 minutes", r.URL.Path)
		return
	}
	interval := 0
	if v := q.Get("interval"); v != "" {
		fmt.Sscanf(v, "%d", &interval)
	}
	staffIDs := splitCSV(q.Get("staffIds"))

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		if err := validDate(from); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date range", err.Error(), r.URL.Path)
			return
		}
		if err := validDate(to); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date range", err.Error(), r.URL.Path)
			return
		}
		res, err := s.Engine.GetAvailableSlotsRange(r.Context(), biz, from, to, duration, interval, 31)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Slot scan failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	date := q.Get("date")
	if err := validDate(date); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
		return
	}
	slots, err := s.Engine.GetAvailableSlots(r.Context(), biz, date, duration, staffIDs, interval)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Slot generation failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

// ConflictsCheckHandler handles POST /v1/conflicts/check.
func (s *Server) ConflictsCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		BusinessID           string   `json:"businessId"`
		Date                 string   `json:"date"`
		StartTime            string   `json:"startTime"`
		EndTime              string   `json:"endTime"`
		StaffIDs             []string `json:"staffIds"`
		EquipmentIDs         []string `json:"equipmentIds"`
		ExcludeAppointmentID string   `json:"excludeAppointmentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.BusinessID == "" {
		req.BusinessID = s.getPrincipal(r).BusinessID
	}
	if err := validDate(req.Date); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
		return
	}
	if err := validWindow(req.StartTime, req.EndTime); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid window", err.Error(), r.URL.Path)
		return
	}
	conflicts, err := s.Detector.CheckConflicts(r.Context(), req.BusinessID, req.Date, req.StartTime, req.EndTime, req.StaffIDs, req.EquipmentIDs, req.ExcludeAppointmentID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Conflict check failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hasConflicts": len(conflicts) > 0, "conflicts": conflicts})
}

// AppointmentsHandler handles POST /v1/appointments: the atomic
// check-and-reserve path. Detected conflicts return 409 and nothing is
// written.
func (s *Server) AppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var appt model.Appointment
	if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if appt.BusinessID == "" {
		appt.BusinessID = s.getPrincipal(r).BusinessID
	}
	if err := validateAppointmentRequest(&appt); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid appointment", err.Error(), r.URL.Path)
		return
	}

	conflicts, err := s.Detector.CheckConflicts(r.Context(), appt.BusinessID, appt.ScheduledDate, appt.StartTime, appt.EndTime, appt.StaffIDs, appt.EquipmentIDs, "")
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Conflict check failed", err.Error(), r.URL.Path)
		return
	}
	if len(conflicts) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{"conflicts": conflicts})
		return
	}

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.Status = model.StatusScheduled
	created, conflicts, err := s.Store.CreateAppointment(r.Context(), appt)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create appointment failed", err.Error(), r.URL.Path)
		return
	}
	if len(conflicts) > 0 {
		// Lost the race to another writer between check and reserve.
		writeJSON(w, http.StatusConflict, map[string]any{"conflicts": conflicts})
		return
	}
	s.publishAppointment(created, "job_assigned")
	writeJSON(w, http.StatusCreated, created)
}

// AppointmentByIDHandler routes /v1/appointments/{id} and its
// subresources /status, /reschedule, /cancel.
func (s *Server) AppointmentByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/appointments/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	biz := s.businessID(r)

	switch {
	case action == "" && r.Method == http.MethodGet:
		appt, err := s.Store.GetAppointment(r.Context(), biz, id)
		if err != nil {
			s.appointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	case action == "status" && r.Method == http.MethodPost:
		var req struct {
			Status model.AppointmentStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		appt, err := s.Engine.Transition(r.Context(), biz, id, req.Status)
		if err != nil {
			s.appointmentError(w, r, err)
			return
		}
		s.publishAppointment(appt, "job_status")
		writeJSON(w, http.StatusOK, appt)
	case action == "reschedule" && r.Method == http.MethodPost:
		var req struct {
			Date      string `json:"date"`
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validDate(req.Date); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
			return
		}
		if err := validWindow(req.StartTime, req.EndTime); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid window", err.Error(), r.URL.Path)
			return
		}
		conflicts, err := s.Detector.CheckConflicts(r.Context(), biz, req.Date, req.StartTime, req.EndTime, nil, nil, id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Conflict check failed", err.Error(), r.URL.Path)
			return
		}
		if len(conflicts) > 0 {
			writeJSON(w, http.StatusConflict, map[string]any{"conflicts": conflicts})
			return
		}
		appt, err := s.Engine.Reschedule(r.Context(), biz, id, req.Date, req.StartTime, req.EndTime)
		if err != nil {
			s.appointmentError(w, r, err)
			return
		}
		s.publishAppointment(appt, "job_rescheduled")
		writeJSON(w, http.StatusOK, appt)
	case action == "cancel" && r.Method == http.MethodPost:
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		appt, err := s.Engine.Cancel(r.Context(), biz, id, req.Reason)
		if err != nil {
			s.appointmentError(w, r, err)
			return
		}
		s.publishAppointment(appt, "job_status")
		writeJSON(w, http.StatusOK, appt)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) appointmentError(w http.ResponseWriter, r *http.Request, err error) {
	var bad schedule.ErrBadTransition
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Appointment not found", "", r.URL.Path)
	case errors.As(err, &bad):
		writeProblem(w, http.StatusConflict, "Invalid status transition", bad.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Appointment update failed", err.Error(), r.URL.Path)
	}
}

// publishAppointment fans an appointment event out to the business and
// pings each assigned technician directly.
func (s *Server) publishAppointment(appt model.Appointment, typ string) {
	evt := hub.Envelope{Type: typ, Data: map[string]any{
		"appointmentId": appt.ID,
		"status":        string(appt.Status),
		"date":          appt.ScheduledDate,
		"startTime":     appt.StartTime,
		"endTime":       appt.EndTime,
	}}
	s.Hub.BroadcastToBusiness(appt.BusinessID, evt)
	for _, techID := range appt.StaffIDs {
		s.Hub.SendToTechnician(techID, evt)
	}
}

// WeatherCheckHandler handles GET /v1/weather/check.
func (s *Server) WeatherCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	biz := s.businessID(r)
	apptID := q.Get("appointmentId")
	if apptID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing appointmentId", "", r.URL.Path)
		return
	}
	var lat, lon float64
	if _, err := fmt.Sscanf(q.Get("lat"), "%f", &lat); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid lat", q.Get("lat"), r.URL.Path)
		return
	}
	if _, err := fmt.Sscanf(q.Get("lon"), "%f", &lon); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid lon", q.Get("lon"), r.URL.Path)
		return
	}
	ev, err := s.Gate.Evaluate(r.Context(), biz, apptID, lat, lon)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Appointment not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Weather check failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// WeatherSweepHandler handles POST /v1/weather/sweep: a manual run of
// the batch evaluation over upcoming appointments.
func (s *Server) WeatherSweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsDispatcher() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req struct {
		BusinessID     string `json:"businessId"`
		LookaheadHours int    `json:"lookaheadHours"`
		MaxItems       int    `json:"maxItems"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.BusinessID == "" {
		req.BusinessID = p.BusinessID
	}
	if req.LookaheadHours <= 0 {
		req.LookaheadHours = 48
	}
	res, err := s.Gate.AutoRescheduleWindow(r.Context(), req.BusinessID, req.LookaheadHours, req.MaxItems)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Weather sweep failed", err.Error(), r.URL.Path)
		return
	}
	for _, id := range res.HeldIDs {
		if appt, err := s.Store.GetAppointment(r.Context(), req.BusinessID, id); err == nil {
			s.publishAppointment(appt, "job_status")
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// WeatherThresholdsHandler handles GET/PUT /v1/weather/thresholds.
func (s *Server) WeatherThresholdsHandler(w http.ResponseWriter, r *http.Request) {
	biz := s.businessID(r)
	switch r.Method {
	case http.MethodGet:
		t, err := s.Store.GetWeatherThresholds(r.Context(), biz)
		if errors.Is(err, store.ErrNotFound) {
			t = s.Gate.Defaults
		} else if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load thresholds failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPut:
		p := s.getPrincipal(r)
		if !p.IsDispatcher() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var t model.WeatherThresholds
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateThresholds(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid thresholds", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveWeatherThresholds(r.Context(), biz, t); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save thresholds failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, t)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RoutesOptimizeHandler handles POST /v1/routes/optimize.
func (s *Server) RoutesOptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Stops []model.Stop    `json:"stops"`
		Start *model.GeoPoint `json:"start,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateStops(req.Stops); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid stops", err.Error(), r.URL.Path)
		return
	}
	route, err := s.Optimizer.Optimize(r.Context(), req.Stops, req.Start)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Route optimization failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// TravelTimeHandler handles GET /v1/travel-time.
func (s *Server) TravelTimeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	var o, d model.GeoPoint
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"fromLat", &o.Lat}, {"fromLon", &o.Lon},
		{"toLat", &d.Lat}, {"toLon", &d.Lon},
	} {
		if _, err := fmt.Sscanf(q.Get(p.key), "%f", p.dst); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid coordinate", p.key+" required", r.URL.Path)
			return
		}
	}
	est, err := s.Estimator.TravelTime(r.Context(), o, d)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Travel estimate failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// ViewerWSHandler handles GET /v1/ws/viewer.
func (s *Server) ViewerWSHandler(w http.ResponseWriter, r *http.Request) {
	biz := s.businessID(r)
	s.Hub.ServeViewer(w, r, biz)
}

// TechnicianWSHandler handles GET /v1/ws/technician.
func (s *Server) TechnicianWSHandler(w http.ResponseWriter, r *http.Request) {
	biz := s.businessID(r)
	techID := r.URL.Query().Get("techId")
	if techID == "" {
		techID = s.getPrincipal(r).TechID
	}
	if techID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing techId", "", r.URL.Path)
		return
	}
	s.Hub.ServeTechnician(w, r, biz, techID)
}

// PresenceHandler handles GET /v1/technicians/presence.
func (s *Server) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Hub.Presence(s.businessID(r))})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": nowRFC3339()})
}

// ReadyHandler handles GET /readyz: verifies the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.ListBusinessIDs(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// BusinessHoursHandler handles GET/PUT /v1/business-hours.
func (s *Server) BusinessHoursHandler(w http.ResponseWriter, r *http.Request) {
	biz := s.businessID(r)
	switch r.Method {
	case http.MethodGet:
		date := r.URL.Query().Get("date")
		if err := validDate(date); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
			return
		}
		bh, err := s.Store.GetBusinessHours(r.Context(), biz, date)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load business hours failed", err.Error(), r.URL.Path)
			return
		}
		if bh == nil {
			writeProblem(w, http.StatusNotFound, "No business hours configured", "", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, bh)
	case http.MethodPut:
		p := s.getPrincipal(r)
		if !p.IsDispatcher() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var week map[string]model.BusinessHours
		if err := json.NewDecoder(r.Body).Decode(&week); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for day, bh := range week {
			if bh.IsOpen {
				if err := validWindow(bh.OpenTime, bh.CloseTime); err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid hours", day+": "+err.Error(), r.URL.Path)
					return
				}
			}
		}
		if err := s.Store.SetBusinessHours(r.Context(), biz, week); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save business hours failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, week)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OverridesHandler handles POST /v1/overrides.
func (s *Server) OverridesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsDispatcher() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var o model.AvailabilityOverride
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if o.StaffID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing staffId", "", r.URL.Path)
		return
	}
	if err := validDate(o.StartDate); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid startDate", err.Error(), r.URL.Path)
		return
	}
	if err := validDate(o.EndDate); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid endDate", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.PutOverride(r.Context(), o); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save override failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
