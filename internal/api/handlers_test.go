package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldserve/internal/model"
)

// 2026-01-05 is a Monday.
const monday = "2026-01-05"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func seedHours(t *testing.T, s *Server) {
	t.Helper()
	body := []byte(`{"Monday":{"isOpen":true,"openTime":"09:00","closeTime":"17:00"},"Sunday":{"isOpen":false}}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/business-hours?businessId=biz1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.BusinessHoursHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("seed hours: got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedHours(t, s)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/slots?businessId=biz1&date="+monday+"&duration=60&interval=30", nil)
	s.SlotsHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("slots: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 15 {
		t.Fatalf("got %d slots, want 15", len(resp.Slots))
	}

	// Bad date surfaces as 400.
	rr = httptest.NewRecorder()
	s.SlotsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/slots?businessId=biz1&date=garbage&duration=60", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date: got %d", rr.Code)
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t)
	seedHours(t, s)

	create := func(start, end string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(model.Appointment{
			BusinessID: "biz1", ScheduledDate: monday,
			StartTime: start, EndTime: end, StaffIDs: []string{"staff1"},
		})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/appointments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		s.AppointmentsHandler(rr, req)
		return rr
	}

	rr := create("10:00", "12:00")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var appt model.Appointment
	if err := json.Unmarshal(rr.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.ID == "" || appt.Status != model.StatusScheduled {
		t.Fatalf("got %+v", appt)
	}

	// Overlapping booking for the same staff conflicts.
	rr = create("11:00", "13:00")
	if rr.Code != http.StatusConflict {
		t.Fatalf("overlap: got %d: %s", rr.Code, rr.Body.String())
	}
	var conflictResp struct {
		Conflicts []model.Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &conflictResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(conflictResp.Conflicts) == 0 {
		t.Fatal("conflict body should list conflicts")
	}

	// Back-to-back is fine.
	if rr = create("12:00", "14:00"); rr.Code != http.StatusCreated {
		t.Fatalf("back-to-back: got %d: %s", rr.Code, rr.Body.String())
	}

	// Status transition
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/appointments/"+appt.ID+"/status?businessId=biz1", bytes.NewReader([]byte(`{"status":"confirmed"}`)))
	s.AppointmentByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status: got %d: %s", rr.Code, rr.Body.String())
	}

	// Illegal transition is a 409.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/appointments/"+appt.ID+"/status?businessId=biz1", bytes.NewReader([]byte(`{"status":"completed"}`)))
	s.AppointmentByIDHandler(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("bad transition: got %d: %s", rr.Code, rr.Body.String())
	}

	// Reschedule to a clear window.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/appointments/"+appt.ID+"/reschedule?businessId=biz1", bytes.NewReader([]byte(`{"date":"2026-01-12","startTime":"09:00","endTime":"11:00"}`)))
	s.AppointmentByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("reschedule: got %d: %s", rr.Code, rr.Body.String())
	}
	var moved model.Appointment
	_ = json.Unmarshal(rr.Body.Bytes(), &moved)
	if moved.OriginalDate != monday || moved.ScheduledDate != "2026-01-12" {
		t.Fatalf("got %+v", moved)
	}

	// Cancel
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/appointments/"+appt.ID+"/cancel?businessId=biz1", bytes.NewReader([]byte(`{"reason":"customer request"}`)))
	s.AppointmentByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("cancel: got %d: %s", rr.Code, rr.Body.String())
	}

	// Unknown appointment is a 404.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/appointments/nope?businessId=biz1", nil)
	s.AppointmentByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing: got %d", rr.Code)
	}
}

func TestConflictsCheckEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedHours(t, s)

	body := []byte(`{"businessId":"biz1","date":"2026-01-04","startTime":"10:00","endTime":"12:00"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/conflicts/check", bytes.NewReader(body))
	s.ConflictsCheckHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("check: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		HasConflicts bool             `json:"hasConflicts"`
		Conflicts    []model.Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.HasConflicts || resp.Conflicts[0].Type != model.ConflictBusinessClosed {
		t.Fatalf("Sunday should be closed: %+v", resp)
	}
}

func TestWeatherThresholdsEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Defaults come back for an unconfigured business.
	rr := httptest.NewRecorder()
	s.WeatherThresholdsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/weather/thresholds?businessId=biz1", nil))
	if rr.Code != 200 {
		t.Fatalf("get defaults: got %d", rr.Code)
	}
	var th model.WeatherThresholds
	_ = json.Unmarshal(rr.Body.Bytes(), &th)
	if th.RainProbabilityPercent != 70 {
		t.Fatalf("got %+v", th)
	}

	// Save custom thresholds and read them back.
	body := []byte(`{"rainProbabilityPercent":50,"minTemperatureF":40,"maxTemperatureF":95,"maxWindSpeedMph":25,"enabled":true}`)
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/weather/thresholds?businessId=biz1", bytes.NewReader(body))
	s.WeatherThresholdsHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("put: got %d: %s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	s.WeatherThresholdsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/weather/thresholds?businessId=biz1", nil))
	_ = json.Unmarshal(rr.Body.Bytes(), &th)
	if th.RainProbabilityPercent != 50 {
		t.Fatalf("got %+v", th)
	}

	// Inverted temperature bounds are rejected.
	body = []byte(`{"rainProbabilityPercent":50,"minTemperatureF":95,"maxTemperatureF":40,"enabled":true}`)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/weather/thresholds?businessId=biz1", bytes.NewReader(body))
	s.WeatherThresholdsHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid thresholds: got %d", rr.Code)
	}
}

func TestRoutesOptimizeEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"start":{"lat":0,"lon":0},"stops":[
		{"id":"far","location":{"lat":2,"lon":0}},
		{"id":"near","location":{"lat":0.5,"lon":0}},
		{"id":"lost","address":"12 Elm St"}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/routes/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.RoutesOptimizeHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("optimize: got %d: %s", rr.Code, rr.Body.String())
	}
	var route model.Route
	if err := json.Unmarshal(rr.Body.Bytes(), &route); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(route.OrderedStops) != 3 {
		t.Fatalf("got %d stops", len(route.OrderedStops))
	}
	if route.OrderedStops[0].ID != "near" {
		t.Fatalf("got %s first", route.OrderedStops[0].ID)
	}
	last := route.OrderedStops[2]
	if last.ID != "lost" || !last.Unoptimized {
		t.Fatalf("address-only stop appended flagged, got %+v", last)
	}

	// Duplicate IDs are rejected.
	body = []byte(`{"stops":[{"id":"x","location":{"lat":1,"lon":1}},{"id":"x","location":{"lat":2,"lon":2}}]}`)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/routes/optimize", bytes.NewReader(body))
	s.RoutesOptimizeHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate ids: got %d", rr.Code)
	}
}

func TestTravelTimeEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/travel-time?fromLat=40&fromLon=-74&toLat=41&toLon=-74", nil)
	s.TravelTimeHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("travel-time: got %d: %s", rr.Code, rr.Body.String())
	}
	var est struct {
		Minutes float64 `json:"minutes"`
		Miles   float64 `json:"miles"`
		Source  string  `json:"source"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &est); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if est.Source != "haversine" || est.Miles < 68 || est.Miles > 70 {
		t.Fatalf("got %+v", est)
	}

	rr = httptest.NewRecorder()
	s.TravelTimeHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/travel-time?fromLat=40", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing coords: got %d", rr.Code)
	}
}

func TestWeatherSweepEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedHours(t, s)
	// No appointments: a sweep still succeeds with zero counts.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/weather/sweep", bytes.NewReader([]byte(`{"businessId":"biz1"}`)))
	s.WeatherSweepHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("sweep: got %d: %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Evaluated int `json:"evaluated"`
		Held      int `json:"held"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Evaluated != 0 || res.Held != 0 {
		t.Fatalf("got %+v", res)
	}

	// Technicians may not trigger sweeps.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/weather/sweep", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Role", "technician")
	s.WeatherSweepHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("technician sweep: got %d", rr.Code)
	}
}

func TestOverridesEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"staffId":"staff1","startDate":"2026-01-05","endDate":"2026-01-06","type":"vacation"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/overrides", bytes.NewReader(body))
	s.OverridesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("override: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/overrides", bytes.NewReader([]byte(`{"staffId":"","startDate":"2026-01-05","endDate":"2026-01-06"}`)))
	s.OverridesHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing staff: got %d", rr.Code)
	}
}
