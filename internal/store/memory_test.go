package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fieldserve/internal/model"
)

func TestCreateAppointmentReservesAtomically(t *testing.T) {
	m := NewMemory()
	a := model.Appointment{
		BusinessID: "biz1", ScheduledDate: "2026-01-05",
		StartTime: "10:00", EndTime: "12:00",
		StaffIDs: []string{"staff1"}, Status: model.StatusScheduled,
	}
	created, conflicts, err := m.CreateAppointment(context.Background(), a)
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("first create: %v %+v", err, conflicts)
	}
	if created.ID == "" {
		t.Fatal("id should be assigned")
	}

	_, conflicts, err = m.CreateAppointment(context.Background(), a)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if len(conflicts) == 0 {
		t.Fatal("overlapping staff booking must conflict")
	}
	if conflicts[0].Type != model.ConflictStaffDoubleBooked {
		t.Fatalf("got %s", conflicts[0].Type)
	}
}

func TestCreateAppointmentConcurrentWriters(t *testing.T) {
	m := NewMemory()
	// Many goroutines race for the same staff window; exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, conflicts, err := m.CreateAppointment(context.Background(), model.Appointment{
				BusinessID: "biz1", ScheduledDate: "2026-01-05",
				StartTime: "10:00", EndTime: "12:00",
				StaffIDs: []string{"staff1"}, Status: model.StatusScheduled,
			})
			if err == nil && len(conflicts) == 0 {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d writers won the same window, want exactly 1", wins)
	}
}

func TestListAppointmentsFilters(t *testing.T) {
	m := NewMemory()
	seed := func(id, date, start, end string, staff []string, status model.AppointmentStatus) {
		t.Helper()
		if _, _, err := m.CreateAppointment(context.Background(), model.Appointment{
			ID: id, BusinessID: "biz1", ScheduledDate: date,
			StartTime: start, EndTime: end, StaffIDs: staff, Status: status,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("a1", "2026-01-05", "09:00", "10:00", []string{"s1"}, model.StatusScheduled)
	seed("a2", "2026-01-05", "10:00", "11:00", []string{"s2"}, model.StatusConfirmed)
	seed("a3", "2026-01-06", "09:00", "10:00", []string{"s1"}, model.StatusScheduled)
	if _, err := m.UpdateAppointmentStatus(context.Background(), "biz1", "a2", model.StatusCanceled, model.AppointmentPatch{}); err != nil {
		t.Fatalf("cancel a2: %v", err)
	}

	got, err := m.ListAppointments(context.Background(), "biz1", "2026-01-05", model.ActiveStatuses, nil, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("got %+v, want just a1", got)
	}

	got, err = m.ListAppointments(context.Background(), "biz1", "2026-01-05", nil, []string{"s2"}, "")
	if err != nil {
		t.Fatalf("list by staff: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("staff filter got %+v", got)
	}

	got, err = m.ListAppointments(context.Background(), "biz1", "2026-01-05", nil, nil, "a1")
	if err != nil {
		t.Fatalf("list exclude: %v", err)
	}
	for _, a := range got {
		if a.ID == "a1" {
			t.Fatal("excluded id came back")
		}
	}
}

func TestListAppointmentsInRangeSorted(t *testing.T) {
	m := NewMemory()
	for _, x := range []struct{ id, date, start string }{
		{"late", "2026-01-07", "09:00"},
		{"early", "2026-01-05", "09:00"},
		{"mid", "2026-01-05", "13:00"},
		{"outside", "2026-01-20", "09:00"},
	} {
		if _, _, err := m.CreateAppointment(context.Background(), model.Appointment{
			ID: x.id, BusinessID: "biz1", ScheduledDate: x.date,
			StartTime: x.start, EndTime: "17:00", Status: model.StatusScheduled,
		}); err != nil {
			t.Fatalf("seed %s: %v", x.id, err)
		}
	}
	got, err := m.ListAppointmentsInRange(context.Background(), "biz1", "2026-01-05", "2026-01-10", []model.AppointmentStatus{model.StatusScheduled})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	ids := []string{}
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	want := []string{"early", "mid", "late"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestBusinessScoping(t *testing.T) {
	m := NewMemory()
	if _, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: "2026-01-05",
		StartTime: "09:00", EndTime: "10:00", Status: model.StatusScheduled,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := m.GetAppointment(context.Background(), "biz2", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-business read should be ErrNotFound, got %v", err)
	}
	if _, err := m.UpdateAppointmentStatus(context.Background(), "biz2", "a1", model.StatusConfirmed, model.AppointmentPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-business update should be ErrNotFound, got %v", err)
	}
}

func TestWeatherThresholdsRoundTrip(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetWeatherThresholds(context.Background(), "biz1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unset thresholds should be ErrNotFound, got %v", err)
	}
	th := model.WeatherThresholds{RainProbabilityPercent: 40, MinTemperatureF: 35, MaxTemperatureF: 100, MaxWindSpeedMPH: 20, Enabled: true}
	if err := m.SaveWeatherThresholds(context.Background(), "biz1", th); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.GetWeatherThresholds(context.Background(), "biz1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != th {
		t.Fatalf("got %+v, want %+v", got, th)
	}
}

func TestSeparateEquipmentDoesNotConflict(t *testing.T) {
	m := NewMemory()
	a := model.Appointment{
		BusinessID: "biz1", ScheduledDate: "2026-01-05",
		StartTime: "10:00", EndTime: "12:00",
		EquipmentIDs: []string{"lift1"}, Status: model.StatusScheduled,
	}
	if _, conflicts, err := m.CreateAppointment(context.Background(), a); err != nil || len(conflicts) != 0 {
		t.Fatalf("first: %v %+v", err, conflicts)
	}
	b := a
	b.EquipmentIDs = []string{"lift2"}
	if _, conflicts, err := m.CreateAppointment(context.Background(), b); err != nil || len(conflicts) != 0 {
		t.Fatalf("different equipment should not conflict: %v %+v", err, conflicts)
	}
	c := a
	if _, conflicts, _ := m.CreateAppointment(context.Background(), c); len(conflicts) == 0 {
		t.Fatal("same equipment overlap must conflict")
	}
}
