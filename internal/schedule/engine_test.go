package schedule

import (
	"context"
	"errors"
	"testing"

	"fieldserve/internal/model"
)

func TestSlotGeneration(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	// 09:00-17:00, 60 min service, 30 min interval: starts 09:00..16:00.
	slots, err := e.GetAvailableSlots(context.Background(), "biz1", monday, 60, nil, 30)
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15", len(slots))
	}
	if slots[0].Start != "09:00" || slots[0].End != "10:00" {
		t.Fatalf("first slot %s-%s, want 09:00-10:00", slots[0].Start, slots[0].End)
	}
	last := slots[len(slots)-1]
	if last.Start != "16:00" || last.End != "17:00" {
		t.Fatalf("last slot %s-%s, want 16:00-17:00 (end may touch close)", last.Start, last.End)
	}
	for _, s := range slots {
		if !s.Available {
			t.Fatalf("empty calendar should be fully available, got %+v", s)
		}
	}
}

func TestSlotGenerationMarksBookedWindows(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", StaffIDs: []string{"staff1"},
		Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	slots, err := e.GetAvailableSlots(context.Background(), "biz1", monday, 60, []string{"staff1"}, 30)
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	byStart := map[string]bool{}
	for _, s := range slots {
		byStart[s.Start] = s.Available
	}
	// 09:30, 10:00 and 10:30 starts all overlap the 10:00-11:00 booking.
	for _, start := range []string{"09:30", "10:00", "10:30"} {
		if byStart[start] {
			t.Fatalf("slot starting %s should be unavailable", start)
		}
	}
	if !byStart["09:00"] || !byStart["11:00"] {
		t.Fatalf("adjacent slots should stay available: %+v", byStart)
	}
}

func TestSlotGenerationClosedDay(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	slots, err := e.GetAvailableSlots(context.Background(), "biz1", sunday, 60, nil, 30)
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("closed day should yield no slots, got %d", len(slots))
	}
}

func TestSlotRangeBudget(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	// 2026-01-05 .. 2026-01-11 is 7 dates; budget of 3 leaves 4.
	res, err := e.GetAvailableSlotsRange(context.Background(), "biz1", "2026-01-05", "2026-01-11", 60, 30, 3)
	if err != nil {
		t.Fatalf("GetAvailableSlotsRange: %v", err)
	}
	if len(res.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(res.Days))
	}
	if res.Remaining != 4 {
		t.Fatalf("got remaining %d, want 4", res.Remaining)
	}
}

func TestTransitions(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	// scheduled -> confirmed -> in_progress -> completed
	for _, to := range []model.AppointmentStatus{model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted} {
		appt, err := e.Transition(context.Background(), "biz1", "a1", to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if appt.Status != to {
			t.Fatalf("got %s, want %s", appt.Status, to)
		}
	}

	// completed is terminal
	_, err = e.Transition(context.Background(), "biz1", "a1", model.StatusInProgress)
	var bad ErrBadTransition
	if !errors.As(err, &bad) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
	if _, err := e.Cancel(context.Background(), "biz1", "a1", "changed mind"); err == nil {
		t.Fatal("canceling a completed appointment should fail")
	}
}

func TestTransitionSkipsConfirmed(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	// Walk-up jobs start without a confirmation step.
	appt, err := e.Transition(context.Background(), "biz1", "a1", model.StatusInProgress)
	if err != nil {
		t.Fatalf("scheduled -> in_progress: %v", err)
	}
	if appt.Status != model.StatusInProgress {
		t.Fatalf("got %s", appt.Status)
	}
}

func TestCancelFromWeatherHold(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	if _, err := e.Transition(context.Background(), "biz1", "a1", model.StatusWeatherHold); err != nil {
		t.Fatalf("to weather_hold: %v", err)
	}
	appt, err := e.Cancel(context.Background(), "biz1", "a1", "customer gave up")
	if err != nil {
		t.Fatalf("cancel from weather_hold: %v", err)
	}
	if appt.Status != model.StatusCanceled || appt.CancelReason != "customer gave up" {
		t.Fatalf("got %+v", appt)
	}
}

func TestReschedulePreservesOriginalDate(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	appt, err := e.Reschedule(context.Background(), "biz1", "a1", "2026-01-06", "09:00", "10:00")
	if err != nil {
		t.Fatalf("first reschedule: %v", err)
	}
	if appt.OriginalDate != monday {
		t.Fatalf("originalDate %q, want %q", appt.OriginalDate, monday)
	}
	appt, err = e.Reschedule(context.Background(), "biz1", "a1", "2026-01-07", "09:00", "10:00")
	if err != nil {
		t.Fatalf("second reschedule: %v", err)
	}
	if appt.OriginalDate != monday {
		t.Fatalf("originalDate must survive later moves, got %q", appt.OriginalDate)
	}
	if appt.ScheduledDate != "2026-01-07" || appt.Status != model.StatusScheduled {
		t.Fatalf("got %+v", appt)
	}
}

func TestRescheduleRejectsInProgress(t *testing.T) {
	m := seedStore(t)
	e := NewEngine(m)
	_, _, err := m.CreateAppointment(context.Background(), model.Appointment{
		ID: "a1", BusinessID: "biz1", ScheduledDate: monday,
		StartTime: "10:00", EndTime: "11:00", Status: model.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	if _, err := e.Reschedule(context.Background(), "biz1", "a1", "2026-01-06", "09:00", "10:00"); err == nil {
		t.Fatal("rescheduling an in_progress appointment should fail")
	}
}
