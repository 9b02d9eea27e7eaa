package schedule

import (
	"context"
	"fmt"
	"time"

	"fieldserve/internal/model"
	"fieldserve/internal/store"
)

// Engine generates candidate slots and owns appointment status
// transitions. Slot generation is the cheap discovery pass; the
// authoritative gate before commit is always ConflictDetector plus the
// store's atomic reserve.
type Engine struct {
	Store    store.Store
	Detector *ConflictDetector
}

func NewEngine(s store.Store) *Engine {
	return &Engine{Store: s, Detector: &ConflictDetector{Store: s}}
}

const DefaultSlotInterval = 30

// GetAvailableSlots walks candidate start times across the business day
// and marks each window against existing active appointments. It does
// not consult overrides or equipment; see ConflictDetector for the
// strict check.
func (e *Engine) GetAvailableSlots(ctx context.Context, businessID, date string, durationMinutes int, staffIDs []string, intervalMinutes int) ([]model.TimeSlot, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultSlotInterval
	}
	hours, err := e.Store.GetBusinessHours(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	if hours == nil || !hours.IsOpen {
		return []model.TimeSlot{}, nil
	}
	existing, err := e.Store.ListAppointments(ctx, businessID, date, model.ActiveStatuses, staffIDs, "")
	if err != nil {
		return nil, err
	}

	open := minutesOf(hours.OpenTime)
	close := minutesOf(hours.CloseTime)
	slots := []model.TimeSlot{}
	for start := open; start+durationMinutes <= close; start += intervalMinutes {
		slot := model.TimeSlot{Start: clockOf(start), End: clockOf(start + durationMinutes), Available: true}
		for _, a := range existing {
			if overlaps(slot.Start, slot.End, a.StartTime, a.EndTime) {
				slot.Available = false
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// BulkSlotsResult is a partial result from a bounded multi-day slot scan.
type BulkSlotsResult struct {
	Days      map[string][]model.TimeSlot `json:"days"`
	Remaining int                         `json:"remaining"` // dates not processed before the budget ran out
}

// GetAvailableSlotsRange generates slots for each date in [from,to],
// stopping after maxDays dates or on context cancellation and reporting
// how many dates were left unprocessed.
func (e *Engine) GetAvailableSlotsRange(ctx context.Context, businessID, from, to string, durationMinutes, intervalMinutes, maxDays int) (BulkSlotsResult, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return BulkSlotsResult{}, fmt.Errorf("bad from date %q: %w", from, err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return BulkSlotsResult{}, fmt.Errorf("bad to date %q: %w", to, err)
	}
	res := BulkSlotsResult{Days: map[string][]model.TimeSlot{}}
	dates := []string{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	for i, date := range dates {
		if ctx.Err() != nil || (maxDays > 0 && i >= maxDays) {
			res.Remaining = len(dates) - i
			break
		}
		slots, err := e.GetAvailableSlots(ctx, businessID, date, durationMinutes, nil, intervalMinutes)
		if err != nil {
			return res, err
		}
		res.Days[date] = slots
	}
	return res, nil
}

// ErrBadTransition reports a status change the lifecycle does not allow.
type ErrBadTransition struct {
	From, To model.AppointmentStatus
}

func (e ErrBadTransition) Error() string {
	return fmt.Sprintf("cannot transition %s to %s", e.From, e.To)
}

// allowedTransitions is the forward lifecycle. Cancel is handled
// separately (any non-terminal status may cancel), as is the
// weather_hold -> scheduled reschedule path.
var allowedTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.StatusScheduled:  {model.StatusConfirmed, model.StatusInProgress, model.StatusWeatherHold},
	model.StatusConfirmed:  {model.StatusInProgress, model.StatusWeatherHold},
	model.StatusInProgress: {model.StatusCompleted},
}

// Transition applies a caller-driven status change after validating it
// against the lifecycle.
func (e *Engine) Transition(ctx context.Context, businessID, id string, to model.AppointmentStatus) (model.Appointment, error) {
	appt, err := e.Store.GetAppointment(ctx, businessID, id)
	if err != nil {
		return model.Appointment{}, err
	}
	for _, next := range allowedTransitions[appt.Status] {
		if next == to {
			return e.Store.UpdateAppointmentStatus(ctx, businessID, id, to, model.AppointmentPatch{})
		}
	}
	return model.Appointment{}, ErrBadTransition{From: appt.Status, To: to}
}

// Cancel is terminal and allowed from any non-terminal status.
func (e *Engine) Cancel(ctx context.Context, businessID, id, reason string) (model.Appointment, error) {
	appt, err := e.Store.GetAppointment(ctx, businessID, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCanceled || appt.Status == model.StatusCompleted {
		return model.Appointment{}, ErrBadTransition{From: appt.Status, To: model.StatusCanceled}
	}
	return e.Store.UpdateAppointmentStatus(ctx, businessID, id, model.StatusCanceled, model.AppointmentPatch{CancelReason: reason})
}

// Reschedule moves an appointment to a new date/window and resets it to
// scheduled, preserving the original date on first move. It does not
// re-run ConflictDetector; callers must re-check before committing.
func (e *Engine) Reschedule(ctx context.Context, businessID, id, newDate, newStart, newEnd string) (model.Appointment, error) {
	appt, err := e.Store.GetAppointment(ctx, businessID, id)
	if err != nil {
		return model.Appointment{}, err
	}
	switch appt.Status {
	case model.StatusCompleted, model.StatusCanceled, model.StatusInProgress:
		return model.Appointment{}, ErrBadTransition{From: appt.Status, To: model.StatusScheduled}
	}
	patch := model.AppointmentPatch{ScheduledDate: newDate, StartTime: newStart, EndTime: newEnd}
	if appt.OriginalDate == "" {
		patch.OriginalDate = appt.ScheduledDate
	}
	return e.Store.UpdateAppointmentStatus(ctx, businessID, id, model.StatusScheduled, patch)
}
