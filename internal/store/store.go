package store

import (
	"context"
	"errors"

	"fieldserve/internal/model"
)

// Store is the calendar-provider interface used by the scheduling core.
// It owns business hours, committed appointments, availability overrides
// and per-business weather thresholds.
type Store interface {
	// Business hours and overrides
	GetBusinessHours(ctx context.Context, businessID, date string) (*model.BusinessHours, error)
	SetBusinessHours(ctx context.Context, businessID string, week map[string]model.BusinessHours) error
	ListOverrides(ctx context.Context, staffID, date string) ([]model.AvailabilityOverride, error)
	PutOverride(ctx context.Context, o model.AvailabilityOverride) error

	// Appointments
	GetAppointment(ctx context.Context, businessID, id string) (model.Appointment, error)
	// ListAppointments returns appointments for a single business/date,
	// filtered by status (empty = all) and staff (empty = all), excluding
	// excludeID when non-empty.
	ListAppointments(ctx context.Context, businessID, date string, statusIn []model.AppointmentStatus, staffIDs []string, excludeID string) ([]model.Appointment, error)
	// ListAppointmentsInRange returns appointments across the inclusive
	// date range [from,to], status-filtered. Used by the weather sweep.
	ListAppointmentsInRange(ctx context.Context, businessID, from, to string, statusIn []model.AppointmentStatus) ([]model.Appointment, error)
	// CreateAppointment is the atomic check-and-reserve write path: the
	// staff/equipment overlap test re-runs under the store's own lock or
	// transaction, so two concurrent writers cannot both commit the same
	// window. Returned conflicts mean nothing was written.
	CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, []model.Conflict, error)
	UpdateAppointmentStatus(ctx context.Context, businessID, id string, status model.AppointmentStatus, patch model.AppointmentPatch) (model.Appointment, error)

	// Weather configuration. GetWeatherThresholds returns ErrNotFound for
	// businesses with no row; callers fall back to defaults.
	GetWeatherThresholds(ctx context.Context, businessID string) (model.WeatherThresholds, error)
	SaveWeatherThresholds(ctx context.Context, businessID string, t model.WeatherThresholds) error

	// ListBusinessIDs enumerates businesses known to the store, for the
	// background weather sweep.
	ListBusinessIDs(ctx context.Context) ([]string, error)
}

var ErrNotFound = errors.New("not found")
