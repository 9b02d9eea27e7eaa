package model

import "time"

// Core dispatch domain types shared across the scheduling, weather,
// routing and hub packages.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BusinessHours describes one weekday's operating window in the
// business-local timezone. Times are zero-padded wall-clock "HH:MM".
type BusinessHours struct {
	IsOpen    bool   `json:"isOpen"`
	OpenTime  string `json:"openTime,omitempty"`
	CloseTime string `json:"closeTime,omitempty"`
}

// TimeSlot is a candidate appointment window. Generated on demand,
// never persisted; equality is by start/end.
type TimeSlot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type ConflictType string

const (
	ConflictBusinessClosed    ConflictType = "business_closed"
	ConflictOutsideHours      ConflictType = "outside_hours"
	ConflictStaffUnavailable  ConflictType = "staff_unavailable"
	ConflictStaffDoubleBooked ConflictType = "staff_double_booked"
	ConflictEquipmentInUse    ConflictType = "equipment_in_use"
)

// Conflict is a reason a candidate window or resource assignment cannot
// be honored. A populated conflict list is a normal result, not an error.
type Conflict struct {
	Type       ConflictType `json:"type"`
	EntityType string       `json:"entityType,omitempty"`
	EntityID   string       `json:"entityId,omitempty"`
	Details    string       `json:"details,omitempty"`
}

type OverrideType string

const (
	OverrideUnavailable   OverrideType = "unavailable"
	OverrideVacation      OverrideType = "vacation"
	OverrideSick          OverrideType = "sick"
	OverridePersonal      OverrideType = "personal"
	OverrideModifiedHours OverrideType = "modified_hours"
)

// Blocking reports whether the override makes the staff member
// unassignable for its date range.
func (t OverrideType) Blocking() bool {
	switch t {
	case OverrideUnavailable, OverrideVacation, OverrideSick, OverridePersonal:
		return true
	}
	return false
}

// AvailabilityOverride marks a staff member unavailable (or on modified
// hours) over an inclusive date range. If TimeSlots is empty the override
// covers the whole day.
type AvailabilityOverride struct {
	StaffID   string       `json:"staffId"`
	StartDate string       `json:"startDate"` // YYYY-MM-DD
	EndDate   string       `json:"endDate"`
	Type      OverrideType `json:"type"`
	TimeSlots []TimeSlot   `json:"timeSlots,omitempty"`
}

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusInProgress  AppointmentStatus = "in_progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusWeatherHold AppointmentStatus = "weather_hold"
)

// ActiveStatuses are the statuses that occupy staff and equipment for
// conflict purposes.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

type Appointment struct {
	ID                 string            `json:"id"`
	BusinessID         string            `json:"businessId"`
	ScheduledDate      string            `json:"scheduledDate"` // YYYY-MM-DD
	StartTime          string            `json:"startTime"`     // HH:MM
	EndTime            string            `json:"endTime"`
	StaffIDs           []string          `json:"staffIds,omitempty"`
	EquipmentIDs       []string          `json:"equipmentIds,omitempty"`
	Status             AppointmentStatus `json:"status"`
	ServiceLocation    *GeoPoint         `json:"serviceLocation,omitempty"`
	WeatherInfo        *WeatherInfo      `json:"weatherInfo,omitempty"`
	WeatherRescheduled bool              `json:"weatherRescheduled,omitempty"`
	OriginalDate       string            `json:"originalDate,omitempty"`
	CancelReason       string            `json:"cancelReason,omitempty"`
}

// AppointmentPatch carries optional field updates applied alongside a
// status change.
type AppointmentPatch struct {
	ScheduledDate      string       `json:"scheduledDate,omitempty"`
	StartTime          string       `json:"startTime,omitempty"`
	EndTime            string       `json:"endTime,omitempty"`
	WeatherInfo        *WeatherInfo `json:"weatherInfo,omitempty"`
	WeatherRescheduled *bool        `json:"weatherRescheduled,omitempty"`
	OriginalDate       string       `json:"originalDate,omitempty"`
	CancelReason       string       `json:"cancelReason,omitempty"`
}

// WeatherInfo is stamped onto an appointment when it is placed on
// weather hold.
type WeatherInfo struct {
	CheckedAt string        `json:"checkedAt"`
	Forecast  ForecastPoint `json:"forecast"`
	Reasons   []string      `json:"reasons"`
}

// WeatherThresholds is per-business configuration for the weather gate.
// All comparisons are strict: a forecast exactly at a threshold passes.
type WeatherThresholds struct {
	RainProbabilityPercent float64 `json:"rainProbabilityPercent" yaml:"rainProbabilityPercent"`
	MinTemperatureF        float64 `json:"minTemperatureF" yaml:"minTemperatureF"`
	MaxTemperatureF        float64 `json:"maxTemperatureF" yaml:"maxTemperatureF"`
	MaxWindSpeedMPH        float64 `json:"maxWindSpeedMph" yaml:"maxWindSpeedMph"`
	Enabled                bool    `json:"enabled" yaml:"enabled"`
}

// ForecastPoint is one day of forecast for a location.
type ForecastPoint struct {
	Date                   string  `json:"date"` // YYYY-MM-DD
	TemperatureF           float64 `json:"temperatureF"`
	RainProbabilityPercent float64 `json:"rainProbabilityPercent"`
	WindSpeedMPH           float64 `json:"windSpeedMph"`
	Conditions             string  `json:"conditions,omitempty"`
}

// TimeWindow is an optional HH:MM service window on a stop.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Stop is one location to visit within a technician's route for a day.
type Stop struct {
	ID              string      `json:"id"`
	Location        *GeoPoint   `json:"location,omitempty"`
	DurationMinutes int         `json:"durationMinutes,omitempty"`
	TimeWindow      *TimeWindow `json:"timeWindow,omitempty"`
	ScheduledTime   string      `json:"scheduledTime,omitempty"` // HH:MM, seeds the first-stop ETA
	Address         string      `json:"address,omitempty"`
}

// RouteStop is a stop placed into a computed route.
type RouteStop struct {
	Stop
	OrderIndex          int     `json:"orderIndex"`
	ETA                 string  `json:"eta,omitempty"` // HH:MM
	TravelTimeMinutes   float64 `json:"travelTimeMinutes"`
	TravelDistanceMiles float64 `json:"travelDistanceMiles"`
	Unoptimized         bool    `json:"unoptimized,omitempty"`
}

// Route is a computed visiting order. OrderedStops is always a
// permutation of the input stops.
type Route struct {
	OrderedStops       []RouteStop `json:"orderedStops"`
	TotalTravelMinutes float64     `json:"totalTravelMinutes"`
	TotalDistanceMiles float64     `json:"totalDistanceMiles"`
}

type TechStatus string

const (
	TechAvailable TechStatus = "available"
	TechEnroute   TechStatus = "enroute"
	TechOnJob     TechStatus = "on_job"
	TechComplete  TechStatus = "complete"
	TechOffDuty   TechStatus = "off_duty"
)

// Valid reports whether s is one of the known technician statuses.
func (s TechStatus) Valid() bool {
	switch s {
	case TechAvailable, TechEnroute, TechOnJob, TechComplete, TechOffDuty:
		return true
	}
	return false
}

// TechnicianPresence is a technician's live location and dispatch status,
// held in memory while the device connection is open.
type TechnicianPresence struct {
	TechID       string     `json:"techId"`
	BusinessID   string     `json:"businessId"`
	Online       bool       `json:"online"`
	Location     *GeoPoint  `json:"location,omitempty"`
	Status       TechStatus `json:"status"`
	CurrentJobID string     `json:"currentJobId,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
