package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldserve/internal/model"
)

// Memory is an in-memory calendar store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	hours      map[string]map[string]model.BusinessHours // businessID -> weekday -> hours
	appts      map[string]model.Appointment              // id -> appointment
	byBusiness map[string][]string                       // businessID -> appointment ids (insertion order)
	overrides  map[string][]model.AvailabilityOverride   // staffID -> overrides
	thresholds map[string]model.WeatherThresholds        // businessID -> thresholds
}

func NewMemory() *Memory {
	return &Memory{
		hours:      map[string]map[string]model.BusinessHours{},
		appts:      map[string]model.Appointment{},
		byBusiness: map[string][]string{},
		overrides:  map[string][]model.AvailabilityOverride{},
		thresholds: map[string]model.WeatherThresholds{},
	}
}

func (m *Memory) GetBusinessHours(ctx context.Context, businessID, date string) (*model.BusinessHours, error) {
	wd, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	week := m.hours[businessID]
	if week == nil {
		return nil, nil
	}
	h, ok := week[wd]
	if !ok {
		return nil, nil
	}
	out := h
	return &out, nil
}

func (m *Memory) SetBusinessHours(ctx context.Context, businessID string, week map[string]model.BusinessHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]model.BusinessHours, len(week))
	for k, v := range week {
		cp[k] = v
	}
	m.hours[businessID] = cp
	return nil
}

func (m *Memory) ListOverrides(ctx context.Context, staffID, date string) ([]model.AvailabilityOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AvailabilityOverride{}
	for _, o := range m.overrides[staffID] {
		if o.StartDate <= date && date <= o.EndDate {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) PutOverride(ctx context.Context, o model.AvailabilityOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.StaffID] = append(m.overrides[o.StaffID], o)
	return nil
}

func (m *Memory) GetAppointment(ctx context.Context, businessID, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAppointments(ctx context.Context, businessID, date string, statusIn []model.AppointmentStatus, staffIDs []string, excludeID string) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Appointment{}
	for _, id := range m.byBusiness[businessID] {
		a := m.appts[id]
		if a.ScheduledDate != date || a.ID == excludeID {
			continue
		}
		if !statusMatch(a.Status, statusIn) {
			continue
		}
		if len(staffIDs) > 0 && !staffMatch(a.StaffIDs, staffIDs) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) ListAppointmentsInRange(ctx context.Context, businessID, from, to string, statusIn []model.AppointmentStatus) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Appointment{}
	for _, id := range m.byBusiness[businessID] {
		a := m.appts[id]
		if a.ScheduledDate < from || a.ScheduledDate > to {
			continue
		}
		if !statusMatch(a.Status, statusIn) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate != out[j].ScheduledDate {
			return out[i].ScheduledDate < out[j].ScheduledDate
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *Memory) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, []model.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-validate resource overlap under the lock. This is the
	// serialization point for concurrent writers: the ConflictDetector's
	// earlier read-then-decide pass is advisory only.
	var conflicts []model.Conflict
	for _, id := range m.byBusiness[appt.BusinessID] {
		other := m.appts[id]
		if other.ScheduledDate != appt.ScheduledDate || !statusMatch(other.Status, model.ActiveStatuses) {
			continue
		}
		if !(appt.StartTime < other.EndTime && appt.EndTime > other.StartTime) {
			continue
		}
		for _, sid := range appt.StaffIDs {
			if contains(other.StaffIDs, sid) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictStaffDoubleBooked, EntityType: "staff", EntityID: sid,
					Details: fmt.Sprintf("booked %s-%s on appointment %s", other.StartTime, other.EndTime, other.ID),
				})
			}
		}
		for _, eid := range appt.EquipmentIDs {
			if contains(other.EquipmentIDs, eid) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictEquipmentInUse, EntityType: "equipment", EntityID: eid,
					Details: fmt.Sprintf("in use %s-%s on appointment %s", other.StartTime, other.EndTime, other.ID),
				})
			}
		}
	}
	if len(conflicts) > 0 {
		return model.Appointment{}, conflicts, nil
	}
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	m.appts[appt.ID] = appt
	m.byBusiness[appt.BusinessID] = append(m.byBusiness[appt.BusinessID], appt.ID)
	return appt, nil, nil
}

func (m *Memory) UpdateAppointmentStatus(ctx context.Context, businessID, id string, status model.AppointmentStatus, patch model.AppointmentPatch) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, ErrNotFound
	}
	a.Status = status
	if patch.ScheduledDate != "" {
		a.ScheduledDate = patch.ScheduledDate
	}
	if patch.StartTime != "" {
		a.StartTime = patch.StartTime
	}
	if patch.EndTime != "" {
		a.EndTime = patch.EndTime
	}
	if patch.WeatherInfo != nil {
		a.WeatherInfo = patch.WeatherInfo
	}
	if patch.WeatherRescheduled != nil {
		a.WeatherRescheduled = *patch.WeatherRescheduled
	}
	if patch.OriginalDate != "" {
		a.OriginalDate = patch.OriginalDate
	}
	if patch.CancelReason != "" {
		a.CancelReason = patch.CancelReason
	}
	m.appts[id] = a
	return a, nil
}

func (m *Memory) GetWeatherThresholds(ctx context.Context, businessID string) (model.WeatherThresholds, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thresholds[businessID]
	if !ok {
		return model.WeatherThresholds{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) SaveWeatherThresholds(ctx context.Context, businessID string, t model.WeatherThresholds) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[businessID] = t
	return nil
}

func (m *Memory) ListBusinessIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	out := []string{}
	for id := range m.hours {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for id := range m.byBusiness {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func weekdayOf(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("bad date %q: %w", date, err)
	}
	return t.Weekday().String(), nil
}

func statusMatch(s model.AppointmentStatus, in []model.AppointmentStatus) bool {
	if len(in) == 0 {
		return true
	}
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func staffMatch(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
