package schedule

import (
	"context"
	"fmt"

	"fieldserve/internal/model"
	"fieldserve/internal/store"
)

// ConflictDetector decides whether a candidate window is safe to assign
// for a set of staff and equipment. Pure read: it never mutates the
// store, and a populated conflict list is a normal outcome.
type ConflictDetector struct {
	Store store.Store
}

// CheckConflicts evaluates a candidate window on a single calendar day.
// excludeID supports in-place updates of an existing appointment.
func (d *ConflictDetector) CheckConflicts(ctx context.Context, businessID, date, startTime, endTime string, staffIDs, equipmentIDs []string, excludeID string) ([]model.Conflict, error) {
	hours, err := d.Store.GetBusinessHours(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	if hours == nil || !hours.IsOpen {
		// No further checks are meaningful on a closed day.
		return []model.Conflict{{
			Type: model.ConflictBusinessClosed, EntityType: "business", EntityID: businessID,
			Details: fmt.Sprintf("closed on %s", date),
		}}, nil
	}

	conflicts := []model.Conflict{}
	// Both bounds are checked independently; a window can start early and
	// run late at the same time.
	if startTime < hours.OpenTime {
		conflicts = append(conflicts, model.Conflict{
			Type: model.ConflictOutsideHours, EntityType: "business", EntityID: businessID,
			Details: fmt.Sprintf("starts %s before opening %s", startTime, hours.OpenTime),
		})
	}
	if endTime > hours.CloseTime {
		conflicts = append(conflicts, model.Conflict{
			Type: model.ConflictOutsideHours, EntityType: "business", EntityID: businessID,
			Details: fmt.Sprintf("ends %s after closing %s", endTime, hours.CloseTime),
		})
	}

	existing, err := d.Store.ListAppointments(ctx, businessID, date, model.ActiveStatuses, nil, excludeID)
	if err != nil {
		return nil, err
	}

	for _, staffID := range staffIDs {
		overrides, err := d.Store.ListOverrides(ctx, staffID, date)
		if err != nil {
			return nil, err
		}
		if o, hit := blockingOverride(overrides, startTime, endTime); hit {
			conflicts = append(conflicts, model.Conflict{
				Type: model.ConflictStaffUnavailable, EntityType: "staff", EntityID: staffID,
				Details: fmt.Sprintf("%s %s to %s", o.Type, o.StartDate, o.EndDate),
			})
			// An explicit override is authoritative; no appointment should
			// exist against it, so double-booking checks would be noise.
			continue
		}
		for _, other := range existing {
			if !containsID(other.StaffIDs, staffID) {
				continue
			}
			if overlaps(startTime, endTime, other.StartTime, other.EndTime) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictStaffDoubleBooked, EntityType: "staff", EntityID: staffID,
					Details: fmt.Sprintf("booked %s-%s on appointment %s", other.StartTime, other.EndTime, other.ID),
				})
			}
		}
	}

	for _, equipID := range equipmentIDs {
		for _, other := range existing {
			if !containsID(other.EquipmentIDs, equipID) {
				continue
			}
			if overlaps(startTime, endTime, other.StartTime, other.EndTime) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictEquipmentInUse, EntityType: "equipment", EntityID: equipID,
					Details: fmt.Sprintf("in use %s-%s on appointment %s", other.StartTime, other.EndTime, other.ID),
				})
			}
		}
	}
	return conflicts, nil
}

// blockingOverride returns the first override that blocks the window.
// Overrides without time slots cover the whole day.
func blockingOverride(overrides []model.AvailabilityOverride, startTime, endTime string) (model.AvailabilityOverride, bool) {
	for _, o := range overrides {
		if !o.Type.Blocking() {
			continue
		}
		if len(o.TimeSlots) == 0 {
			return o, true
		}
		for _, s := range o.TimeSlots {
			if overlaps(startTime, endTime, s.Start, s.End) {
				return o, true
			}
		}
	}
	return model.AvailabilityOverride{}, false
}

func containsID(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
