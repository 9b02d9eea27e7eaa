package api

import (
	"fmt"
	"regexp"
	"time"

	"fieldserve/internal/model"
)

var clockRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func validDate(s string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return nil
}

func validClock(s string) error {
	if !clockRe.MatchString(s) {
		return fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return nil
}

func validWindow(start, end string) error {
	if err := validClock(start); err != nil {
		return err
	}
	if err := validClock(end); err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start %s must be before end %s", start, end)
	}
	return nil
}

func validateAppointmentRequest(a *model.Appointment) error {
	if a.BusinessID == "" {
		return fmt.Errorf("businessId required")
	}
	if err := validDate(a.ScheduledDate); err != nil {
		return err
	}
	if err := validWindow(a.StartTime, a.EndTime); err != nil {
		return err
	}
	return nil
}

func validateThresholds(t *model.WeatherThresholds) error {
	if t.RainProbabilityPercent < 0 || t.RainProbabilityPercent > 100 {
		return fmt.Errorf("rainProbabilityPercent must be in [0,100]")
	}
	if t.MinTemperatureF >= t.MaxTemperatureF {
		return fmt.Errorf("minTemperatureF must be below maxTemperatureF")
	}
	if t.MaxWindSpeedMPH < 0 {
		return fmt.Errorf("maxWindSpeedMph must be >= 0")
	}
	return nil
}

func validateStops(stops []model.Stop) error {
	if len(stops) == 0 {
		return fmt.Errorf("at least one stop required")
	}
	seen := map[string]struct{}{}
	for i, st := range stops {
		if st.ID == "" {
			return fmt.Errorf("stop %d: id required", i)
		}
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("duplicate stop id %s", st.ID)
		}
		seen[st.ID] = struct{}{}
		if st.DurationMinutes < 0 {
			return fmt.Errorf("stop %s: durationMinutes must be >= 0", st.ID)
		}
		if st.ScheduledTime != "" {
			if err := validClock(st.ScheduledTime); err != nil {
				return fmt.Errorf("stop %s: %w", st.ID, err)
			}
		}
	}
	return nil
}
