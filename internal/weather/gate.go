package weather

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldserve/internal/metrics"
	"fieldserve/internal/model"
	"fieldserve/internal/store"
)

// Gate decides whether forecasted conditions should put an outdoor
// appointment on hold. Provider failures fail open: a missing forecast
// never blocks dispatch.
type Gate struct {
	Store     store.Store
	Forecasts *Forecasts
	// Defaults apply to businesses without stored thresholds.
	Defaults model.WeatherThresholds
	// ScanDays bounds the forward search for a suggested date.
	ScanDays int
	Now      func() time.Time
}

func NewGate(s store.Store, f *Forecasts, defaults model.WeatherThresholds) *Gate {
	return &Gate{Store: s, Forecasts: f, Defaults: defaults, ScanDays: 7, Now: time.Now}
}

// Evaluation is the outcome of a weather check for one appointment.
type Evaluation struct {
	NeedsReschedule   bool                 `json:"needsReschedule"`
	Reasons           []string             `json:"reasons,omitempty"`
	Forecast          *model.ForecastPoint `json:"weather,omitempty"`
	ForecastAvailable bool                 `json:"forecastAvailable"`
	SuggestedDate     string               `json:"suggestedDate,omitempty"`
}

func (g *Gate) thresholds(ctx context.Context, businessID string) (model.WeatherThresholds, error) {
	t, err := g.Store.GetWeatherThresholds(ctx, businessID)
	if err == store.ErrNotFound {
		return g.Defaults, nil
	}
	return t, err
}

// Evaluate checks the appointment's scheduled date against the business
// thresholds at the given service coordinates.
func (g *Gate) Evaluate(ctx context.Context, businessID, appointmentID string, lat, lon float64) (Evaluation, error) {
	th, err := g.thresholds(ctx, businessID)
	if err != nil {
		return Evaluation{}, err
	}
	if !th.Enabled {
		return Evaluation{}, nil
	}
	appt, err := g.Store.GetAppointment(ctx, businessID, appointmentID)
	if err != nil {
		return Evaluation{}, err
	}

	days := DaysUntil(g.Now(), appt.ScheduledDate) + g.ScanDays
	pts, err := g.Forecasts.Get(ctx, lat, lon, days)
	if err != nil {
		log.Printf("weather: forecast fetch failed for %s: %v", appointmentID, err)
		metrics.WeatherChecks.WithLabelValues("unavailable").Inc()
		return Evaluation{}, nil
	}
	pt, ok := pointFor(pts, appt.ScheduledDate)
	if !ok {
		metrics.WeatherChecks.WithLabelValues("unavailable").Inc()
		return Evaluation{}, nil
	}

	reasons := checkThresholds(pt, th)
	ev := Evaluation{Forecast: &pt, ForecastAvailable: true}
	if len(reasons) == 0 {
		metrics.WeatherChecks.WithLabelValues("clear").Inc()
		return ev, nil
	}
	ev.NeedsReschedule = true
	ev.Reasons = reasons
	ev.SuggestedDate = g.suggestDate(pts, appt.ScheduledDate, th)
	metrics.WeatherChecks.WithLabelValues("flagged").Inc()
	return ev, nil
}

// suggestDate scans forward day by day from the day after the scheduled
// date for the first date where every check passes.
func (g *Gate) suggestDate(pts []model.ForecastPoint, scheduledDate string, th model.WeatherThresholds) string {
	start, err := time.Parse("2006-01-02", scheduledDate)
	if err != nil {
		return ""
	}
	for i := 1; i <= g.ScanDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		pt, ok := pointFor(pts, date)
		if !ok {
			continue
		}
		if len(checkThresholds(pt, th)) == 0 {
			return date
		}
	}
	return ""
}

// checkThresholds evaluates all four checks independently; every
// triggered check contributes a reason. Comparisons are strict, so a
// value exactly at a threshold passes.
func checkThresholds(pt model.ForecastPoint, th model.WeatherThresholds) []string {
	var reasons []string
	if pt.RainProbabilityPercent > th.RainProbabilityPercent {
		reasons = append(reasons, fmt.Sprintf("rain probability %g%% exceeds %g%%", pt.RainProbabilityPercent, th.RainProbabilityPercent))
	}
	if pt.TemperatureF < th.MinTemperatureF {
		reasons = append(reasons, fmt.Sprintf("temperature %g°F below minimum %g°F", pt.TemperatureF, th.MinTemperatureF))
	}
	if pt.TemperatureF > th.MaxTemperatureF {
		reasons = append(reasons, fmt.Sprintf("temperature %g°F above maximum %g°F", pt.TemperatureF, th.MaxTemperatureF))
	}
	if pt.WindSpeedMPH > th.MaxWindSpeedMPH {
		reasons = append(reasons, fmt.Sprintf("wind speed %g mph exceeds %g mph", pt.WindSpeedMPH, th.MaxWindSpeedMPH))
	}
	return reasons
}

func pointFor(pts []model.ForecastPoint, date string) (model.ForecastPoint, bool) {
	for _, p := range pts {
		if p.Date == date {
			return p, true
		}
	}
	return model.ForecastPoint{}, false
}

// SweepResult reports one AutoRescheduleWindow pass. Remaining counts
// appointments left unprocessed when the item budget or context ran out.
type SweepResult struct {
	Evaluated int      `json:"evaluated"`
	Held      int      `json:"held"`
	Skipped   int      `json:"skipped"` // no resolvable coordinates
	Remaining int      `json:"remaining"`
	HeldIDs   []string `json:"heldIds,omitempty"`
}

// AutoRescheduleWindow evaluates upcoming scheduled/confirmed
// appointments and transitions flagged ones to weather_hold. Idempotent
// per appointment: the weatherRescheduled stamp guards re-runs, so an
// appointment already held by a previous pass is never re-flagged even
// if still stormy.
func (g *Gate) AutoRescheduleWindow(ctx context.Context, businessID string, lookaheadHours, maxItems int) (SweepResult, error) {
	now := g.Now()
	from := now.Format("2006-01-02")
	to := now.Add(time.Duration(lookaheadHours) * time.Hour).Format("2006-01-02")
	appts, err := g.Store.ListAppointmentsInRange(ctx, businessID, from, to,
		[]model.AppointmentStatus{model.StatusScheduled, model.StatusConfirmed})
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	pending := []model.Appointment{}
	for _, a := range appts {
		if !a.WeatherRescheduled {
			pending = append(pending, a)
		}
	}
	for i, a := range pending {
		if ctx.Err() != nil || (maxItems > 0 && i >= maxItems) {
			res.Remaining = len(pending) - i
			break
		}
		if a.ServiceLocation == nil {
			// Not an error; nothing to evaluate without coordinates.
			log.Printf("weather: skipping appointment %s: no service coordinates", a.ID)
			res.Skipped++
			continue
		}
		ev, err := g.Evaluate(ctx, businessID, a.ID, a.ServiceLocation.Lat, a.ServiceLocation.Lon)
		if err != nil {
			return res, err
		}
		res.Evaluated++
		if !ev.NeedsReschedule {
			continue
		}
		yes := true
		patch := model.AppointmentPatch{
			WeatherInfo: &model.WeatherInfo{
				CheckedAt: now.UTC().Format(time.RFC3339),
				Forecast:  *ev.Forecast,
				Reasons:   ev.Reasons,
			},
			WeatherRescheduled: &yes,
		}
		if a.OriginalDate == "" {
			patch.OriginalDate = a.ScheduledDate
		}
		if _, err := g.Store.UpdateAppointmentStatus(ctx, businessID, a.ID, model.StatusWeatherHold, patch); err != nil {
			return res, err
		}
		metrics.WeatherHolds.Inc()
		res.Held++
		res.HeldIDs = append(res.HeldIDs, a.ID)
	}
	return res, nil
}
