package route

import (
	"context"
	"fmt"
	"time"

	"fieldserve/internal/model"
)

// Optimizer computes a travel-efficient visiting order with a
// nearest-neighbor heuristic. O(n^2) over dozens of stops; consistent
// and explainable rather than provably optimal.
type Optimizer struct {
	Est TravelEstimator
	// Improve applies a 2-opt pass over the nearest-neighbor order.
	Improve bool
	Now     func() time.Time
}

func NewOptimizer(est TravelEstimator) *Optimizer {
	return &Optimizer{Est: est, Now: time.Now}
}

// Optimize orders the stops starting from start when given, else from
// the first stop. Stops without coordinates are never dropped: they are
// appended after the optimized tour in input order, flagged.
func (o *Optimizer) Optimize(ctx context.Context, stops []model.Stop, start *model.GeoPoint) (model.Route, error) {
	located := []model.Stop{}
	unlocated := []model.Stop{}
	for _, s := range stops {
		if s.Location != nil {
			located = append(located, s)
		} else {
			unlocated = append(unlocated, s)
		}
	}

	ordered := make([]model.Stop, 0, len(located))
	remaining := append([]model.Stop(nil), located...)
	var cur model.GeoPoint
	pinned := start != nil
	if pinned {
		cur = *start
	} else if len(remaining) > 0 {
		// No pinned start: the first stop anchors the tour.
		ordered = append(ordered, remaining[0])
		cur = *remaining[0].Location
		remaining = remaining[1:]
	}

	for len(remaining) > 0 {
		best := 0
		bestMiles := -1.0
		for i, s := range remaining {
			est, err := o.Est.TravelTime(ctx, cur, *s.Location)
			if err != nil {
				return model.Route{}, err
			}
			// Strict less-than keeps ties on input order.
			if bestMiles < 0 || est.Miles < bestMiles {
				best = i
				bestMiles = est.Miles
			}
		}
		ordered = append(ordered, remaining[best])
		cur = *remaining[best].Location
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	if o.Improve && len(ordered) > 3 {
		ordered = improve2Opt(ordered)
	}

	return o.buildRoute(ctx, ordered, unlocated, start)
}

// buildRoute computes per-leg travel and the running ETA clock over a
// fixed visiting order.
func (o *Optimizer) buildRoute(ctx context.Context, ordered, unlocated []model.Stop, start *model.GeoPoint) (model.Route, error) {
	route := model.Route{OrderedStops: []model.RouteStop{}}
	prevLoc := start
	clock := -1 // minutes since midnight; -1 until seeded by the first stop
	for i, s := range ordered {
		rs := model.RouteStop{Stop: s, OrderIndex: i}
		if prevLoc != nil {
			est, err := o.Est.TravelTime(ctx, *prevLoc, *s.Location)
			if err != nil {
				return model.Route{}, err
			}
			rs.TravelTimeMinutes = est.Minutes
			rs.TravelDistanceMiles = est.Miles
		}
		if i == 0 {
			if s.ScheduledTime != "" {
				clock = clockMinutes(s.ScheduledTime)
			} else {
				now := o.Now()
				clock = now.Hour()*60 + now.Minute()
			}
		} else {
			clock += ordered[i-1].DurationMinutes + int(rs.TravelTimeMinutes+0.5)
		}
		rs.ETA = formatClock(clock)
		route.TotalTravelMinutes += rs.TravelTimeMinutes
		route.TotalDistanceMiles += rs.TravelDistanceMiles
		route.OrderedStops = append(route.OrderedStops, rs)
		prevLoc = s.Location
	}
	for _, s := range unlocated {
		route.OrderedStops = append(route.OrderedStops, model.RouteStop{
			Stop:        s,
			OrderIndex:  len(route.OrderedStops),
			Unoptimized: true,
		})
	}
	return route, nil
}

func clockMinutes(clock string) int {
	var h, m int
	fmt.Sscanf(clock, "%d:%d", &h, &m)
	return h*60 + m
}

func formatClock(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
