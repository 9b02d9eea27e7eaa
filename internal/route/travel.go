package route

import (
	"context"
	"log"
	"math"

	"fieldserve/internal/model"
)

// Estimate is a travel-time/distance result. Source records whether the
// live mapping provider or the haversine fallback produced it.
type Estimate struct {
	Minutes float64 `json:"minutes"`
	Miles   float64 `json:"miles"`
	Source  string  `json:"source"` // "provider" or "haversine"
}

// TravelEstimator is the capability interface for mapping vendors.
type TravelEstimator interface {
	TravelTime(ctx context.Context, origin, dest model.GeoPoint) (Estimate, error)
}

// HaversineEstimator is the straight-line fallback: great-circle
// distance at an assumed average road speed.
type HaversineEstimator struct {
	AvgSpeedMPH float64
}

func NewHaversineEstimator() *HaversineEstimator { return &HaversineEstimator{AvgSpeedMPH: 30} }

func (h *HaversineEstimator) TravelTime(ctx context.Context, origin, dest model.GeoPoint) (Estimate, error) {
	miles := haversineMiles(origin.Lat, origin.Lon, dest.Lat, dest.Lon)
	speed := h.AvgSpeedMPH
	if speed <= 0 {
		speed = 30
	}
	return Estimate{Minutes: miles / speed * 60, Miles: miles, Source: "haversine"}, nil
}

// FallbackEstimator tries the live provider and degrades to haversine so
// route computation never fails on mapping-vendor outages.
type FallbackEstimator struct {
	Primary  TravelEstimator
	Fallback TravelEstimator
}

func NewFallbackEstimator(primary TravelEstimator) *FallbackEstimator {
	return &FallbackEstimator{Primary: primary, Fallback: NewHaversineEstimator()}
}

func (f *FallbackEstimator) TravelTime(ctx context.Context, origin, dest model.GeoPoint) (Estimate, error) {
	if f.Primary != nil {
		est, err := f.Primary.TravelTime(ctx, origin, dest)
		if err == nil {
			return est, nil
		}
		log.Printf("route: travel provider failed, using haversine: %v", err)
	}
	return f.Fallback.TravelTime(ctx, origin, dest)
}

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMiles = 3958.8
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}
