package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"fieldserve/internal/model"
)

// ForecastProvider is the capability interface for weather vendors.
// Implementations return up to `days` daily points starting today.
type ForecastProvider interface {
	GetForecast(ctx context.Context, lat, lon float64, days int) ([]model.ForecastPoint, error)
}

// Forecasts wraps a provider with a cache and an outbound rate limit so
// batch sweeps over many appointments in the same service area do not
// hammer the vendor.
type Forecasts struct {
	Provider ForecastProvider
	Cache    Cache
	Limiter  *rate.Limiter
}

func NewForecasts(p ForecastProvider, c Cache) *Forecasts {
	return &Forecasts{Provider: p, Cache: c, Limiter: rate.NewLimiter(rate.Limit(5), 10)}
}

// cacheKey rounds coordinates to 2 decimals (~1km) so nearby addresses
// share a forecast.
func cacheKey(lat, lon float64, days int) string {
	return fmt.Sprintf("forecast:%.2f,%.2f:%d", roundCoord(lat), roundCoord(lon), days)
}

func roundCoord(v float64) float64 { return math.Round(v*100) / 100 }

func (f *Forecasts) Get(ctx context.Context, lat, lon float64, days int) ([]model.ForecastPoint, error) {
	key := cacheKey(lat, lon, days)
	if pts, ok := f.Cache.Get(ctx, key); ok {
		return pts, nil
	}
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	pts, err := f.Provider.GetForecast(ctx, lat, lon, days)
	if err != nil {
		return nil, err
	}
	f.Cache.Put(ctx, key, pts)
	return pts, nil
}

// StaticProvider serves a fixed forecast table. Test and fallback
// adapter; production wiring substitutes a vendor client.
type StaticProvider struct {
	Points []model.ForecastPoint
	Err    error
}

func (s *StaticProvider) GetForecast(ctx context.Context, lat, lon float64, days int) ([]model.ForecastPoint, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Points) > days {
		return s.Points[:days], nil
	}
	return s.Points, nil
}

// DaysUntil returns how many forecast days are needed to cover date
// (inclusive) starting from today, clamped to at least one.
func DaysUntil(now time.Time, date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 1
	}
	d := int(t.Sub(now.Truncate(24*time.Hour)).Hours()/24) + 1
	if d < 1 {
		d = 1
	}
	return d
}
