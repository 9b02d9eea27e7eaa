package api

import (
	"log"
	"os"
	"strings"
	"time"

	"fieldserve/internal/hub"
	"fieldserve/internal/route"
	"fieldserve/internal/schedule"
	"fieldserve/internal/store"
	"fieldserve/internal/weather"
)

type Server struct {
	Store     store.Store
	Engine    *schedule.Engine
	Detector  *schedule.ConflictDetector
	Gate      *weather.Gate
	Optimizer *route.Optimizer
	Estimator route.TravelEstimator
	Hub       *hub.Hub
}

// NewServer creates a Server. If DATABASE_URL is unset, uses the
// in-memory store; if REDIS_URL is set, forecast caching goes through
// Redis instead of process memory.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	var cache weather.Cache
	if url := os.Getenv("REDIS_URL"); url != "" {
		rc, err := weather.NewRedisCache(url, weather.DefaultTTL)
		if err != nil {
			log.Printf("redis cache unavailable, falling back to memory: %v", err)
			cache = weather.NewMemoryCache(weather.DefaultTTL)
		} else {
			cache = rc
		}
	} else {
		cache = weather.NewMemoryCache(weather.DefaultTTL)
	}

	defaults := weather.DefaultThresholds
	if path := os.Getenv("WEATHER_DEFAULTS_FILE"); path != "" {
		t, err := weather.LoadThresholdsFile(path)
		if err != nil {
			log.Printf("weather defaults file %s: %v", path, err)
		} else {
			defaults = t
		}
	}

	provider := newProviderFromEnv()
	forecasts := weather.NewForecasts(provider, cache)

	engine := schedule.NewEngine(s)
	est := route.NewFallbackEstimator(nil)
	return &Server{
		Store:     s,
		Engine:    engine,
		Detector:  &schedule.ConflictDetector{Store: s},
		Gate:      weather.NewGate(s, forecasts, defaults),
		Optimizer: route.NewOptimizer(est),
		Estimator: est,
		Hub:       hub.New(),
	}, nil
}

// newProviderFromEnv builds the forecast source. Without an external
// provider configured the static source returns nothing and weather
// checks fail open.
func newProviderFromEnv() weather.ForecastProvider {
	return &weather.StaticProvider{}
}

// NewWeatherSweeper creates the background weather sweep worker.
func (s *Server) NewWeatherSweeper() *weather.Sweeper {
	return weather.NewSweeper(s.Gate)
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
