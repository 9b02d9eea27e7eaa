package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldserve/internal/api"
	"fieldserve/internal/metrics"
)

func main() {
	srvDeps, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Scheduling
	mux.HandleFunc("/v1/slots", srvDeps.SlotsHandler)
	mux.HandleFunc("/v1/conflicts/check", srvDeps.ConflictsCheckHandler)
	mux.HandleFunc("/v1/appointments", srvDeps.AppointmentsHandler)
	mux.HandleFunc("/v1/appointments/", srvDeps.AppointmentByIDHandler) // includes /status, /reschedule, /cancel
	mux.HandleFunc("/v1/business-hours", srvDeps.BusinessHoursHandler)
	mux.HandleFunc("/v1/overrides", srvDeps.OverridesHandler)

	// Weather
	mux.HandleFunc("/v1/weather/check", srvDeps.WeatherCheckHandler)
	mux.HandleFunc("/v1/weather/sweep", srvDeps.WeatherSweepHandler)
	mux.HandleFunc("/v1/weather/thresholds", srvDeps.WeatherThresholdsHandler)

	// Routing
	mux.HandleFunc("/v1/routes/optimize", srvDeps.RoutesOptimizeHandler)
	mux.HandleFunc("/v1/travel-time", srvDeps.TravelTimeHandler)

	// Live dispatch
	mux.HandleFunc("/v1/ws/viewer", srvDeps.ViewerWSHandler)
	mux.HandleFunc("/v1/ws/technician", srvDeps.TechnicianWSHandler)
	mux.HandleFunc("/v1/technicians/presence", srvDeps.PresenceHandler)

	// Health, metrics, debug
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debugz", srvDeps.DebugJSON)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(metricsMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	// Start background weather sweep
	sweeper := srvDeps.NewWeatherSweeper()
	sweeper.Start()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the raw ResponseWriter (Hijacker).
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, code).Observe(time.Since(start).Seconds())
	})
}

// Helper to satisfy reference and avoid unused imports in stubs
var _ = fmt.Sprintf
