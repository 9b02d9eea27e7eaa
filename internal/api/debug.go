package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"fieldserve/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                          os.Getenv("PORT"),
			"WEATHER_SWEEP_INTERVAL_MIN":    os.Getenv("WEATHER_SWEEP_INTERVAL_MIN"),
			"WEATHER_SWEEP_LOOKAHEAD_HOURS": os.Getenv("WEATHER_SWEEP_LOOKAHEAD_HOURS"),
			"WEATHER_DEFAULTS_FILE":         os.Getenv("WEATHER_DEFAULTS_FILE"),
			"HAS_DATABASE_URL":              os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":                 os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
