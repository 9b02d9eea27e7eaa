package weather

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"
)

// Sweeper runs AutoRescheduleWindow on a timer across every business the
// store knows about. Each run carries a per-business item budget so a
// large tenant cannot starve the rest of a pass.
type Sweeper struct {
	Gate           *Gate
	Interval       time.Duration
	LookaheadHours int
	MaxItems       int
	Stop           chan struct{}
}

func NewSweeper(g *Gate) *Sweeper {
	interval := time.Hour
	if v := os.Getenv("WEATHER_SWEEP_INTERVAL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Minute
		}
	}
	lookahead := 48
	if v := os.Getenv("WEATHER_SWEEP_LOOKAHEAD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lookahead = n
		}
	}
	return &Sweeper{Gate: g, Interval: interval, LookaheadHours: lookahead, MaxItems: 200, Stop: make(chan struct{})}
}

func (s *Sweeper) Start() {
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.Stop:
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ids, err := s.Gate.Store.ListBusinessIDs(ctx)
	if err != nil {
		log.Printf("weather sweep: list businesses: %v", err)
		return
	}
	for _, id := range ids {
		res, err := s.Gate.AutoRescheduleWindow(ctx, id, s.LookaheadHours, s.MaxItems)
		if err != nil {
			log.Printf("weather sweep: business %s: %v", id, err)
			continue
		}
		if res.Held > 0 || res.Remaining > 0 {
			log.Printf("weather sweep: business %s evaluated=%d held=%d skipped=%d remaining=%d",
				id, res.Evaluated, res.Held, res.Skipped, res.Remaining)
		}
	}
}
