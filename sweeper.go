package synapse

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the engine's periodic background passes — hot-reload
// mtime polling and, when a redis StorageBackend is configured, pinned
// region TTL refresh — on robfig/cron schedules instead of literal
// time.Sleep loops.
//
// Grounded on the pack's periodic-worker idiom (r3e-network-service_layer's
// internal/marble WorkerGroup, a named collection of interval-driven
// functions) but swapping its manual ticker loop for robfig/cron's
// `@every` schedule, since that dependency is part of the domain stack
// this module pulls in and a cron.Cron already gives named-job
// add/start/stop for free.
type Sweeper struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewSweeper(log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{cron: cron.New(), log: log}
}

// AddHotReload schedules fn (the engine's mtime-check-and-reload pass) on
// the ~2s cadence spec.md §4.6 step 3 calls for.
func (s *Sweeper) AddHotReload(fn func()) error {
	_, err := s.cron.AddFunc("@every 2s", fn)
	return err
}

// AddRegionPin schedules fn (a redisBackend pin sweep over the master
// bridge's known regions) on a slower cadence than hot-reload, matching
// the pin TTL redisbackend.go uses by default.
func (s *Sweeper) AddRegionPin(fn func()) error {
	_, err := s.cron.AddFunc("@every 15s", fn)
	return err
}

func (s *Sweeper) Start() { s.cron.Start() }

func (s *Sweeper) Stop() { s.cron.Stop() }
