// Package scheduler implements the Scheduler & Signal Controller: periodic
// blocklist refresh on a cron schedule, refresh coalescing, and the
// SIGHUP-reload / SIGTERM-shutdown signal split.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"

	"github.com/robfig/cron/v3"
)

// RebuildFunc rebuilds and publishes a fresh blocklist snapshot. network
// indicates whether remote sources should be fetched (a scheduled or
// "update" trigger) or skipped (a SIGHUP reload, which spec.md §4.7 requires
// to touch no network).
type RebuildFunc func(ctx context.Context, network bool) error

// Scheduler drives RebuildFunc on a cron schedule and coalesces concurrent
// triggers: a trigger arriving while a rebuild is in flight schedules
// exactly one more rebuild after the current one finishes, rather than
// running once per trigger.
type Scheduler struct {
	cron    *cron.Cron
	rebuild RebuildFunc
	logger  *logging.Logger

	mu       sync.Mutex
	inFlight bool
	pending  bool
}

// New creates a Scheduler honoring cfg's schedule and timezone. If
// cfg.Enabled is false, the returned Scheduler runs no cron job but Reload
// and TriggerUpdate remain usable for signal- and CLI-driven refreshes.
func New(cfg *config.UpdaterConfig, logger *logging.Logger, rebuild RebuildFunc) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		rebuild: rebuild,
		logger:  logger,
	}

	if cfg.Enabled {
		if _, err := s.cron.AddFunc(cfg.Schedule, func() {
			s.trigger(context.Background(), true)
		}); err != nil {
			return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", cfg.Schedule, err)
		}
	}

	return s, nil
}

// Start begins running the cron schedule in the background. No-op if the
// scheduler has no jobs registered.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron scheduler and returns a context that is done once any
// in-flight job has completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Reload triggers a filesystem-only rebuild (SIGHUP semantics): local and
// custom list files are re-read, but no remote fetch occurs.
func (s *Scheduler) Reload(ctx context.Context) {
	s.trigger(ctx, false)
}

// TriggerUpdate runs an immediate network-inclusive rebuild and returns its
// error. It calls the rebuild function directly, without the coalescing that
// scheduled and Reload triggers go through.
func (s *Scheduler) TriggerUpdate(ctx context.Context) error {
	return s.rebuild(ctx, true)
}

// trigger runs rebuild, coalescing overlapping calls. If a trigger arrives
// while one is already running, it sets pending and returns immediately;
// the running rebuild re-checks pending on completion and runs exactly one
// more pass before going idle.
func (s *Scheduler) trigger(ctx context.Context, network bool) {
	s.mu.Lock()
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	for {
		if err := s.rebuild(ctx, network); err != nil && s.logger != nil {
			s.logger.Error("blocklist rebuild failed", "network", network, "error", err)
		}

		s.mu.Lock()
		if !s.pending {
			s.inFlight = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}
