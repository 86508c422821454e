/*
sweeper.go - Background stats reconciliation sweeper

PURPOSE:
  Periodically recomputes every task and subtask rollup snapshot. The
  propagator already recomputes ancestors on each mutation; the sweeper
  repairs counters that drifted anyway (crashed process mid-propagation,
  direct database edits, bugs).

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Recomputes subtasks before tasks so task counters read fresh data
  - Failures on individual containers are logged and skipped

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled:  Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewStatsSweeper(store, propagator.Aggregator, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - hierarchy/aggregate.go: The recomputation itself
  - engine/engine.go: Per-mutation propagation
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/warp/task-ledger/hierarchy"
)

// StatsSweeper repairs drifted rollup counters in the background.
type StatsSweeper struct {
	Store      Store
	Aggregator *hierarchy.Aggregator
	Interval   time.Duration
	Enabled    bool
	Log        *log.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStatsSweeper creates a sweeper with the default interval.
func NewStatsSweeper(store Store, aggregator *hierarchy.Aggregator, logger *log.Logger) *StatsSweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &StatsSweeper{
		Store:      store,
		Aggregator: aggregator,
		Interval:   1 * time.Hour,
		Enabled:    true,
		Log:        logger,
		stop:       make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *StatsSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("stats sweeper disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info("stats sweeper started", "interval", s.Interval)
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *StatsSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("stats sweeper stopped")
	}
}

func (s *StatsSweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.SweepNow()

	for {
		select {
		case <-s.ticker.C:
			s.SweepNow()
		case <-s.stop:
			return
		}
	}
}

// SweepNow recomputes all subtask snapshots, then all task snapshots.
// Exposed for tests and admin triggering.
func (s *StatsSweeper) SweepNow() {
	ctx := context.Background()
	start := time.Now()

	swept := 0
	// Subtasks before tasks: a task's grandchild counters come from the
	// same child rows either way, but subtask counters must be fresh for
	// anyone reading them right after the sweep.
	for _, level := range []hierarchy.Level{hierarchy.LevelSubtask, hierarchy.LevelTask} {
		containers, err := s.Store.ListContainers(ctx, level)
		if err != nil {
			s.Log.Error("sweep failed to list containers", "level", level, "err", err)
			return
		}
		for _, c := range containers {
			if _, err := s.Aggregator.Recompute(ctx, c.ID, c.Level); err != nil {
				s.Log.Warn("sweep failed to recompute", "container", c.ID, "err", err)
				continue
			}
			swept++
		}
	}

	if swept > 0 {
		s.Log.Debug("sweep completed", "containers", swept, "took", time.Since(start))
	}
}
