/*
seed.go - Demo data seeding

PURPOSE:
  Seeds a small demo board so the frontend and manual API exploration
  have something to look at: one task with two subtasks, a few
  nano-subtasks, and pre-filled ledgers from two users.

USAGE:
  POST /api/demo/seed

  Intended for development databases. Seeding is idempotent per ID: a
  second call fails on the duplicate task and leaves existing data alone.

SEE ALSO:
  - handlers.go: The CRUD and ledger paths this exercises
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
)

// SeedDemo loads the demo board.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.seedDemo(r.Context()); err != nil {
		writeError(w, http.StatusConflict, "Demo data already present or seeding failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "seeded", "task": "demo-task"})
}

func (h *Handler) seedDemo(ctx context.Context) error {
	containers := []hierarchy.Container{
		{ID: "demo-task", Level: hierarchy.LevelTask, BoardID: "demo-board", ListID: "demo-list",
			Title: "Launch marketing site", Status: hierarchy.StatusInProgress},
		{ID: "demo-sub-design", Level: hierarchy.LevelSubtask, ParentID: "demo-task", BoardID: "demo-board", ListID: "demo-list",
			Title: "Design pass", Status: hierarchy.StatusDone},
		{ID: "demo-sub-build", Level: hierarchy.LevelSubtask, ParentID: "demo-task", BoardID: "demo-board", ListID: "demo-list",
			Title: "Build pages", Status: hierarchy.StatusInProgress},
		{ID: "demo-nano-hero", Level: hierarchy.LevelNano, ParentID: "demo-sub-build", BoardID: "demo-board", ListID: "demo-list",
			Title: "Hero section", Status: hierarchy.StatusDone},
		{ID: "demo-nano-pricing", Level: hierarchy.LevelNano, ParentID: "demo-sub-build", BoardID: "demo-board", ListID: "demo-list",
			Title: "Pricing page", Status: hierarchy.StatusOpen},
	}
	for _, c := range containers {
		if err := h.Store.CreateContainer(ctx, c); err != nil {
			return err
		}
	}

	yesterday := ledger.Today().AddDays(-1)
	seedEntries := map[ledger.Kind][]ledger.TimeEntry{
		ledger.KindEstimation: {
			{ID: "demo-est-1", Owner: "demo-alice", OwnerName: "Alice", Minutes: 480, Note: "initial estimate", OccurredOn: yesterday},
		},
		ledger.KindLogged: {
			{ID: "demo-log-1", Owner: "demo-alice", OwnerName: "Alice", Minutes: 150, Note: "hero layout", OccurredOn: yesterday},
			{ID: "demo-log-2", Owner: "demo-bob", OwnerName: "Bob", Minutes: 90, Note: "copy review", OccurredOn: yesterday},
		},
	}
	for kind, entries := range seedEntries {
		if err := h.Store.ReplaceLedger(ctx, "demo-nano-hero", kind, entries, expectedSeedVersion(ctx, h, kind)); err != nil {
			return err
		}
	}

	// Bring the cached counters in line with the seeded tree.
	h.Propagator.ChildChanged(ctx, "demo-sub-build")
	h.Propagator.ChildChanged(ctx, "demo-sub-design")
	return nil
}

// expectedSeedVersion reads the current version so consecutive seed
// writes chain correctly.
func expectedSeedVersion(ctx context.Context, h *Handler, _ ledger.Kind) int64 {
	c, err := h.Store.LoadContainer(ctx, "demo-nano-hero")
	if err != nil {
		return 0
	}
	return c.Version
}
