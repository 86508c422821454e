package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/task-ledger/api"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/store/memory"
)

func TestSweeper_RepairsDriftedCounters(t *testing.T) {
	// GIVEN: a tree whose cached counters were corrupted out-of-band
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "T", Level: hierarchy.LevelTask, Status: hierarchy.StatusOpen,
	}))
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "S", Level: hierarchy.LevelSubtask, ParentID: "T", Status: hierarchy.StatusDone,
	}))
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "N", Level: hierarchy.LevelNano, ParentID: "S", Status: hierarchy.StatusDone,
	}))
	require.NoError(t, store.UpdateSnapshot(ctx, "T", hierarchy.StatsSnapshot{ChildTotal: 42}))

	sweeper := api.NewStatsSweeper(store, hierarchy.NewAggregator(store, store), nil)

	// WHEN: a sweep runs
	sweeper.SweepNow()

	// THEN: every cached counter matches the live tree again
	task, err := store.LoadContainer(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{
		ChildTotal: 1, ChildCompleted: 1,
		GrandchildTotal: 1, GrandchildCompleted: 1,
	}, task.Stats)

	s, err := store.LoadContainer(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{ChildTotal: 1, ChildCompleted: 1}, s.Stats)
}

func TestSweeper_DisabledDoesNotStart(t *testing.T) {
	store := memory.New()
	sweeper := api.NewStatsSweeper(store, hierarchy.NewAggregator(store, store), nil)
	sweeper.Enabled = false

	sweeper.Start()
	sweeper.Stop() // must not hang or panic with no running goroutine
}
