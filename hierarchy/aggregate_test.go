package hierarchy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/task-ledger/hierarchy"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// fakeTree is an in-memory Source + SnapshotStore.
type fakeTree struct {
	children  map[hierarchy.ContainerID][]hierarchy.Container
	snapshots map[hierarchy.ContainerID]hierarchy.StatsSnapshot
	writes    int
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		children:  make(map[hierarchy.ContainerID][]hierarchy.Container),
		snapshots: make(map[hierarchy.ContainerID]hierarchy.StatsSnapshot),
	}
}

func (f *fakeTree) Children(_ context.Context, parent hierarchy.ContainerID) ([]hierarchy.Container, error) {
	return f.children[parent], nil
}

func (f *fakeTree) UpdateSnapshot(_ context.Context, id hierarchy.ContainerID, snap hierarchy.StatsSnapshot) error {
	f.snapshots[id] = snap
	f.writes++
	return nil
}

func (f *fakeTree) add(parent hierarchy.ContainerID, c hierarchy.Container) {
	f.children[parent] = append(f.children[parent], c)
}

func sub(id string, status hierarchy.Status) hierarchy.Container {
	return hierarchy.Container{ID: hierarchy.ContainerID(id), Level: hierarchy.LevelSubtask, Status: status}
}

func nano(id string, status hierarchy.Status) hierarchy.Container {
	return hierarchy.Container{ID: hierarchy.ContainerID(id), Level: hierarchy.LevelNano, Status: status}
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_Task_CountsChildrenAndGrandchildren(t *testing.T) {
	// GIVEN: task T with 3 subtasks (1 done), holding 4 nanos (3 done)
	tree := newFakeTree()
	tree.add("T", sub("S1", hierarchy.StatusDone))
	tree.add("T", sub("S2", hierarchy.StatusOpen))
	tree.add("T", sub("S3", hierarchy.StatusInProgress))
	tree.add("S1", nano("N1", hierarchy.StatusDone))
	tree.add("S1", nano("N2", hierarchy.StatusDone))
	tree.add("S2", nano("N3", hierarchy.StatusClosed))
	tree.add("S3", nano("N4", hierarchy.StatusOpen))

	agg := hierarchy.NewAggregator(tree, tree)
	snap, err := agg.Recompute(context.Background(), "T", hierarchy.LevelTask)

	require.NoError(t, err)
	assert.Equal(t, 3, snap.ChildTotal)
	assert.Equal(t, 1, snap.ChildCompleted)
	assert.Equal(t, 4, snap.GrandchildTotal)
	assert.Equal(t, 3, snap.GrandchildCompleted, "closed counts as completed")
	assert.Equal(t, snap, tree.snapshots["T"], "snapshot is persisted")
}

func TestRecompute_Subtask_CountsDirectNanosOnly(t *testing.T) {
	tree := newFakeTree()
	tree.add("S1", nano("N1", hierarchy.StatusDone))
	tree.add("S1", nano("N2", hierarchy.StatusOpen))

	agg := hierarchy.NewAggregator(tree, tree)
	snap, err := agg.Recompute(context.Background(), "S1", hierarchy.LevelSubtask)

	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{ChildTotal: 2, ChildCompleted: 1}, snap)
}

func TestRecompute_Nano_AlwaysZero(t *testing.T) {
	tree := newFakeTree()

	agg := hierarchy.NewAggregator(tree, tree)
	snap, err := agg.Recompute(context.Background(), "N1", hierarchy.LevelNano)

	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{}, snap)
}

func TestRecompute_EmptyTask_ZeroCounters(t *testing.T) {
	tree := newFakeTree()

	agg := hierarchy.NewAggregator(tree, tree)
	snap, err := agg.Recompute(context.Background(), "T", hierarchy.LevelTask)

	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{}, snap)
}

func TestRecompute_Idempotent(t *testing.T) {
	// WHEN: Recompute runs twice with no child changes in between
	// THEN: Both runs produce the same snapshot

	tree := newFakeTree()
	tree.add("T", sub("S1", hierarchy.StatusDone))
	tree.add("T", sub("S2", hierarchy.StatusOpen))

	agg := hierarchy.NewAggregator(tree, tree)
	first, err := agg.Recompute(context.Background(), "T", hierarchy.LevelTask)
	require.NoError(t, err)
	second, err := agg.Recompute(context.Background(), "T", hierarchy.LevelTask)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, tree.writes, "each recompute writes exactly once")
}

func TestRecompute_StatusFlip_FullRecomputeNotDelta(t *testing.T) {
	// GIVEN: a stale cached snapshot that a delta-based scheme would trust
	// WHEN: a child flips to done and Recompute runs
	// THEN: counters reflect current child state, not the stale cache

	tree := newFakeTree()
	tree.snapshots["T"] = hierarchy.StatsSnapshot{ChildTotal: 99, ChildCompleted: 99}
	tree.add("T", sub("S1", hierarchy.StatusDone))

	agg := hierarchy.NewAggregator(tree, tree)
	snap, err := agg.Recompute(context.Background(), "T", hierarchy.LevelTask)

	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{ChildTotal: 1, ChildCompleted: 1}, snap)
}

// =============================================================================
// SNAPSHOT HELPERS
// =============================================================================

func TestCompletionPercent(t *testing.T) {
	snap := hierarchy.StatsSnapshot{ChildTotal: 3, ChildCompleted: 1}
	assert.Equal(t, "33.33", snap.CompletionPercent().StringFixed(2))

	assert.True(t, hierarchy.StatsSnapshot{}.CompletionPercent().IsZero())
}

func TestLevelParentChild(t *testing.T) {
	p, ok := hierarchy.LevelNano.Parent()
	assert.True(t, ok)
	assert.Equal(t, hierarchy.LevelSubtask, p)

	p, ok = hierarchy.LevelSubtask.Parent()
	assert.True(t, ok)
	assert.Equal(t, hierarchy.LevelTask, p)

	_, ok = hierarchy.LevelTask.Parent()
	assert.False(t, ok, "tasks are the root of the hierarchy")

	c, ok := hierarchy.LevelTask.Child()
	assert.True(t, ok)
	assert.Equal(t, hierarchy.LevelSubtask, c)

	_, ok = hierarchy.LevelNano.Child()
	assert.False(t, ok)
}
