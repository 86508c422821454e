package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
	"github.com/warp/task-ledger/store/memory"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

var (
	today = mustDate("2025-06-10")

	alice = ledger.Identity{UserID: "alice", DisplayName: "Alice"}
	bob   = ledger.Identity{UserID: "bob", DisplayName: "Bob"}
)

func mustDate(s string) ledger.Date {
	d, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeCache struct {
	calls  int
	scopes []engine.InvalidationScope
}

func (f *fakeCache) Invalidate(_ context.Context, scope engine.InvalidationScope) error {
	f.calls++
	f.scopes = append(f.scopes, scope)
	return nil
}

type fakeBus struct {
	calls  int
	topics []string
	fail   bool
}

func (f *fakeBus) Publish(_ context.Context, topic string, _ any) error {
	f.calls++
	f.topics = append(f.topics, topic)
	if f.fail {
		return errors.New("bus unavailable")
	}
	return nil
}

type fakeHook struct {
	completed []hierarchy.ContainerID
}

func (f *fakeHook) ContainerCompleted(_ context.Context, id hierarchy.ContainerID, _ hierarchy.Status) error {
	f.completed = append(f.completed, id)
	return nil
}

// newWorld seeds a task T with subtask S and nano N and returns a wired
// propagator with deterministic time and IDs.
func newWorld(t *testing.T) (*engine.Propagator, *memory.Store, *fakeCache, *fakeBus, *fakeHook) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "T", Level: hierarchy.LevelTask, BoardID: "b1", ListID: "l1", Status: hierarchy.StatusOpen,
	}))
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "S", Level: hierarchy.LevelSubtask, ParentID: "T", BoardID: "b1", ListID: "l1", Status: hierarchy.StatusOpen,
	}))
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "N", Level: hierarchy.LevelNano, ParentID: "S", BoardID: "b1", ListID: "l1", Status: hierarchy.StatusOpen,
	}))

	p := engine.New(store)
	var n int
	p.Reconciler = &ledger.Reconciler{
		Today: func() ledger.Date { return today },
		NewID: func() ledger.EntryID { n++; return ledger.EntryID(fmt.Sprintf("gen-%d", n)) },
	}

	cache := &fakeCache{}
	bus := &fakeBus{}
	hook := &fakeHook{}
	p.Cache = cache
	p.Broadcast = bus
	p.Hook = hook
	return p, store, cache, bus, hook
}

// =============================================================================
// SUBMIT LEDGER
// =============================================================================

func TestSubmitLedger_PersistsMergedLedger(t *testing.T) {
	// GIVEN: an empty logged ledger on nano N
	// WHEN: Alice submits two new entries
	// THEN: both are persisted with her ownership

	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()

	res, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 2, Note: "design"},
		{Ref: ledger.NewEntry(), Minutes: 30, Note: "review", OccurredOn: today},
	}, alice)

	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.Entries, 2)

	persisted, err := store.LoadLedger(ctx, "N", ledger.KindLogged)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	for _, e := range persisted {
		assert.Equal(t, "alice", e.Owner)
		assert.Equal(t, today, e.OccurredOn)
	}
}

func TestSubmitLedger_ReturnsPostWriteVersion(t *testing.T) {
	// The returned (and broadcast) container must carry the version the
	// store holds after the write, or the client's next submission
	// conflicts immediately.

	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()

	res, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1},
	}, alice)
	require.NoError(t, err)

	stored, err := store.LoadContainer(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, stored.Version, res.Container.Version)
	assert.Equal(t, int64(1), res.Container.Version)
}

func TestSubmitLedger_HardValidation_NothingPersisted(t *testing.T) {
	// WHEN: a submission contains a future-dated entry
	// THEN: the whole mutation aborts with ValidationError and the ledger
	//       stays untouched

	p, store, cache, bus, _ := newWorld(t)
	ctx := context.Background()

	_, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1, Note: "ok"},
		{Ref: ledger.NewEntry(), Hours: 1, OccurredOn: today.AddDays(1)},
	}, alice)

	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Rejections, 1)
	assert.Equal(t, ledger.RejectFutureDate, verr.Rejections[0].Kind)
	assert.True(t, engine.IsClientError(err))

	persisted, err := store.LoadLedger(ctx, "N", ledger.KindLogged)
	require.NoError(t, err)
	assert.Empty(t, persisted, "valid sibling entries must not be persisted either")
	assert.Zero(t, cache.calls)
	assert.Zero(t, bus.calls)
}

func TestSubmitLedger_ForeignDeletion_PersistsWithWarnings(t *testing.T) {
	// GIVEN: Alice has an entry on N's logged ledger
	// WHEN: Bob submits a ledger omitting it
	// THEN: the mutation succeeds, Alice's entry survives, Bob gets a warning

	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()

	_, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 5, Note: "alice's work"},
	}, alice)
	require.NoError(t, err)

	res, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 3, Note: "bob's work"},
	}, bob)

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ledger.RejectForeignDelete, res.Warnings[0].Kind)

	persisted, err := store.LoadLedger(ctx, "N", ledger.KindLogged)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	owners := map[string]int{}
	for _, e := range persisted {
		owners[e.Owner] += e.Minutes
	}
	assert.Equal(t, 300, owners["alice"])
	assert.Equal(t, 180, owners["bob"])
}

func TestSubmitLedger_FiresCacheAndBroadcastOnce(t *testing.T) {
	p, _, cache, bus, _ := newWorld(t)
	ctx := context.Background()

	_, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1},
	}, alice)

	require.NoError(t, err)
	assert.Equal(t, 1, cache.calls, "exactly one invalidation per mutation")
	assert.Equal(t, 1, bus.calls, "exactly one broadcast per mutation")
	assert.Equal(t, engine.Topic("b1", engine.EventUpdated), bus.topics[0])

	scope := cache.scopes[0]
	assert.Equal(t, "b1", scope.BoardID)
	assert.Equal(t, hierarchy.ContainerID("N"), scope.NanoID)
	assert.Equal(t, hierarchy.ContainerID("S"), scope.SubtaskID)
	assert.Equal(t, hierarchy.ContainerID("T"), scope.TaskID)
}

func TestSubmitLedger_BroadcastFailureDoesNotFailMutation(t *testing.T) {
	p, store, _, bus, _ := newWorld(t)
	bus.fail = true
	ctx := context.Background()

	res, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1},
	}, alice)

	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	persisted, err := store.LoadLedger(ctx, "N", ledger.KindLogged)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestSubmitLedger_UnknownKind(t *testing.T) {
	p, _, _, _, _ := newWorld(t)

	_, err := p.SubmitLedger(context.Background(), "N", "invoiced", nil, alice)

	require.ErrorIs(t, err, engine.ErrUnknownLedgerKind)
	assert.True(t, engine.IsClientError(err))
}

func TestSubmitLedger_ContainerNotFound(t *testing.T) {
	p, _, _, _, _ := newWorld(t)

	_, err := p.SubmitLedger(context.Background(), "missing", ledger.KindLogged, nil, alice)

	require.ErrorIs(t, err, engine.ErrContainerNotFound)
	assert.True(t, engine.IsNotFound(err))
}

// conflictStore fails the first n ReplaceLedger calls with a version
// conflict, simulating a concurrent writer.
type conflictStore struct {
	*memory.Store
	remaining int
	calls     int
}

func (c *conflictStore) ReplaceLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind, entries []ledger.TimeEntry, expectedVersion int64) error {
	c.calls++
	if c.remaining > 0 {
		c.remaining--
		return engine.ErrConcurrentModification
	}
	return c.Store.ReplaceLedger(ctx, id, kind, entries, expectedVersion)
}

func TestSubmitLedger_RetriesOnVersionConflict(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	require.NoError(t, mem.CreateContainer(ctx, hierarchy.Container{
		ID: "N", Level: hierarchy.LevelNano, BoardID: "b1", Status: hierarchy.StatusOpen,
	}))

	cs := &conflictStore{Store: mem, remaining: 2}
	p := engine.New(cs)
	p.Reconciler = &ledger.Reconciler{Today: func() ledger.Date { return today }}

	res, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1},
	}, alice)

	require.NoError(t, err)
	assert.Equal(t, 3, cs.calls, "two conflicts then one success")
	assert.Len(t, res.Entries, 1)
}

func TestSubmitLedger_ExhaustedRetries_SurfacesConflict(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	require.NoError(t, mem.CreateContainer(ctx, hierarchy.Container{
		ID: "N", Level: hierarchy.LevelNano, Status: hierarchy.StatusOpen,
	}))

	cs := &conflictStore{Store: mem, remaining: 100}
	p := engine.New(cs)
	p.MaxAttempts = 2

	_, err := p.SubmitLedger(ctx, "N", ledger.KindLogged, []ledger.EntryEdit{
		{Ref: ledger.NewEntry(), Hours: 1},
	}, alice)

	require.ErrorIs(t, err, engine.ErrConcurrentModification)
	assert.True(t, engine.IsRetryable(err))
	assert.Equal(t, 2, cs.calls)
}

// =============================================================================
// STATUS UPDATES AND ROLLUPS
// =============================================================================

func TestUpdateStatus_RecomputesAncestorSnapshots(t *testing.T) {
	// GIVEN: T > S > N, all open
	// WHEN: N is marked done
	// THEN: S's and T's cached counters reflect it

	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()

	c, err := p.UpdateStatus(ctx, "N", hierarchy.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatusDone, c.Status)

	s, err := store.LoadContainer(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{ChildTotal: 1, ChildCompleted: 1}, s.Stats)

	task, err := store.LoadContainer(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{
		ChildTotal: 1, ChildCompleted: 0,
		GrandchildTotal: 1, GrandchildCompleted: 1,
	}, task.Stats)
}

func TestUpdateStatus_CompletionHook_FiresOnTransitionOnly(t *testing.T) {
	p, _, _, _, hook := newWorld(t)
	ctx := context.Background()

	_, err := p.UpdateStatus(ctx, "N", hierarchy.StatusDone)
	require.NoError(t, err)
	require.Equal(t, []hierarchy.ContainerID{"N"}, hook.completed)

	// Already completed; done -> closed is not a new completion.
	_, err = p.UpdateStatus(ctx, "N", hierarchy.StatusClosed)
	require.NoError(t, err)
	assert.Len(t, hook.completed, 1)

	// Reopening and completing again fires again.
	_, err = p.UpdateStatus(ctx, "N", hierarchy.StatusOpen)
	require.NoError(t, err)
	_, err = p.UpdateStatus(ctx, "N", hierarchy.StatusClosed)
	require.NoError(t, err)
	assert.Len(t, hook.completed, 2)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	p, _, _, _, _ := newWorld(t)

	_, err := p.UpdateStatus(context.Background(), "N", "archived")

	require.ErrorIs(t, err, engine.ErrUnknownStatus)
}

func TestChildChanged_RecomputesOwnAndAncestorSnapshots(t *testing.T) {
	// GIVEN: a second nano under S, already done
	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()
	require.NoError(t, store.CreateContainer(ctx, hierarchy.Container{
		ID: "N2", Level: hierarchy.LevelNano, ParentID: "S", BoardID: "b1", Status: hierarchy.StatusDone,
	}))

	// WHEN: the CRUD layer reports S's children changed
	p.ChildChanged(ctx, "S")

	// THEN: S and T both see the new child
	s, err := store.LoadContainer(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatsSnapshot{ChildTotal: 2, ChildCompleted: 1}, s.Stats)

	task, err := store.LoadContainer(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 2, task.Stats.GrandchildTotal)
	assert.Equal(t, 1, task.Stats.GrandchildCompleted)
}

func TestUpdateStatus_SnapshotWriteDoesNotBumpVersion(t *testing.T) {
	// Snapshot recomputation on an ancestor must not invalidate a reader's
	// version stamp on that ancestor.

	p, store, _, _, _ := newWorld(t)
	ctx := context.Background()

	before, err := store.LoadContainer(ctx, "T")
	require.NoError(t, err)

	_, err = p.UpdateStatus(ctx, "N", hierarchy.StatusDone)
	require.NoError(t, err)

	after, err := store.LoadContainer(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}
