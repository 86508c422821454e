/*
Package engine orchestrates ledger mutations end-to-end.

PURPOSE:
  The Propagator is the only component that touches persistence and
  notification. One mutation flows: load container -> reconcile ->
  persist merged ledger (optimistic version check, bounded retry) ->
  recompute rollup snapshots bottom-up -> fire one cache invalidation and
  one broadcast. Steps 1-3 are the durability boundary; everything after
  is best-effort and logged, never rolled back.

CONCURRENCY:
  Each mutation runs on its own goroutine; there is no actor guarding a
  ledger. Lost updates between concurrent edits to the same ledger are
  prevented by the version stamp on the container: ReplaceLedger fails
  with ErrConcurrentModification when the stamp moved, and the propagator
  re-reconciles against fresh state.

COLLABORATORS:
  Store, CacheInvalidator, Broadcaster and CompletionHook are injected at
  construction time. Never process-wide singletons.

SEE ALSO:
  - ledger/reconcile.go: The pure merge this package persists
  - hierarchy/aggregate.go: The rollup recomputation
*/
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Store is the persistence boundary of the engine. Implementations must
// provide read-your-writes consistency within a single request and bump
// the container version on every ledger or status write.
type Store interface {
	// LoadContainer returns the container or ErrContainerNotFound.
	LoadContainer(ctx context.Context, id hierarchy.ContainerID) (*hierarchy.Container, error)

	// LoadLedger returns the persisted ledger of one kind.
	LoadLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind) ([]ledger.TimeEntry, error)

	// ReplaceLedger swaps the whole ledger of one kind. Fails with
	// ErrConcurrentModification unless the container's version still
	// equals expectedVersion; on success the version is bumped.
	ReplaceLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind, entries []ledger.TimeEntry, expectedVersion int64) error

	// UpdateStatus sets the container status under the same version
	// discipline as ReplaceLedger.
	UpdateStatus(ctx context.Context, id hierarchy.ContainerID, status hierarchy.Status, expectedVersion int64) error

	hierarchy.Source
	hierarchy.SnapshotStore
}

// InvalidationScope names every container ID touched by a mutation so
// read-through caches keyed by these IDs can be dropped.
type InvalidationScope struct {
	BoardID   string                `json:"boardId,omitempty"`
	ListID    string                `json:"listId,omitempty"`
	TaskID    hierarchy.ContainerID `json:"taskId,omitempty"`
	SubtaskID hierarchy.ContainerID `json:"subtaskId,omitempty"`
	NanoID    hierarchy.ContainerID `json:"nanoId,omitempty"`
}

// CacheInvalidator drops cached reads for the IDs in scope.
// Fire-and-forget from the propagator's perspective.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope InvalidationScope) error
}

// Broadcaster announces changes for live UI updates. Not guaranteed
// delivery; consumers treat each event as "latest known".
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// CompletionHook is invoked when a container's status transitions into
// the terminal completed set. Recurrence generation behind it is out of
// scope here.
type CompletionHook interface {
	ContainerCompleted(ctx context.Context, id hierarchy.ContainerID, status hierarchy.Status) error
}

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
	EventReordered EventKind = "reordered"
)

// Topic encodes the affected board and the event kind.
func Topic(boardID string, kind EventKind) string {
	return fmt.Sprintf("board.%s.%s", boardID, kind)
}

// ContainerEvent is the broadcast payload: the affected container's
// current representation.
type ContainerEvent struct {
	Kind      EventKind           `json:"kind"`
	Container hierarchy.Container `json:"container"`
}

// =============================================================================
// MUTATION RESULT
// =============================================================================

// MutationResult is the successful outcome of a ledger mutation. Warnings
// carries advisory rejections (refused foreign deletions); their presence
// does not make the mutation a failure.
type MutationResult struct {
	Container *hierarchy.Container
	Entries   []ledger.TimeEntry
	Warnings  []ledger.Rejection
}

// =============================================================================
// PROPAGATOR
// =============================================================================

const defaultMaxAttempts = 3

// Propagator orchestrates ledger and status mutations. Construct with
// New, then override the optional collaborators as needed; nil Cache,
// Broadcast and Hook are simply skipped.
type Propagator struct {
	Store      Store
	Aggregator *hierarchy.Aggregator
	Reconciler *ledger.Reconciler

	Cache     CacheInvalidator
	Broadcast Broadcaster
	Hook      CompletionHook

	Log *log.Logger

	// MaxAttempts bounds the reconcile-persist retry loop on version
	// conflicts. Zero means defaultMaxAttempts.
	MaxAttempts int
}

func New(store Store) *Propagator {
	return &Propagator{
		Store:      store,
		Aggregator: hierarchy.NewAggregator(store, store),
		Reconciler: &ledger.Reconciler{},
		Log:        log.Default(),
	}
}

// SubmitLedger applies one client ledger submission to the container's
// ledger of the given kind.
//
// Hard validation failures abort everything and return *ValidationError.
// Refused foreign deletions come back as Warnings on a successful result.
// Snapshot recomputation and notification failures are logged, never
// surfaced: by then the mutation itself has already succeeded.
func (p *Propagator) SubmitLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind, edits []ledger.EntryEdit, requester ledger.Identity) (*MutationResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLedgerKind, kind)
	}

	attempts := p.maxAttempts()
	for attempt := 1; ; attempt++ {
		c, err := p.Store.LoadContainer(ctx, id)
		if err != nil {
			return nil, err
		}

		persisted, err := p.Store.LoadLedger(ctx, id, kind)
		if err != nil {
			return nil, err
		}

		res := p.Reconciler.Reconcile(persisted, edits, requester)
		if hard := res.Hard(); len(hard) > 0 {
			return nil, &ValidationError{Rejections: hard}
		}

		err = p.Store.ReplaceLedger(ctx, id, kind, res.Merged, c.Version)
		if errors.Is(err, ErrConcurrentModification) && attempt < attempts {
			p.Log.Debug("ledger version conflict, re-reconciling",
				"container", id, "kind", kind, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		c.Version++

		p.propagate(ctx, c)
		p.notify(ctx, c, EventUpdated)

		return &MutationResult{Container: c, Entries: res.Merged, Warnings: res.Advisories()}, nil
	}
}

// UpdateStatus moves a container to a new status, recomputes ancestor
// rollups, and invokes the completion hook when the status enters the
// terminal completed set.
func (p *Propagator) UpdateStatus(ctx context.Context, id hierarchy.ContainerID, status hierarchy.Status) (*hierarchy.Container, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	attempts := p.maxAttempts()
	for attempt := 1; ; attempt++ {
		c, err := p.Store.LoadContainer(ctx, id)
		if err != nil {
			return nil, err
		}
		previous := c.Status

		err = p.Store.UpdateStatus(ctx, id, status, c.Version)
		if errors.Is(err, ErrConcurrentModification) && attempt < attempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.Status = status
		c.Version++

		p.propagate(ctx, c)

		if !previous.Completed() && status.Completed() && p.Hook != nil {
			if err := p.Hook.ContainerCompleted(ctx, id, status); err != nil {
				p.Log.Warn("completion hook failed", "container", id, "status", status, "err", err)
			}
		}

		p.notify(ctx, c, EventUpdated)
		return c, nil
	}
}

// ChildChanged recomputes a container's own snapshot and its ancestors'
// after a structural change to its children (create/delete by the CRUD
// layer). Failures are logged; the structural change already happened.
func (p *Propagator) ChildChanged(ctx context.Context, id hierarchy.ContainerID) {
	c, err := p.Store.LoadContainer(ctx, id)
	if err != nil {
		p.Log.Warn("rollup recompute skipped: parent not loadable", "container", id, "err", err)
		return
	}
	if _, err := p.Aggregator.Recompute(ctx, c.ID, c.Level); err != nil {
		p.Log.Warn("rollup recompute failed", "container", c.ID, "err", err)
	}
	p.propagate(ctx, c)
	p.notify(ctx, c, EventUpdated)
}

// =============================================================================
// PROPAGATION (best-effort, post-durability)
// =============================================================================

// propagate walks the containment chain upward, recomputing each
// ancestor's snapshot. The nearest ancestor is always recomputed before
// the one above it.
func (p *Propagator) propagate(ctx context.Context, c *hierarchy.Container) {
	cur := c
	for cur.ParentID != "" {
		parent, err := p.Store.LoadContainer(ctx, cur.ParentID)
		if err != nil {
			p.Log.Warn("rollup recompute aborted: ancestor not loadable",
				"container", c.ID, "ancestor", cur.ParentID, "err", err)
			return
		}
		if _, err := p.Aggregator.Recompute(ctx, parent.ID, parent.Level); err != nil {
			p.Log.Warn("rollup recompute failed",
				"container", c.ID, "ancestor", parent.ID, "err", err)
		}
		cur = parent
	}
}

// notify fires exactly one cache invalidation and one broadcast for the
// mutation, scoped to every container ID it touched.
func (p *Propagator) notify(ctx context.Context, c *hierarchy.Container, kind EventKind) {
	scope := p.scopeFor(ctx, c)

	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, scope); err != nil {
			p.Log.Warn("cache invalidation failed", "container", c.ID, "err", err)
		}
	}
	if p.Broadcast != nil {
		event := ContainerEvent{Kind: kind, Container: *c}
		if err := p.Broadcast.Publish(ctx, Topic(c.BoardID, kind), event); err != nil {
			p.Log.Warn("broadcast failed", "container", c.ID, "err", err)
		}
	}
}

// scopeFor collects the mutated container and its ancestors into an
// invalidation scope. Ancestors that fail to load are left out; the scope
// is advisory.
func (p *Propagator) scopeFor(ctx context.Context, c *hierarchy.Container) InvalidationScope {
	scope := InvalidationScope{BoardID: c.BoardID, ListID: c.ListID}

	cur := c
	for cur != nil {
		switch cur.Level {
		case hierarchy.LevelTask:
			scope.TaskID = cur.ID
		case hierarchy.LevelSubtask:
			scope.SubtaskID = cur.ID
		case hierarchy.LevelNano:
			scope.NanoID = cur.ID
		}
		if cur.ParentID == "" {
			break
		}
		parent, err := p.Store.LoadContainer(ctx, cur.ParentID)
		if err != nil {
			break
		}
		cur = parent
	}
	return scope
}

func (p *Propagator) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}
