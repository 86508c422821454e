/*
aggregate.go - Full recomputation of cached rollup counters

PURPOSE:
  Recomputes a container's StatsSnapshot from its current children and
  writes it back as one atomic update.

WHY FULL RECOMPUTATION?
  Incremental deltas are unsafe under concurrent edits: two simultaneous
  status flips can double-count or under-count a delta-based counter. A
  full recompute is correct no matter how many concurrent writers raced to
  trigger it, at the cost of an extra read per trigger. Triggers arrive at
  user-interactive rate, so the extra read is cheap.

ORDERING:
  When a nano-subtask changes, its subtask's rollup is recomputed before
  (or independently of) the task's, and both are eventually recomputed.
  One recompute at the task level never substitutes for the subtask's own
  cached counters.

SEE ALSO:
  - container.go: StatsSnapshot definition
*/
package hierarchy

import "context"

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Source supplies the current children of a container. Implemented by the
// persistence stores.
type Source interface {
	// Children returns the direct children of parent.
	Children(ctx context.Context, parent ContainerID) ([]Container, error)
}

// SnapshotStore persists recomputed snapshots. The write must be atomic:
// all four counters land together or not at all.
type SnapshotStore interface {
	UpdateSnapshot(ctx context.Context, id ContainerID, snap StatsSnapshot) error
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator recomputes rollup counters. Recompute is idempotent and has
// no effect beyond the snapshot write.
type Aggregator struct {
	Source    Source
	Snapshots SnapshotStore
}

func NewAggregator(source Source, snapshots SnapshotStore) *Aggregator {
	return &Aggregator{Source: source, Snapshots: snapshots}
}

// Recompute derives the container's snapshot from its current children
// and persists it. A Task counts its subtasks and, transitively, their
// nano-subtasks; a Subtask counts its nano-subtasks; a NanoSubtask always
// snapshots to zero.
func (a *Aggregator) Recompute(ctx context.Context, id ContainerID, level Level) (StatsSnapshot, error) {
	var snap StatsSnapshot

	switch level {
	case LevelTask:
		subtasks, err := a.Source.Children(ctx, id)
		if err != nil {
			return StatsSnapshot{}, err
		}
		snap.ChildTotal = len(subtasks)
		for _, sub := range subtasks {
			if sub.Status.Completed() {
				snap.ChildCompleted++
			}
			nanos, err := a.Source.Children(ctx, sub.ID)
			if err != nil {
				return StatsSnapshot{}, err
			}
			snap.GrandchildTotal += len(nanos)
			for _, n := range nanos {
				if n.Status.Completed() {
					snap.GrandchildCompleted++
				}
			}
		}

	case LevelSubtask:
		nanos, err := a.Source.Children(ctx, id)
		if err != nil {
			return StatsSnapshot{}, err
		}
		snap.ChildTotal = len(nanos)
		for _, n := range nanos {
			if n.Status.Completed() {
				snap.ChildCompleted++
			}
		}

	case LevelNano:
		// Leaf level: nothing to aggregate, snapshot stays zero.
	}

	if err := a.Snapshots.UpdateSnapshot(ctx, id, snap); err != nil {
		return StatsSnapshot{}, err
	}
	return snap, nil
}
