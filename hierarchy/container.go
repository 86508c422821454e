/*
Package hierarchy models the three-level work-item containment hierarchy
and the rollup counters cached on each level.

PURPOSE:
  Boards hold tasks, tasks hold subtasks, subtasks hold nano-subtasks.
  Every container caches a StatsSnapshot of completion counters derived
  from its descendants. The snapshot is a cache, never a source of truth:
  it is always recomputed in full from current child state, never patched
  incrementally.

KEY CONCEPTS IN THIS FILE (container.go):
  - Level: which of the three nesting levels a container sits at
  - Status: lifecycle state, with a fixed completed-set
  - Container: the work item record the engine operates on
  - StatsSnapshot: the cached rollup counters

SEE ALSO:
  - aggregate.go: The recomputation algorithm
*/
package hierarchy

import "github.com/shopspring/decimal"

// =============================================================================
// IDENTIFIERS AND LEVELS
// =============================================================================

type ContainerID string

// Level is the container's position in the hierarchy.
type Level string

const (
	LevelTask    Level = "task"
	LevelSubtask Level = "subtask"
	LevelNano    Level = "nano_subtask"
)

func (l Level) Valid() bool {
	switch l {
	case LevelTask, LevelSubtask, LevelNano:
		return true
	}
	return false
}

// Parent returns the level a container's parent sits at.
func (l Level) Parent() (Level, bool) {
	switch l {
	case LevelSubtask:
		return LevelTask, true
	case LevelNano:
		return LevelSubtask, true
	}
	return "", false
}

// Child returns the level a container's direct children sit at.
func (l Level) Child() (Level, bool) {
	switch l {
	case LevelTask:
		return LevelSubtask, true
	case LevelSubtask:
		return LevelNano, true
	}
	return "", false
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusClosed:
		return true
	}
	return false
}

// Completed reports whether the status belongs to the terminal
// completed-set counted by rollups and watched by the completion hook.
func (s Status) Completed() bool {
	return s == StatusDone || s == StatusClosed
}

// =============================================================================
// STATS SNAPSHOT - Cached rollup counters
// =============================================================================

// StatsSnapshot holds the counters cached on a container. For a Task all
// four counters are meaningful (children are subtasks, grandchildren are
// nano-subtasks); for a Subtask only the child pair is (children are
// nano-subtasks); a NanoSubtask's snapshot is always zero.
type StatsSnapshot struct {
	ChildTotal          int `json:"childTotal"`
	ChildCompleted      int `json:"childCompleted"`
	GrandchildTotal     int `json:"grandchildTotal"`
	GrandchildCompleted int `json:"grandchildCompleted"`
}

// CompletionPercent is the direct-children completion ratio as a
// percentage, rounded to two decimal places. Zero children means zero.
func (s StatsSnapshot) CompletionPercent() decimal.Decimal {
	if s.ChildTotal == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.ChildCompleted)).
		Div(decimal.NewFromInt(int64(s.ChildTotal))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// =============================================================================
// CONTAINER
// =============================================================================

// Container is a work item at one of the three hierarchy levels. Version
// is the optimistic-concurrency stamp bumped on every ledger or status
// write; snapshot updates do not bump it.
type Container struct {
	ID       ContainerID   `json:"id"`
	Level    Level         `json:"level"`
	ParentID ContainerID   `json:"parentId,omitempty"`
	BoardID  string        `json:"boardId"`
	ListID   string        `json:"listId,omitempty"`
	Title    string        `json:"title"`
	Status   Status        `json:"status"`
	Version  int64         `json:"version"`
	Stats    StatsSnapshot `json:"stats"`
}
