// Package memory provides an in-memory Store implementation (for
// testing/dev). It satisfies engine.Store plus the container CRUD the
// surrounding application layer needs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu         sync.RWMutex
	containers map[hierarchy.ContainerID]hierarchy.Container
	ledgers    map[ledgerKey][]ledger.TimeEntry
}

type ledgerKey struct {
	ID   hierarchy.ContainerID
	Kind ledger.Kind
}

func New() *Store {
	return &Store{
		containers: make(map[hierarchy.ContainerID]hierarchy.Container),
		ledgers:    make(map[ledgerKey][]ledger.TimeEntry),
	}
}

// =============================================================================
// CONTAINER CRUD
// =============================================================================

// CreateContainer stores a new container with empty ledgers.
func (m *Store) CreateContainer(_ context.Context, c hierarchy.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[c.ID]; ok {
		return fmt.Errorf("container %s already exists", c.ID)
	}
	m.containers[c.ID] = c
	return nil
}

// DeleteContainer removes a container, its ledgers, and its whole
// subtree. The caller recomputes the now-stale parent snapshot.
func (m *Store) DeleteContainer(_ context.Context, id hierarchy.ContainerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[id]; !ok {
		return engine.ErrContainerNotFound
	}
	m.deleteSubtreeLocked(id)
	return nil
}

func (m *Store) deleteSubtreeLocked(id hierarchy.ContainerID) {
	for _, c := range m.containers {
		if c.ParentID == id {
			m.deleteSubtreeLocked(c.ID)
		}
	}
	delete(m.containers, id)
	for _, kind := range ledger.Kinds() {
		delete(m.ledgers, ledgerKey{ID: id, Kind: kind})
	}
}

// ListContainers returns all containers at one level, ordered by ID.
func (m *Store) ListContainers(_ context.Context, level hierarchy.Level) ([]hierarchy.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []hierarchy.Container
	for _, c := range m.containers {
		if c.Level == level {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) LoadContainer(_ context.Context, id hierarchy.ContainerID) (*hierarchy.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[id]
	if !ok {
		return nil, engine.ErrContainerNotFound
	}
	return &c, nil
}

// =============================================================================
// LEDGERS
// =============================================================================

func (m *Store) LoadLedger(_ context.Context, id hierarchy.ContainerID, kind ledger.Kind) ([]ledger.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.containers[id]; !ok {
		return nil, engine.ErrContainerNotFound
	}
	src := m.ledgers[ledgerKey{ID: id, Kind: kind}]
	result := make([]ledger.TimeEntry, len(src))
	copy(result, src)
	return result, nil
}

func (m *Store) ReplaceLedger(_ context.Context, id hierarchy.ContainerID, kind ledger.Kind, entries []ledger.TimeEntry, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return engine.ErrContainerNotFound
	}
	if c.Version != expectedVersion {
		return engine.ErrConcurrentModification
	}

	stored := make([]ledger.TimeEntry, len(entries))
	copy(stored, entries)
	m.ledgers[ledgerKey{ID: id, Kind: kind}] = stored

	c.Version++
	m.containers[id] = c
	return nil
}

// =============================================================================
// STATUS AND SNAPSHOTS
// =============================================================================

func (m *Store) UpdateStatus(_ context.Context, id hierarchy.ContainerID, status hierarchy.Status, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return engine.ErrContainerNotFound
	}
	if c.Version != expectedVersion {
		return engine.ErrConcurrentModification
	}

	c.Status = status
	c.Version++
	m.containers[id] = c
	return nil
}

// UpdateSnapshot writes the rollup counters. Snapshot writes carry no
// version check: a full recompute is correct no matter who raced it.
func (m *Store) UpdateSnapshot(_ context.Context, id hierarchy.ContainerID, snap hierarchy.StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return engine.ErrContainerNotFound
	}
	c.Stats = snap
	m.containers[id] = c
	return nil
}

// =============================================================================
// HIERARCHY SOURCE
// =============================================================================

func (m *Store) Children(_ context.Context, parent hierarchy.ContainerID) ([]hierarchy.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []hierarchy.Container
	for _, c := range m.containers {
		if c.ParentID == parent {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
