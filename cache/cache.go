/*
Package cache provides a read-through LRU cache for container reads.

PURPOSE:
  Board views hammer the same containers; the cache absorbs those reads.
  The engine invalidates by InvalidationScope after every mutation, so a
  stale read lives at most until the mutation that made it stale finishes.

SEE ALSO:
  - engine/engine.go: The CacheInvalidator interface this satisfies
*/
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
)

const defaultSize = 4096

// ContainerCache caches containers by ID. Safe for concurrent use.
type ContainerCache struct {
	lru *lru.Cache[hierarchy.ContainerID, hierarchy.Container]
}

// New builds a cache holding up to size containers. Size <= 0 means the
// default capacity.
func New(size int) (*ContainerCache, error) {
	if size <= 0 {
		size = defaultSize
	}
	inner, err := lru.New[hierarchy.ContainerID, hierarchy.Container](size)
	if err != nil {
		return nil, err
	}
	return &ContainerCache{lru: inner}, nil
}

// Get returns the cached container, if any.
func (c *ContainerCache) Get(id hierarchy.ContainerID) (hierarchy.Container, bool) {
	return c.lru.Get(id)
}

// Put stores a container.
func (c *ContainerCache) Put(container hierarchy.Container) {
	c.lru.Add(container.ID, container)
}

// Load returns the cached container or falls through to the store and
// caches the result.
func (c *ContainerCache) Load(ctx context.Context, store engine.Store, id hierarchy.ContainerID) (*hierarchy.Container, error) {
	if cached, ok := c.lru.Get(id); ok {
		return &cached, nil
	}
	loaded, err := store.LoadContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	c.lru.Add(id, *loaded)
	return loaded, nil
}

// Invalidate drops every container named by the scope. Satisfies
// engine.CacheInvalidator.
func (c *ContainerCache) Invalidate(_ context.Context, scope engine.InvalidationScope) error {
	for _, id := range []hierarchy.ContainerID{scope.TaskID, scope.SubtaskID, scope.NanoID} {
		if id != "" {
			c.lru.Remove(id)
		}
	}
	return nil
}

// Drop removes the given containers. Used when a whole subtree goes
// away and the per-mutation scope cannot name every affected ID.
func (c *ContainerCache) Drop(ids ...hierarchy.ContainerID) {
	for _, id := range ids {
		c.lru.Remove(id)
	}
}

// Purge drops everything.
func (c *ContainerCache) Purge() {
	c.lru.Purge()
}
