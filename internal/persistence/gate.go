// Package persistence holds the set of projectiles whose default despawn the
// host must veto.
package persistence

import (
	"sync"

	"github.com/persistarrows/extension/pkg/core"
)

// Gate is a thread-safe set of projectile ids exempt from default despawn.
type Gate struct {
	mu  sync.RWMutex
	ids map[core.ID]struct{}
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{ids: make(map[core.ID]struct{})}
}

// MarkPersistent adds id to the set.
func (g *Gate) MarkPersistent(id core.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids[id] = struct{}{}
}

// IsPersistent reports whether the host should veto its default despawn of id.
func (g *Gate) IsPersistent(id core.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.ids[id]
	return ok
}

// Clear removes id. Returns true if it was present.
func (g *Gate) Clear(id core.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ids[id]; !ok {
		return false
	}
	delete(g.ids, id)
	return true
}

// Len returns the number of persistent ids.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}
