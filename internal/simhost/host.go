// Package simhost is an in-memory host used by the scenario harness and
// tests. It spawns entities on request and drives the engine hooks from a
// scripted timeline.
package simhost

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/pkg/core"
)

// Entity is a projectile living in the simulated host.
type Entity struct {
	ID       core.ID
	Name     string
	World    core.WorldRef
	Position core.Vec3
	Velocity core.Vec3
	Payload  core.Payload
	// Replaces is set on entities created through Spawn.
	Replaces core.ID
}

// Host is a minimal world with named worlds and projectiles.
type Host struct {
	mu       sync.Mutex
	worlds   map[core.WorldRef]bool
	entities map[core.ID]*Entity
	spawned  []core.ID
	failNext int
}

// NewHost creates a host with the given worlds loaded.
func NewHost(worlds ...core.WorldRef) *Host {
	h := &Host{
		worlds:   make(map[core.WorldRef]bool),
		entities: make(map[core.ID]*Entity),
	}
	for _, w := range worlds {
		h.worlds[w] = true
	}
	return h
}

// NameID maps a scenario name to a stable id.
func NameID(name string) core.ID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("persistarrows/"+name))
}

// AddEntity places a named entity in the host and returns it.
func (h *Host) AddEntity(name string, world core.WorldRef, pos, vel core.Vec3, payload core.Payload) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := &Entity{
		ID:       NameID(name),
		Name:     name,
		World:    world,
		Position: pos,
		Velocity: vel,
		Payload:  payload.Clone(),
	}
	h.entities[e.ID] = e
	return e
}

// Remove drops an entity. Returns false if it did not exist.
func (h *Host) Remove(id core.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entities[id]; !ok {
		return false
	}
	delete(h.entities, id)
	return true
}

// Entity returns a copy of the entity with id.
func (h *Host) Entity(id core.ID) (Entity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// FailSpawns makes the next n Spawn calls fail.
func (h *Host) FailSpawns(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = n
}

// Spawn creates a replacement projectile. Unknown worlds fail with
// core.ErrInvalidWorld.
func (h *Host) Spawn(world core.WorldRef, pos core.Vec3, payload core.Payload, velocity core.Vec3) (core.ID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.worlds[world] {
		return core.NilID, fmt.Errorf("world %q: %w", world, core.ErrInvalidWorld)
	}
	if h.failNext > 0 {
		h.failNext--
		return core.NilID, fmt.Errorf("world %q: %w", world, core.ErrSpawnFailed)
	}

	e := &Entity{
		ID:       uuid.New(),
		World:    world,
		Position: pos,
		Velocity: velocity,
		Payload:  payload.Clone(),
	}
	e.Name = "spawned-" + e.ID.String()[:8]
	h.entities[e.ID] = e
	h.spawned = append(h.spawned, e.ID)
	return e.ID, nil
}

// Spawned returns the ids created through Spawn, oldest first.
func (h *Host) Spawned() []core.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.ID, len(h.spawned))
	copy(out, h.spawned)
	return out
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}
