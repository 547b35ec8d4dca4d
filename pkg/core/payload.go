package core

import (
	"strings"
	"time"
)

// Item keys recognised by DefaultClassifier.
const (
	ItemLingeringPotion = "minecraft:lingering_potion"
	ItemTippedArrow     = "minecraft:tipped_arrow"
)

// Effect is a single status effect carried by a payload.
type Effect struct {
	ID        string        `json:"id"`
	Amplifier int           `json:"amplifier"`
	Duration  time.Duration `json:"duration"`
}

// Payload describes what a projectile carries. It is captured when tracking
// starts and handed to the host again when a replacement is spawned.
type Payload struct {
	Item       string            `json:"item"`
	Effects    []Effect          `json:"effects,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	cloned := p
	if p.Effects != nil {
		cloned.Effects = make([]Effect, len(p.Effects))
		copy(cloned.Effects, p.Effects)
	}
	if p.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// HasEffects reports whether the payload carries at least one effect.
func (p Payload) HasEffects() bool {
	return len(p.Effects) > 0
}

// Classifier decides whether a payload qualifies for tracking.
type Classifier func(Payload) bool

// DefaultClassifier accepts lingering potions and tipped arrows that carry
// at least one effect.
func DefaultClassifier(p Payload) bool {
	item := strings.ToLower(p.Item)
	switch {
	case item == ItemLingeringPotion, strings.HasSuffix(item, "lingering_potion"):
		return true
	case item == ItemTippedArrow, strings.HasSuffix(item, "tipped_arrow"):
		return p.HasEffects()
	}
	return false
}
