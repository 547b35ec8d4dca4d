package simhost

import (
	"fmt"
	"os"
	"time"

	"github.com/persistarrows/extension/pkg/core"
	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionProjectile = "projectile"
	ActionHit        = "hit"
	ActionDamage     = "damage"
	ActionRemove     = "remove"
	ActionTick       = "tick"
	ActionFailSpawns = "fail_spawns"
)

// Scenario is a scripted timeline replayed against the engine.
type Scenario struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Worlds      []string               `yaml:"worlds"`
	Payloads    map[string]PayloadSpec `yaml:"payloads"`
	Steps       []StepSpec             `yaml:"steps"`
	Expect      *ExpectSpec            `yaml:"expect"`
}

// StepSpec is one scripted host event. At is the offset from the scenario
// start.
type StepSpec struct {
	At         time.Duration `yaml:"at"`
	Action     string        `yaml:"action"`
	Projectile string        `yaml:"projectile"`
	Target     string        `yaml:"target"`
	Position   []float64     `yaml:"position"`
	Velocity   []float64     `yaml:"velocity"`
	World      string        `yaml:"world"`
	InFeature  *bool         `yaml:"in_feature"`
	Payload    string        `yaml:"payload"`
	Health     float64       `yaml:"health"`
	MaxHealth  float64       `yaml:"max_health"`
	Alive      *bool         `yaml:"alive"`
	Living     *bool         `yaml:"living"`
	Source     string        `yaml:"source"`
	Amount     float64       `yaml:"amount"`
	Killed     bool          `yaml:"killed"`
	NotApplied bool          `yaml:"not_applied"`
	Cause      string        `yaml:"cause"`
	// Count repeats a tick step or sets the number of failing spawns.
	Count      int           `yaml:"count"`
}

// PayloadSpec describes a named payload.
type PayloadSpec struct {
	Item       string            `yaml:"item"`
	Effects    []EffectSpec      `yaml:"effects"`
	Attributes map[string]string `yaml:"attributes"`
}

// EffectSpec describes one payload effect.
type EffectSpec struct {
	ID        string        `yaml:"id"`
	Amplifier int           `yaml:"amplifier"`
	Duration  time.Duration `yaml:"duration"`
}

// ExpectSpec lists end-state checks. Nil fields are not checked.
type ExpectSpec struct {
	Tracked       []string `yaml:"tracked"`
	Untracked     []string `yaml:"untracked"`
	Persistent    []string `yaml:"persistent"`
	NotPersistent []string `yaml:"not_persistent"`
	Spawned       *int     `yaml:"spawned"`
	TrackedCount  *int     `yaml:"tracked_count"`
	Expired       *int     `yaml:"expired"`
	Failed        *int     `yaml:"failed"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("simhost: load %s: %w", filename, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("simhost: %s: %w", filename, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every step is runnable.
func (sc *Scenario) Validate() error {
	if len(sc.Worlds) == 0 {
		sc.Worlds = []string{"overworld"}
	}
	var last time.Duration
	for i, st := range sc.Steps {
		if st.At < last {
			return fmt.Errorf("step %d: at %s is before the previous step", i, st.At)
		}
		last = st.At

		switch st.Action {
		case ActionProjectile:
			if st.Projectile == "" {
				return fmt.Errorf("step %d: projectile step needs a projectile name", i)
			}
			if _, ok := sc.Payloads[st.Payload]; !ok && st.Payload != "" {
				return fmt.Errorf("step %d: unknown payload %q", i, st.Payload)
			}
			if err := checkVec(st.Position); err != nil {
				return fmt.Errorf("step %d: position: %w", i, err)
			}
			if err := checkVec(st.Velocity); err != nil {
				return fmt.Errorf("step %d: velocity: %w", i, err)
			}
		case ActionHit:
			if st.Projectile == "" || st.Target == "" {
				return fmt.Errorf("step %d: hit step needs projectile and target", i)
			}
		case ActionDamage:
			if st.Target == "" {
				return fmt.Errorf("step %d: damage step needs a target", i)
			}
		case ActionRemove:
			if st.Projectile == "" {
				return fmt.Errorf("step %d: remove step needs a projectile", i)
			}
		case ActionTick, ActionFailSpawns:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, st.Action)
		}
	}
	return nil
}

func checkVec(v []float64) error {
	if len(v) != 0 && len(v) != 3 {
		return fmt.Errorf("want 3 components, got %d", len(v))
	}
	return nil
}

func toVec3(v []float64) core.Vec3 {
	if len(v) != 3 {
		return core.Vec3{}
	}
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Payload returns the core payload for a named PayloadSpec. An empty name
// selects a tipped arrow carrying poison.
func (sc *Scenario) Payload(name string) core.Payload {
	spec, ok := sc.Payloads[name]
	if !ok {
		return core.Payload{
			Item:    core.ItemTippedArrow,
			Effects: []core.Effect{{ID: "minecraft:poison", Duration: 5 * time.Second}},
		}
	}
	p := core.Payload{Item: spec.Item, Attributes: spec.Attributes}
	for _, e := range spec.Effects {
		p.Effects = append(p.Effects, core.Effect{ID: e.ID, Amplifier: e.Amplifier, Duration: e.Duration})
	}
	return p
}
