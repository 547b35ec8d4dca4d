package simhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/persistarrows/extension/internal/impact"
	"github.com/persistarrows/extension/internal/respawn"
	"github.com/persistarrows/extension/internal/tracking"
	"github.com/persistarrows/extension/pkg/core"
)

// Hooks is the engine surface the runner drives.
type Hooks interface {
	OnServerTick() respawn.DrainStats
	OnProjectileTick(p core.Projectile, inFeature bool) tracking.Action
	OnCollision(projectileID core.ID, target core.Target) bool
	OnDamagePre(e core.DamageEvent)
	OnDamagePost(e core.DamageEvent) (core.ID, bool)
	OnRemoved(id core.ID, cause string)
	IsPersistent(id core.ID) bool
	IsTracked(id core.ID) bool
	Stats() core.Stats
}

// Result summarises a scenario run.
type Result struct {
	Steps     int
	Ticks     int
	Drained   respawn.DrainStats
	Confirmed []core.ID
	Spawned   []core.ID
	Stats     core.Stats
}

// Runner replays scenarios against an engine and a simulated host.
type Runner struct {
	host   *Host
	clock  *Clock
	hooks  Hooks
	logger *slog.Logger

	targets map[string]core.Target
}

// NewRunner creates a runner. hooks must use clock.Now as its time source
// and host as its spawner.
func NewRunner(host *Host, clock *Clock, hooks Hooks, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		host:    host,
		clock:   clock,
		hooks:   hooks,
		logger:  logger,
		targets: make(map[string]core.Target),
	}
}

// Run executes every step of sc in order and then checks its expectations.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (Result, error) {
	var res Result
	start := r.clock.Now()

	r.logger.Info("Running scenario", "name", sc.Name, "steps", len(sc.Steps))

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("scenario %s interrupted at step %d: %w", sc.Name, i, err)
		}
		r.clock.Set(start.Add(st.At))
		if err := r.step(sc, st, &res); err != nil {
			return res, fmt.Errorf("scenario %s step %d: %w", sc.Name, i, err)
		}
		res.Steps++
	}

	res.Spawned = r.host.Spawned()
	res.Stats = r.hooks.Stats()

	r.logger.Info("Scenario complete",
		"name", sc.Name, "ticks", res.Ticks, "respawned", res.Drained.Respawned,
		"expired", res.Drained.Expired, "tracked", res.Stats.Tracked)

	if sc.Expect != nil {
		if err := r.check(sc.Expect, res); err != nil {
			return res, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}
	return res, nil
}

func (r *Runner) step(sc *Scenario, st StepSpec, res *Result) error {
	r.logger.Debug("Scenario step", "action", st.Action, "at", st.At, "projectile", st.Projectile, "target", st.Target)

	switch st.Action {
	case ActionProjectile:
		world := core.WorldRef(st.World)
		if world == "" {
			world = core.WorldRef(sc.Worlds[0])
		}
		e := r.host.AddEntity(st.Projectile, world, toVec3(st.Position), toVec3(st.Velocity), sc.Payload(st.Payload))
		r.hooks.OnProjectileTick(core.Projectile{
			ID:       e.ID,
			Payload:  e.Payload,
			Position: e.Position,
			Velocity: e.Velocity,
			World:    e.World,
		}, boolOr(st.InFeature, true))

	case ActionHit:
		target := r.target(st)
		r.targets[st.Target] = target
		r.hooks.OnCollision(NameID(st.Projectile), target)

	case ActionDamage:
		target, ok := r.targets[st.Target]
		if !ok {
			target = r.target(st)
		}
		source := st.Source
		if source == "" {
			source = impact.DefaultSourceKind
		}
		e := core.DamageEvent{
			Target:   target,
			Source:   core.DamageSource{Kind: source},
			Amount:   st.Amount,
			WasAlive: target.Alive,
			Applied:  !st.NotApplied,
		}
		r.hooks.OnDamagePre(e)
		if st.Killed && e.Applied {
			e.Target.Alive = false
			e.Target.Health = 0
		} else if e.Applied {
			e.Target.Health -= st.Amount
		}
		r.targets[st.Target] = e.Target
		if id, ok := r.hooks.OnDamagePost(e); ok {
			res.Confirmed = append(res.Confirmed, id)
		}

	case ActionRemove:
		id := NameID(st.Projectile)
		r.host.Remove(id)
		r.hooks.OnRemoved(id, st.Cause)

	case ActionTick:
		n := st.Count
		if n <= 0 {
			n = 1
		}
		for range n {
			d := r.hooks.OnServerTick()
			res.Ticks++
			res.Drained.Processed += d.Processed
			res.Drained.Respawned += d.Respawned
			res.Drained.Expired += d.Expired
			res.Drained.Missing += d.Missing
			res.Drained.Failed += d.Failed
		}

	case ActionFailSpawns:
		r.host.FailSpawns(st.Count)

	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

// target builds the step's target. Alive and living default to true.
func (r *Runner) target(st StepSpec) core.Target {
	maxHealth := st.MaxHealth
	if maxHealth == 0 {
		maxHealth = 20
	}
	return core.Target{
		ID:        NameID(st.Target),
		Health:    st.Health,
		MaxHealth: maxHealth,
		Alive:     boolOr(st.Alive, true),
		Living:    boolOr(st.Living, true),
	}
}

func (r *Runner) check(exp *ExpectSpec, res Result) error {
	var errs []error
	for _, name := range exp.Tracked {
		if !r.hooks.IsTracked(NameID(name)) {
			errs = append(errs, fmt.Errorf("expected %s to be tracked", name))
		}
	}
	for _, name := range exp.Untracked {
		if r.hooks.IsTracked(NameID(name)) {
			errs = append(errs, fmt.Errorf("expected %s to be untracked", name))
		}
	}
	for _, name := range exp.Persistent {
		if !r.hooks.IsPersistent(NameID(name)) {
			errs = append(errs, fmt.Errorf("expected %s to be persistent", name))
		}
	}
	for _, name := range exp.NotPersistent {
		if r.hooks.IsPersistent(NameID(name)) {
			errs = append(errs, fmt.Errorf("expected %s not to be persistent", name))
		}
	}
	errs = appendCount(errs, "spawned", exp.Spawned, len(res.Spawned))
	errs = appendCount(errs, "tracked", exp.TrackedCount, res.Stats.Tracked)
	errs = appendCount(errs, "expired", exp.Expired, int(res.Stats.Expired))
	errs = appendCount(errs, "failed", exp.Failed, int(res.Stats.Failed))
	return errors.Join(errs...)
}

func appendCount(errs []error, what string, want *int, got int) []error {
	if want != nil && *want != got {
		errs = append(errs, fmt.Errorf("expected %d %s, got %d", *want, what, got))
	}
	return errs
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
