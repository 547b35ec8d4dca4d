package parser

import (
	"fmt"

	"github.com/persistarrows/extension/internal/util"
	"github.com/persistarrows/extension/pkg/core"
)

// ProjectileTick is one :PROJECTILE:TICK: observation.
type ProjectileTick struct {
	Projectile core.Projectile
	InFeature  bool
}

// ParseProjectileTick parses
// [id, "x,y,z", "vx,vy,vz", world, inFeature, payloadJSON].
func (p *Parser) ParseProjectileTick(data []string) (ProjectileTick, error) {
	var result ProjectileTick
	util.CleanArgs(data)

	if err := requireArgs(data, 6); err != nil {
		return result, err
	}

	id, err := parseID("projectileID", data[0])
	if err != nil {
		return result, err
	}
	pos, err := parseVec3("position", data[1])
	if err != nil {
		return result, err
	}
	vel, err := parseVec3("velocity", data[2])
	if err != nil {
		return result, err
	}
	inFeature, err := parseBool("inFeature", data[4])
	if err != nil {
		return result, err
	}
	payload, err := ParsePayload(data[5])
	if err != nil {
		return result, fmt.Errorf("error parsing payload for %s: %w", id, err)
	}

	world := core.WorldRef(data[3])
	if util.IsNullArg(data[3]) {
		world = ""
	}

	result.Projectile = core.Projectile{
		ID:       id,
		Payload:  payload,
		Position: pos,
		Velocity: vel,
		World:    world,
	}
	result.InFeature = inFeature
	return result, nil
}

// ProjectileHit is one :PROJECTILE:HIT: collision.
type ProjectileHit struct {
	ProjectileID core.ID
	Target       core.Target
}

// ParseProjectileHit parses
// [projectileID, targetID, health, maxHealth, alive, living].
func (p *Parser) ParseProjectileHit(data []string) (ProjectileHit, error) {
	var result ProjectileHit
	util.CleanArgs(data)

	if err := requireArgs(data, 6); err != nil {
		return result, err
	}

	projectileID, err := parseID("projectileID", data[0])
	if err != nil {
		return result, err
	}
	target, err := parseTarget(data[1:4], data[4], data[5])
	if err != nil {
		return result, err
	}

	result.ProjectileID = projectileID
	result.Target = target
	return result, nil
}

// parseTarget reads [targetID, health, maxHealth] plus alive and living.
func parseTarget(fields []string, alive, living string) (core.Target, error) {
	var t core.Target
	var err error

	if t.ID, err = parseID("targetID", fields[0]); err != nil {
		return t, err
	}
	if t.Health, err = parseFloat("health", fields[1]); err != nil {
		return t, err
	}
	if t.MaxHealth, err = parseFloat("maxHealth", fields[2]); err != nil {
		return t, err
	}
	if t.Alive, err = parseBool("alive", alive); err != nil {
		return t, err
	}
	if t.Living, err = parseBool("living", living); err != nil {
		return t, err
	}
	return t, nil
}
