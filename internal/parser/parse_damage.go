package parser

import (
	"github.com/persistarrows/extension/internal/util"
	"github.com/persistarrows/extension/pkg/core"
)

// ParseDamage parses :DAMAGE:PRE: and :DAMAGE:POST: args:
// [targetID, health, maxHealth, alive, sourceKind, sourceID, amount, wasAlive, applied].
// Damage targets are always living entities.
func (p *Parser) ParseDamage(data []string) (core.DamageEvent, error) {
	var e core.DamageEvent
	util.CleanArgs(data)

	if err := requireArgs(data, 9); err != nil {
		return e, err
	}

	target, err := parseTarget(data[0:3], data[3], "true")
	if err != nil {
		return e, err
	}
	sourceID, err := parseOptionalID("sourceID", data[5])
	if err != nil {
		return e, err
	}
	amount, err := parseFloat("amount", data[6])
	if err != nil {
		return e, err
	}
	wasAlive, err := parseBool("wasAlive", data[7])
	if err != nil {
		return e, err
	}
	applied, err := parseBool("applied", data[8])
	if err != nil {
		return e, err
	}

	e.Target = target
	e.Source = core.DamageSource{Kind: data[4], EntityID: sourceID}
	e.Amount = amount
	e.WasAlive = wasAlive
	e.Applied = applied

	if e.WasAlive && !e.Target.Alive {
		p.logger.Debug("Parsed fatal damage", "target", e.Target.ID, "source", e.Source.Kind, "applied", e.Applied)
	}
	return e, nil
}
