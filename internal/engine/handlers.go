package engine

import (
	"fmt"
	"strconv"

	"github.com/persistarrows/extension/internal/dispatcher"
	"github.com/persistarrows/extension/internal/parser"
)

// Command names understood by RegisterHandlers.
const (
	CommandTick           = ":TICK:"
	CommandProjectileTick = ":PROJECTILE:TICK:"
	CommandProjectileHit  = ":PROJECTILE:HIT:"
	CommandDamagePre      = ":DAMAGE:PRE:"
	CommandDamagePost     = ":DAMAGE:POST:"
	CommandEntityRemoved  = ":ENTITY:REMOVED:"
	CommandPersistent     = ":PERSISTENT:"
	CommandStatus         = ":STATUS:"
)

// RegisterHandlers registers the host hook commands with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Tick boundary and movement - sync, the host needs the result this tick
	d.Register(CommandTick, s.handleTick)
	d.Register(CommandProjectileTick, s.handleProjectileTick)

	// Collision and death - sync, ordering against the next tick matters
	d.Register(CommandProjectileHit, s.handleProjectileHit, dispatcher.Logged())
	d.Register(CommandDamagePost, s.handleDamagePost, dispatcher.Logged())
	d.Register(CommandEntityRemoved, s.handleEntityRemoved, dispatcher.Logged())

	// Diagnostics only - buffered
	d.Register(CommandDamagePre, s.handleDamagePre, dispatcher.Buffered(1000))

	// Queries
	d.Register(CommandPersistent, s.handlePersistent)
	d.Register(CommandStatus, s.handleStatus)
}

func (s *Service) handleTick(e dispatcher.Event) (any, error) {
	return s.OnServerTick(), nil
}

func (s *Service) handleProjectileTick(e dispatcher.Event) (any, error) {
	obj, err := s.parser.ParseProjectileTick(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse projectile tick: %w", err)
	}
	return s.OnProjectileTick(obj.Projectile, obj.InFeature).String(), nil
}

func (s *Service) handleProjectileHit(e dispatcher.Event) (any, error) {
	obj, err := s.parser.ParseProjectileHit(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse projectile hit: %w", err)
	}
	return s.OnCollision(obj.ProjectileID, obj.Target), nil
}

func (s *Service) handleDamagePre(e dispatcher.Event) (any, error) {
	obj, err := s.parser.ParseDamage(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pre-damage: %w", err)
	}
	s.OnDamagePre(obj)
	return nil, nil
}

func (s *Service) handleDamagePost(e dispatcher.Event) (any, error) {
	obj, err := s.parser.ParseDamage(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse post-damage: %w", err)
	}
	id, ok := s.OnDamagePost(obj)
	if !ok {
		return nil, nil
	}
	return id.String(), nil
}

func (s *Service) handleEntityRemoved(e dispatcher.Event) (any, error) {
	obj, err := s.parser.ParseEntityRemoved(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity removal: %w", err)
	}
	s.OnRemoved(obj.ID, obj.Cause)
	return nil, nil
}

func (s *Service) handlePersistent(e dispatcher.Event) (any, error) {
	id, err := s.parser.ParseID(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}
	return strconv.FormatBool(s.IsPersistent(id)), nil
}

func (s *Service) handleStatus(e dispatcher.Event) (any, error) {
	return s.Stats(), nil
}

// Parser returns the host argument parser used by the handlers.
func (s *Service) Parser() *parser.Parser {
	return s.parser
}
