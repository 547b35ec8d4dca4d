package parser

import (
	"github.com/persistarrows/extension/internal/util"
	"github.com/persistarrows/extension/pkg/core"
)

// EntityRemoved is one :ENTITY:REMOVED: notification.
type EntityRemoved struct {
	ID    core.ID
	Cause string
}

// ParseEntityRemoved parses [id, cause]. The cause is optional.
func (p *Parser) ParseEntityRemoved(data []string) (EntityRemoved, error) {
	var result EntityRemoved
	util.CleanArgs(data)

	if err := requireArgs(data, 1); err != nil {
		return result, err
	}

	id, err := parseID("id", data[0])
	if err != nil {
		return result, err
	}
	result.ID = id
	if len(data) > 1 && !util.IsNullArg(data[1]) {
		result.Cause = data[1]
	}
	return result, nil
}
