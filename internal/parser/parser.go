// Package parser converts host command arguments into core types. It has no
// dependencies beyond a logger.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/internal/geo"
	"github.com/persistarrows/extension/internal/util"
	"github.com/persistarrows/extension/pkg/core"
)

// ErrNonFinite rejects NaN and infinite health or damage values.
var ErrNonFinite = errors.New("value is not finite")

// Parser provides pure []string -> core struct conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func requireArgs(data []string, n int) error {
	if len(data) < n {
		return fmt.Errorf("insufficient data fields: got %d, need %d", len(data), n)
	}
	return nil
}

// parseID parses a uuid argument.
func parseID(field, s string) (core.ID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return core.NilID, fmt.Errorf("error parsing %s: %w", field, err)
	}
	return id, nil
}

// parseOptionalID returns NilID for null-like args.
func parseOptionalID(field, s string) (core.ID, error) {
	if util.IsNullArg(s) {
		return core.NilID, nil
	}
	return parseID(field, s)
}

// parseBool accepts true/false and numeric 1/0, as hosts without a boolean
// type send either.
func parseBool(field, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "1.0":
		return true, nil
	case "false", "0", "0.0":
		return false, nil
	}
	return false, fmt.Errorf("error parsing %s: %q is not a boolean", field, s)
}

func parseFloat(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", field, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("error parsing %s: %w", field, ErrNonFinite)
	}
	return f, nil
}

func parseVec3(field, s string) (core.Vec3, error) {
	v, err := geo.Vec3FromString(s)
	if err != nil {
		return core.Vec3{}, fmt.Errorf("error parsing %s: %w", field, err)
	}
	return v, nil
}

// ParsePayload decodes a JSON payload description.
func ParsePayload(s string) (core.Payload, error) {
	var payload core.Payload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return payload, fmt.Errorf("error unmarshalling payload: %w", err)
	}
	if payload.Item == "" {
		return payload, errors.New("payload has no item")
	}
	return payload, nil
}

// ParseID parses a single-id command such as :PERSISTENT:.
func (p *Parser) ParseID(data []string) (core.ID, error) {
	util.CleanArgs(data)
	if err := requireArgs(data, 1); err != nil {
		return core.NilID, err
	}
	return parseID("id", data[0])
}
