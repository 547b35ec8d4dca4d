// Package hostabi is the string-command boundary between a host and the
// extension. Hosts call Bridge.Call with a command name and string args and
// get back a host-parsable array literal.
package hostabi

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/persistarrows/extension/internal/dispatcher"
)

// Built-in commands answered without a registered handler.
const (
	CommandVersion   = ":VERSION:"
	CommandTimestamp = ":TIMESTAMP:"
)

// argSeparator splits "command|arg1|arg2" style calls.
const argSeparator = "|"

// Bridge forwards host calls to a dispatcher.
type Bridge struct {
	mu         sync.RWMutex
	dispatcher *dispatcher.Dispatcher
	version    string
	buildDate  string
	now        func() time.Time
}

// NewBridge creates a bridge with no dispatcher attached.
func NewBridge(version, buildDate string) *Bridge {
	return &Bridge{
		version:   version,
		buildDate: buildDate,
		now:       time.Now,
	}
}

// SetDispatcher sets the event dispatcher for handling commands
func (b *Bridge) SetDispatcher(d *dispatcher.Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatcher = d
}

// Dispatcher returns the configured dispatcher, or nil if not set
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dispatcher
}

// Version returns the version string reported to the host.
func (b *Bridge) Version() string {
	return b.version
}

// Call handles one host call and returns the formatted response.
func (b *Bridge) Call(command string, args []string) string {
	switch command {
	case CommandTimestamp:
		return formatDispatchResponse(command, fmt.Sprintf("%d", b.now().UTC().UnixNano()), nil)
	case CommandVersion:
		return formatDispatchResponse(command, []string{b.version, b.buildDate}, nil)
	}

	d := b.Dispatcher()
	if d == nil || !d.HasHandler(command) {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered for %s", command))
	}

	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: b.now(),
	})
	return formatDispatchResponse(command, result, err)
}

// CallRaw handles the single-string form "command|arg1|arg2".
func (b *Bridge) CallRaw(input string) string {
	parts := strings.Split(input, argSeparator)
	return b.Call(parts[0], parts[1:])
}

// escape doubles embedded quotes the way the host's string literals do.
func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// formatDispatchResponse formats a handler result for the host. Strings are
// returned as host string literals; everything else is JSON encoded.
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`["error", "%s"]`, escape(err.Error()))
	}
	if result == nil {
		return `["ok"]`
	}
	if s, ok := result.(string); ok {
		return fmt.Sprintf(`["ok", "%s"]`, escape(s))
	}
	data, jerr := json.Marshal(result)
	if jerr != nil {
		return fmt.Sprintf(`["error", "%s"]`, escape(fmt.Sprintf("%s encoding result: %v", command, jerr)))
	}
	return fmt.Sprintf(`["ok", %s]`, data)
}
