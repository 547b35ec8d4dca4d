// Package storage defines the lifecycle journal backend contract.
package storage

import "github.com/persistarrows/extension/pkg/core"

// Backend is the interface all journal implementations must satisfy.
// Calls arrive from the journal flush goroutine, never from hook handlers.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordLifecycleEvents(events []core.LifecycleEvent) error
	RecordStats(s *core.Stats) error
}

// Exporter is an optional interface for backends that write a file when a
// session ends.
type Exporter interface {
	ExportedFilePath() string
}
