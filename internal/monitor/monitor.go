// Package monitor periodically writes the engine status to a JSON file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/persistarrows/extension/pkg/core"
)

// StatsProvider supplies the counters written to the status file.
type StatsProvider interface {
	Stats() core.Stats
}

// Status is the content of the status file.
type Status struct {
	UpdatedAt time.Time    `json:"updatedAt"`
	Session   core.Session `json:"session"`
	Stats     core.Stats   `json:"stats"`
	Journal   JournalState `json:"journal"`
}

// JournalState reports the journal buffer.
type JournalState struct {
	Pending int    `json:"pending"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats      StatsProvider
	Session    core.Session
	Journal    func() JournalState
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status builds the current status.
func (s *Service) Status() Status {
	st := Status{
		UpdatedAt: s.deps.Now(),
		Session:   s.deps.Session,
		Stats:     s.deps.Stats.Stats(),
	}
	if s.deps.Journal != nil {
		st.Journal = s.deps.Journal()
	}
	return st
}

// WriteStatus replaces the status file atomically.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	dir := filepath.Dir(s.deps.StatusFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.StatusFile == "" {
		return fmt.Errorf("monitor status file not set")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	s.deps.Logger.Debug("Starting status monitor", "file", s.deps.StatusFile, "interval", s.deps.Interval)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteStatus(); err != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and writes a final status.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing final status file", "error", err)
	}
}
