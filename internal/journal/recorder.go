// Package journal buffers lifecycle events and stats off the hook path and
// flushes them to a storage backend on a fixed interval.
package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/persistarrows/extension/internal/queue"
	"github.com/persistarrows/extension/internal/storage"
	"github.com/persistarrows/extension/pkg/core"
)

const (
	defaultFlushInterval = time.Second
	defaultBufferSize    = 10000
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("journal closed")

// Recorder implements core.EventSink. Record never blocks: events go to a
// bounded queue that drops the oldest entries when full.
type Recorder struct {
	backend  storage.Backend
	interval time.Duration
	log      *slog.Logger

	events *queue.Queue[core.LifecycleEvent]
	stats  *queue.Queue[core.Stats]

	written   atomic.Uint64
	writeErrs atomic.Uint64

	flushMu   sync.Mutex
	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	open      atomic.Bool
}

// NewRecorder wraps a backend. Non-positive values select the defaults.
func NewRecorder(backend storage.Backend, flushInterval time.Duration, bufferSize int, log *slog.Logger) *Recorder {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		backend:  backend,
		interval: flushInterval,
		log:      log.With("component", "journal"),
		events:   queue.New[core.LifecycleEvent](queue.WithLimit(bufferSize)),
		stats:    queue.New[core.Stats](queue.WithLimit(bufferSize)),
		stop:     make(chan struct{}),
	}
}

// Start initializes the backend, opens the session and starts the flush loop.
func (r *Recorder) Start(s *core.Session) error {
	if r.closed.Load() {
		return ErrClosed
	}
	var err error
	r.startOnce.Do(func() {
		if err = r.backend.Init(); err != nil {
			err = fmt.Errorf("journal init: %w", err)
			return
		}
		if err = r.backend.StartSession(s); err != nil {
			err = fmt.Errorf("journal start session: %w", err)
			return
		}
		r.open.Store(true)
		r.wg.Add(1)
		go r.loop()
		r.log.Info("Journal started", "sessionId", s.ID, "interval", r.interval)
	})
	return err
}

// Record queues a lifecycle event.
func (r *Recorder) Record(e core.LifecycleEvent) {
	if r.closed.Load() {
		return
	}
	if dropped := r.events.Push(e); dropped > 0 {
		r.log.Warn("Journal buffer full, dropped oldest events", "dropped", dropped)
	}
}

// RecordStats queues a stats sample.
func (r *Recorder) RecordStats(s core.Stats) {
	if r.closed.Load() {
		return
	}
	r.stats.Push(s)
}

// Pending returns the number of queued events.
func (r *Recorder) Pending() int {
	return r.events.Len()
}

// Written returns how many events reached the backend.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.events.Dropped()
}

// Flush writes everything queued so far. A failed batch is logged and lost.
func (r *Recorder) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	var errs []error
	if events := r.events.GetAndEmpty(); len(events) > 0 {
		if err := r.backend.RecordLifecycleEvents(events); err != nil {
			r.writeErrs.Add(1)
			errs = append(errs, fmt.Errorf("write %d events: %w", len(events), err))
		} else {
			r.written.Add(uint64(len(events)))
		}
	}
	for _, s := range r.stats.GetAndEmpty() {
		if err := r.backend.RecordStats(&s); err != nil {
			r.writeErrs.Add(1)
			errs = append(errs, fmt.Errorf("write stats: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.log.Error("Journal flush failed", "error", err)
			}
		}
	}
}

// Close stops the loop, flushes what is left, ends the session and closes
// the backend. Start after Close is a no-op.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.startOnce.Do(func() {})
		close(r.stop)
		r.wg.Wait()

		if !r.open.Load() {
			err = r.backend.Close()
			return
		}
		err = errors.Join(r.Flush(), r.backend.EndSession(), r.backend.Close())
		r.log.Info("Journal closed", "written", r.written.Load(), "dropped", r.events.Dropped(), "writeErrors", r.writeErrs.Load())
	})
	return err
}
