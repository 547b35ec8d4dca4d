package engine

import (
	"context"
	"fmt"

	"github.com/persistarrows/extension/pkg/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/persistarrows/extension/internal/engine"

type metrics struct {
	scheduled metric.Int64Counter
	completed metric.Int64Counter
	expired   metric.Int64Counter
	failed    metric.Int64Counter
	records   metric.Int64ObservableGauge
	pending   metric.Int64ObservableGauge
}

// newMetrics registers the engine instruments on the global meter. They are
// no-ops until an OTel provider is installed.
func newMetrics(s *Service) (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.scheduled, "respawn.scheduled", "Confirmed deaths queued for respawn"},
		{&m.completed, "respawn.completed", "Replacements spawned"},
		{&m.expired, "respawn.expired", "Respawn requests discarded as stale"},
		{&m.failed, "respawn.failed", "Respawns the host failed to spawn"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	m.records, err = meter.Int64ObservableGauge(
		"tracking.records",
		metric.WithDescription("Projectiles currently tracked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating records gauge: %w", err)
	}
	m.pending, err = meter.Int64ObservableGauge(
		"respawn.pending",
		metric.WithDescription("Respawn requests waiting for the next tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.records, int64(s.registry.Len()))
			o.ObserveInt64(m.pending, int64(s.scheduler.Pending()))
			return nil
		},
		m.records, m.pending,
	)
	if err != nil {
		return nil, fmt.Errorf("registering engine callback: %w", err)
	}

	return m, nil
}

// count increments the counter matching kind, if any.
func (m *metrics) count(kind core.LifecycleKind) {
	if m == nil {
		return
	}
	var c metric.Int64Counter
	switch kind {
	case core.LifecycleScheduled:
		c = m.scheduled
	case core.LifecycleRespawned:
		c = m.completed
	case core.LifecycleExpired:
		c = m.expired
	case core.LifecycleSpawnFailed:
		c = m.failed
	default:
		return
	}
	c.Add(context.Background(), 1)
}
