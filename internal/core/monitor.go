// Package core contains the monitor loop that polls thermostat telemetry
// into the configured sinks, and the health tracker the monitor reports
// through.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hvactools/infinityctl/pkg/model"
	"github.com/hvactools/infinityctl/pkg/retry"
)

// Monitor polls every system on the account at a fixed interval and fans
// each sample out to the configured sinks.
type Monitor struct {
	reader   model.Reader
	sinks    []model.Sink
	interval time.Duration
	retryCfg retry.Config
	health   *HealthTracker
	logger   *slog.Logger
}

// NewMonitor creates a monitor. The health tracker is optional.
func NewMonitor(reader model.Reader, sinks []model.Sink, interval time.Duration, retryCfg retry.Config, health *HealthTracker, logger *slog.Logger) *Monitor {
	return &Monitor{
		reader:   reader,
		sinks:    sinks,
		interval: interval,
		retryCfg: retryCfg,
		health:   health,
		logger:   logger,
	}
}

// Start runs the polling loop: one cycle immediately, then one per tick
// until the context is cancelled. A failed cycle is logged and the loop
// continues; only cancellation stops it.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("starting telemetry monitor",
		"interval", m.interval,
		"sinks", len(m.sinks))

	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error("polling cycle failed", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				m.logger.Error("polling cycle failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single polling cycle across all systems. Transient
// collection failures are retried with backoff before the cycle is counted
// as failed.
func (m *Monitor) RunOnce(ctx context.Context) error {
	systems, err := m.reader.Systems(ctx)
	if err != nil {
		m.recordFailure()
		return fmt.Errorf("listing systems: %w", err)
	}

	var firstErr error
	for _, serial := range systems {
		if err := m.pollSystem(ctx, serial); err != nil {
			m.logger.Error("failed to poll system", "system", serial, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		m.recordFailure()
		return firstErr
	}
	m.recordSuccess()
	return nil
}

func (m *Monitor) pollSystem(ctx context.Context, serial string) error {
	var sample model.Sample
	err := retry.Do(ctx, m.retryCfg, func() error {
		var readErr error
		sample, readErr = m.reader.ReadTelemetry(ctx, serial)
		return readErr
	})
	if err != nil {
		return fmt.Errorf("collecting telemetry: %w", err)
	}

	m.logger.Debug("collected sample",
		"system", serial,
		"mode", sample.Mode,
		"zones", len(sample.Zones))

	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, sample); err != nil {
			m.logger.Error("failed to write to sink",
				"sink", sink.Info().Name,
				"system", serial,
				"error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("writing to %s: %w", sink.Info().Name, err)
			}
		}
	}
	return firstErr
}

func (m *Monitor) recordSuccess() {
	if m.health != nil {
		m.health.RecordSuccess()
	}
}

func (m *Monitor) recordFailure() {
	if m.health != nil {
		m.health.RecordFailure()
	}
}
