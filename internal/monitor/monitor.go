// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
	"github.com/sustainable-computing-io/smi-telemetry/internal/service"
)

// Collector produces one sweep across every device
type Collector interface {
	Collect() (*smi.Sweep, error)
}

type SweepProvider interface {
	// Snapshot returns the latest sweep, refreshing it when stale. Sweeps
	// are never modified once published.
	Snapshot() (*smi.Sweep, error)

	// DataChannel returns a channel that signals when a new sweep is available
	DataChannel() <-chan struct{}
}

// Service defines the interface for the telemetry monitoring service
type Service interface {
	service.Service
	SweepProvider
}

// Monitor periodically collects sweeps and caches the latest one
type Monitor struct {
	logger    *slog.Logger
	collector Collector

	interval     time.Duration
	clock        clock.WithTicker
	maxStaleness time.Duration

	// signals when a sweep has been published
	dataCh chan struct{}

	computeGroup singleflight.Group
	sweep        atomic.Pointer[smi.Sweep]

	collectionCtx    context.Context
	collectionCancel context.CancelFunc
}

var _ Service = (*Monitor)(nil)

// NewMonitor creates a new Monitor over collector
func NewMonitor(collector Collector, applyOpts ...OptionFn) *Monitor {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		logger:           opts.logger.With("service", "monitor"),
		collector:        collector,
		clock:            opts.clock,
		interval:         opts.interval,
		maxStaleness:     opts.maxStaleness,
		dataCh:           make(chan struct{}, 1),
		collectionCtx:    ctx,
		collectionCancel: cancel,
	}
}

func (m *Monitor) Name() string {
	return "monitor"
}

// Init takes the first sweep, probing every device
func (m *Monitor) Init() error {
	if err := m.synchronizedRefresh(); err != nil {
		return fmt.Errorf("initial collection failed: %w", err)
	}
	return nil
}

func (m *Monitor) signalNewData() {
	select {
	case m.dataCh <- struct{}{}:
		m.logger.Debug("Data channel updated")
	default:
		m.logger.Debug("Data channel is full")
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor is running...", "interval", m.interval)
	if m.interval > 0 {
		m.scheduleNextCollection()
	}
	<-ctx.Done()
	m.collectionCancel()
	m.logger.Info("Monitor has terminated.")
	return nil
}

func (m *Monitor) Shutdown() error {
	m.logger.Info("shutting down monitor")
	m.collectionCancel()
	return nil
}

func (m *Monitor) DataChannel() <-chan struct{} {
	return m.dataCh
}

func (m *Monitor) Snapshot() (*smi.Sweep, error) {
	if err := m.ensureFreshData(); err != nil {
		return nil, err
	}

	sweep := m.sweep.Load()
	if sweep == nil {
		return nil, fmt.Errorf("no sweep available")
	}
	return sweep, nil
}

func (m *Monitor) scheduleNextCollection() {
	timer := m.clock.After(m.interval)
	go func() {
		select {
		case <-timer:
			if err := m.synchronizedRefresh(); err != nil {
				m.logger.Error("Failed to collect telemetry", "error", err)
			}
			m.scheduleNextCollection()

		case <-m.collectionCtx.Done():
			m.logger.Info("Collection loop terminated")
			return
		}
	}()
}

func (m *Monitor) ensureFreshData() error {
	if m.isFresh() {
		return nil
	}
	return m.synchronizedRefresh()
}

// synchronizedRefresh collects a new sweep while ensuring only one goroutine
// collects at a time. Freshness is checked again inside the group so that a
// caller that waited on another collection does not collect twice.
func (m *Monitor) synchronizedRefresh() error {
	_, err, _ := m.computeGroup.Do("collect", func() (any, error) {
		if m.isFresh() {
			return nil, nil
		}
		return nil, m.refresh()
	})
	return err
}

func (m *Monitor) isFresh() bool {
	sweep := m.sweep.Load()
	if sweep == nil || sweep.Timestamp.IsZero() {
		return false
	}
	return m.clock.Since(sweep.Timestamp) <= m.maxStaleness
}

func (m *Monitor) refresh() error {
	started := m.clock.Now()

	sweep, err := m.collector.Collect()
	if err != nil {
		return err
	}
	// stamp with the monitor clock so freshness is measured consistently
	sweep.Timestamp = m.clock.Now()

	m.sweep.Store(sweep)
	m.signalNewData()
	m.logger.Debug("Collected sweep",
		"devices", len(sweep.Samples),
		"present", sweep.Present(),
		"duration", m.clock.Since(started))
	return nil
}
