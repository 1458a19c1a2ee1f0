// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// ProcessorSource provides the enumerated processors
type ProcessorSource interface {
	Processors() ([]*Processor, error)
}

// Sweep is the result of one collection across all processors. Samples is
// indexed by processor index; a nil entry is a device left out of the sweep.
type Sweep struct {
	Timestamp  time.Time
	Processors []*Processor
	Samples    []*Sample
}

// Sample returns the sample at index i, if present
func (s *Sweep) Sample(i int) (*Sample, bool) {
	if i < 0 || i >= len(s.Samples) || s.Samples[i] == nil {
		return nil, false
	}
	return s.Samples[i], true
}

// Present is the number of devices with a sample
func (s *Sweep) Present() int {
	n := 0
	for _, sample := range s.Samples {
		if sample != nil {
			n++
		}
	}
	return n
}

// Absent is the number of devices left out of the sweep
func (s *Sweep) Absent() int {
	return len(s.Samples) - s.Present()
}

// Collector samples every processor of a ProcessorSource
type Collector struct {
	logger   *slog.Logger
	source   ProcessorSource
	observer Observer
	clock    clock.Clock
	workers  int
}

// CollectorOptionFn configures a Collector
type CollectorOptionFn func(*Collector)

// WithCollectorLogger sets the logger
func WithCollectorLogger(logger *slog.Logger) CollectorOptionFn {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithCollectorObserver sets the sink for per-device failures
func WithCollectorObserver(o Observer) CollectorOptionFn {
	return func(c *Collector) {
		c.observer = o
	}
}

// WithClock sets the clock used for sweep timestamps
func WithClock(c clock.Clock) CollectorOptionFn {
	return func(col *Collector) {
		col.clock = c
	}
}

// WithWorkers sets how many devices are sampled concurrently
func WithWorkers(n int) CollectorOptionFn {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewCollector creates a collector over source
func NewCollector(source ProcessorSource, opts ...CollectorOptionFn) *Collector {
	c := &Collector{
		logger:   slog.Default(),
		source:   source,
		observer: NopObserver{},
		clock:    clock.RealClock{},
		workers:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("service", "smi-collector")
	return c
}

// Collect samples every processor. A device whose sample fails is reported to
// the observer and left absent; the sweep never fails for a single device.
// An error is returned only when the source has no enumerated processors.
func (c *Collector) Collect() (*Sweep, error) {
	procs, err := c.source.Processors()
	if err != nil {
		return nil, err
	}

	start := c.clock.Now()
	sweep := &Sweep{
		Timestamp:  start,
		Processors: procs,
		Samples:    make([]*Sample, len(procs)),
	}

	if c.workers <= 1 {
		for i, p := range procs {
			sweep.Samples[i] = c.sample(i, p)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.workers)
		for i, p := range procs {
			g.Go(func() error {
				// each goroutine writes only its own slot
				sweep.Samples[i] = c.sample(i, p)
				return nil
			})
		}
		_ = g.Wait()
	}

	present := sweep.Present()
	c.observer.SweepCompleted(present, len(procs)-present, c.clock.Since(start))
	return sweep, nil
}

func (c *Collector) sample(i int, p *Processor) *Sample {
	s, err := p.Sample()
	if err != nil {
		c.observer.SampleFailed(i, err)
		return nil
	}
	return s
}
