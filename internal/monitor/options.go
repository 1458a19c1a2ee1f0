// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Opts controls how often sweeps are collected and how long a published
// sweep is served before Snapshot collects a new one
type Opts struct {
	logger *slog.Logger
	clock  clock.WithTicker

	// interval between background sweeps; 0 disables the sweep loop
	interval time.Duration
	// age after which Snapshot discards the cached sweep
	maxStaleness time.Duration
}

// DefaultOpts sweeps every 5s and serves a sweep for at most 500ms
func DefaultOpts() Opts {
	return Opts{
		logger:       slog.Default(),
		clock:        clock.RealClock{},
		interval:     5 * time.Second,
		maxStaleness: 500 * time.Millisecond,
	}
}

// OptionFn configures a Monitor
type OptionFn func(*Opts)

// WithInterval sets the time between background sweeps. With 0 sweeps are
// only collected by Init and by Snapshot on a stale cache.
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used to schedule sweeps and to stamp them
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithMaxStaleness sets how old the cached sweep may be before Snapshot
// replaces it
func WithMaxStaleness(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.maxStaleness = d
	}
}
