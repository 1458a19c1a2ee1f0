// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"log/slog"
	"time"
)

// Observer receives non-fatal events from probing, sampling and collection
type Observer interface {
	// ProbeCompleted is called once per processor after its capability probe
	ProbeCompleted(index int, mask CapabilityMask)

	// MemoryReadFailed is called when the memory usage read of a sample fails
	MemoryReadFailed(index int, err error)

	// SampleFailed is called when a processor is left out of a sweep
	SampleFailed(index int, err error)

	// SweepCompleted is called at the end of every sweep
	SweepCompleted(present, absent int, duration time.Duration)
}

// NopObserver discards every event
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) ProbeCompleted(int, CapabilityMask)     {}
func (NopObserver) MemoryReadFailed(int, error)            {}
func (NopObserver) SampleFailed(int, error)                {}
func (NopObserver) SweepCompleted(int, int, time.Duration) {}

// LogObserver reports events through a structured logger
type LogObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver creates an observer logging to logger
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("observer", "smi")}
}

func (o *LogObserver) ProbeCompleted(index int, mask CapabilityMask) {
	o.logger.Debug("Capability probe completed",
		"device", index,
		"partitions", mask.Partitions,
		"supported", mask.Supported())
}

func (o *LogObserver) MemoryReadFailed(index int, err error) {
	o.logger.Warn("Failed to read memory usage", "device", index, "error", err)
}

func (o *LogObserver) SampleFailed(index int, err error) {
	o.logger.Warn("Failed to sample device", "device", index, "error", err)
}

func (o *LogObserver) SweepCompleted(present, absent int, duration time.Duration) {
	o.logger.Debug("Sweep completed", "present", present, "absent", absent, "duration", duration)
}

// Observers fans every event out to each observer in order
type Observers []Observer

var _ Observer = Observers(nil)

func (os Observers) ProbeCompleted(index int, mask CapabilityMask) {
	for _, o := range os {
		o.ProbeCompleted(index, mask)
	}
}

func (os Observers) MemoryReadFailed(index int, err error) {
	for _, o := range os {
		o.MemoryReadFailed(index, err)
	}
}

func (os Observers) SampleFailed(index int, err error) {
	for _, o := range os {
		o.SampleFailed(index, err)
	}
}

func (os Observers) SweepCompleted(present, absent int, duration time.Duration) {
	for _, o := range os {
		o.SweepCompleted(present, absent, duration)
	}
}
