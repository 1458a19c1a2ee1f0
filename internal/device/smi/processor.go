// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Processor is one enumerated device. It shares the Driver with every other
// Processor of the same Service and never closes it.
type Processor struct {
	driver   Driver
	observer Observer

	handle ProcessorHandle
	kind   ProcessorType
	index  int
	socket int

	probeOnce sync.Once
	probed    atomic.Bool
	mask      CapabilityMask
}

func newProcessor(d Driver, o Observer, h ProcessorHandle, kind ProcessorType, index, socket int) *Processor {
	return &Processor{
		driver:   d,
		observer: o,
		handle:   h,
		kind:     kind,
		index:    index,
		socket:   socket,
	}
}

// Index is the position of the processor in enumeration order
func (p *Processor) Index() int {
	return p.index
}

// Socket is the index of the socket the processor was enumerated from
func (p *Processor) Socket() int {
	return p.socket
}

func (p *Processor) Handle() ProcessorHandle {
	return p.handle
}

func (p *Processor) Type() ProcessorType {
	return p.kind
}

// Probed reports whether the capability mask has been computed
func (p *Processor) Probed() bool {
	return p.probed.Load()
}

// SupportedMetrics returns the capability mask, probing the driver on the
// first call only. Concurrent first calls wait for a single probe.
func (p *Processor) SupportedMetrics() CapabilityMask {
	p.probeOnce.Do(func() {
		p.mask = probe(p.driver, p.handle)
		p.probed.Store(true)
		p.observer.ProbeCompleted(p.index, p.mask)
	})
	return p.mask
}

// Sample reads the metrics block and copies through the supported fields.
// A failed block read is returned as an error; a failed memory usage read is
// reported to the observer and leaves MemoryUsage at zero.
func (p *Processor) Sample() (*Sample, error) {
	mask := p.SupportedMetrics()

	block, st := p.driver.GPUMetrics(p.handle)
	if !st.OK() {
		return nil, newStatusError(p.driver, fmt.Sprintf("read metrics of device %d", p.index), st)
	}

	s := &Sample{}
	s.fill(mask, &block)

	if mask.MemoryUsage {
		used, st := p.driver.MemoryUsage(p.handle, MemoryVRAM)
		if st.OK() {
			s.MemoryUsage = used
		} else {
			p.observer.MemoryReadFailed(p.index,
				newStatusError(p.driver, fmt.Sprintf("read memory usage of device %d", p.index), st))
		}
	}

	return s, nil
}

func (p *Processor) String() string {
	return fmt.Sprintf("%s/%d", p.kind, p.index)
}
