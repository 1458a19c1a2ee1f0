// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

// Sample is one telemetry snapshot of a processor. A field whose family is
// not supported by the processor is left at its zero value.
type Sample struct {
	CurrentSocketPower Power
	AverageSocketPower Power

	// MemoryUsage is VRAM usage in bytes
	MemoryUsage uint64

	HotspotTemperature Temperature
	EdgeTemperature    Temperature

	GfxActivity uint16
	UmcActivity uint16
	MmActivity  uint16

	VCNActivity  [MaxVCN]uint16
	JPEGActivity [MaxJPEG]uint16

	Partitions int
	VCNBusy    [MaxXCP][MaxVCN]uint16
	JPEGBusy   [MaxXCP][MaxJPEG]uint16
}

// engineValue returns v unless the driver reported it as the sentinel. Engine
// families are supported on call success alone, so a successful block may
// still carry the sentinel for an engine the device cannot source.
func engineValue(v uint16) uint16 {
	if v == SentinelValue {
		return 0
	}
	return v
}

// fill copies every block field whose mask flag is set
func (s *Sample) fill(m CapabilityMask, block *GPUMetrics) {
	if m.CurrentSocketPower {
		s.CurrentSocketPower = block.CurrentSocketPower
	}
	if m.AverageSocketPower {
		s.AverageSocketPower = block.AverageSocketPower
	}
	if m.HotspotTemperature {
		s.HotspotTemperature = block.TemperatureHotspot
	}
	if m.EdgeTemperature {
		s.EdgeTemperature = block.TemperatureEdge
	}
	if m.GfxActivity {
		s.GfxActivity = engineValue(block.AverageGfxActivity)
	}
	if m.UmcActivity {
		s.UmcActivity = engineValue(block.AverageUmcActivity)
	}
	if m.MmActivity {
		s.MmActivity = engineValue(block.AverageMmActivity)
	}

	s.Partitions = m.Partitions
	for x := range m.Partitions {
		for e, ok := range m.VCNBusy[x] {
			if ok {
				s.VCNBusy[x][e] = block.XCPStats[x].VCNBusy[e]
			}
		}
		for e, ok := range m.JPEGBusy[x] {
			if ok {
				s.JPEGBusy[x][e] = block.XCPStats[x].JPEGBusy[e]
			}
		}
	}

	for e, ok := range m.VCNActivity {
		if ok {
			s.VCNActivity[e] = block.VCNActivity[e]
		}
	}
	for e, ok := range m.JPEGActivity {
		if ok {
			s.JPEGActivity[e] = block.JPEGActivity[e]
		}
	}
}
