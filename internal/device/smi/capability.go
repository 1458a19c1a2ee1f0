// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"strconv"
	"strings"
)

// Metric family names, in mask order
const (
	FamilyCurrentSocketPower = "current_socket_power"
	FamilyAverageSocketPower = "average_socket_power"
	FamilyMemoryUsage        = "memory_usage"
	FamilyHotspotTemperature = "hotspot_temperature"
	FamilyEdgeTemperature    = "edge_temperature"
	FamilyGfxActivity        = "gfx_activity"
	FamilyUmcActivity        = "umc_activity"
	FamilyMmActivity         = "mm_activity"
	FamilyVCNXCPStats        = "vcn_xcp_stats"
	FamilyJPEGXCPStats       = "jpeg_xcp_stats"
	FamilyVCNActivity        = "vcn_activity"
	FamilyJPEGActivity       = "jpeg_activity"
)

// Families lists every metric family name in mask order
var Families = []string{
	FamilyCurrentSocketPower,
	FamilyAverageSocketPower,
	FamilyMemoryUsage,
	FamilyHotspotTemperature,
	FamilyEdgeTemperature,
	FamilyGfxActivity,
	FamilyUmcActivity,
	FamilyMmActivity,
	FamilyVCNXCPStats,
	FamilyJPEGXCPStats,
	FamilyVCNActivity,
	FamilyJPEGActivity,
}

// IsFamily reports whether name is a known metric family
func IsFamily(name string) bool {
	for _, f := range Families {
		if f == name {
			return true
		}
	}
	return false
}

// CapabilityMask records which metrics a processor reports reliably
type CapabilityMask struct {
	CurrentSocketPower bool
	AverageSocketPower bool
	MemoryUsage        bool
	HotspotTemperature bool
	EdgeTemperature    bool
	GfxActivity        bool
	UmcActivity        bool
	MmActivity         bool

	// VCNXCPStats is set when any encode engine of any partition is supported
	VCNXCPStats bool
	// JPEGXCPStats is set when any decode engine of any partition is supported
	JPEGXCPStats bool

	// Partitions is the number of compute partitions the device exposes.
	// Entries of VCNBusy and JPEGBusy at or beyond it are always false.
	Partitions int
	VCNBusy    [MaxXCP][MaxVCN]bool
	JPEGBusy   [MaxXCP][MaxJPEG]bool

	VCNActivity  [MaxVCN]bool
	JPEGActivity [MaxJPEG]bool
}

// Has reports the flag of the named family. Unknown names report false.
func (m CapabilityMask) Has(family string) bool {
	switch family {
	case FamilyCurrentSocketPower:
		return m.CurrentSocketPower
	case FamilyAverageSocketPower:
		return m.AverageSocketPower
	case FamilyMemoryUsage:
		return m.MemoryUsage
	case FamilyHotspotTemperature:
		return m.HotspotTemperature
	case FamilyEdgeTemperature:
		return m.EdgeTemperature
	case FamilyGfxActivity:
		return m.GfxActivity
	case FamilyUmcActivity:
		return m.UmcActivity
	case FamilyMmActivity:
		return m.MmActivity
	case FamilyVCNXCPStats:
		return m.VCNXCPStats
	case FamilyJPEGXCPStats:
		return m.JPEGXCPStats
	case FamilyVCNActivity:
		return anyTrue(m.VCNActivity[:])
	case FamilyJPEGActivity:
		return anyTrue(m.JPEGActivity[:])
	}
	return false
}

// Supported returns the names of supported families in mask order
func (m CapabilityMask) Supported() []string {
	names := make([]string, 0, len(Families))
	for _, f := range Families {
		if m.Has(f) {
			names = append(names, f)
		}
	}
	return names
}

// String renders the family flags in mask order, e.g. "[true, false, ...]"
func (m CapabilityMask) String() string {
	flags := make([]string, len(Families))
	for i, f := range Families {
		flags[i] = strconv.FormatBool(m.Has(f))
	}
	return "[" + strings.Join(flags, ", ") + "]"
}

func anyTrue(v []bool) bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

// probe issues one read of every metric family and records which ones
// succeeded with a value other than the sentinel. It never fails; the worst
// case is an all-false mask.
//
// Per-engine entries are true iff the combined block read succeeded and the
// entry is not the sentinel.
func probe(d Driver, h ProcessorHandle) CapabilityMask {
	var m CapabilityMask

	if info, st := d.PowerInfo(h); st.OK() {
		m.CurrentSocketPower = !info.CurrentSocketPower.IsSentinel()
		m.AverageSocketPower = !info.AverageSocketPower.IsSentinel()
	}

	if _, st := d.MemoryUsage(h, MemoryVRAM); st.OK() {
		m.MemoryUsage = true
	}

	if t, st := d.TemperatureMetric(h, TemperatureHotspot, TempMetricCurrent); st.OK() {
		m.HotspotTemperature = !Temperature(t).IsSentinel()
	}
	if t, st := d.TemperatureMetric(h, TemperatureEdge, TempMetricCurrent); st.OK() {
		m.EdgeTemperature = !Temperature(t).IsSentinel()
	}

	// one combined read decides all three engines
	if _, st := d.GPUActivity(h); st.OK() {
		m.GfxActivity = true
		m.UmcActivity = true
		m.MmActivity = true
	}

	block, st := d.GPUMetrics(h)
	if !st.OK() {
		return m
	}

	m.Partitions = min(int(block.NumPartitions), MaxXCP)
	for x := range m.Partitions {
		xcp := &block.XCPStats[x]
		for e, v := range xcp.VCNBusy {
			ok := v != SentinelValue
			m.VCNBusy[x][e] = ok
			m.VCNXCPStats = m.VCNXCPStats || ok
		}
		for e, v := range xcp.JPEGBusy {
			ok := v != SentinelValue
			m.JPEGBusy[x][e] = ok
			m.JPEGXCPStats = m.JPEGXCPStats || ok
		}
	}

	for e, v := range block.VCNActivity {
		m.VCNActivity[e] = v != SentinelValue
	}
	for e, v := range block.JPEGActivity {
		m.JPEGActivity[e] = v != SentinelValue
	}

	return m
}
