// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

// Driver is the port through which every device read is issued. Every call
// returns a Status; the core never panics or retries on a non-success status.
//
// Enumeration calls follow the two-phase convention: called with a nil slice
// they report the number of available handles, called with a slice they fill
// it and return the number written.
type Driver interface {
	// Name identifies the backend, e.g. "amdgpu"
	Name() string

	// Version reports the driver library version
	Version() (Version, Status)

	// SocketHandles enumerates sockets
	SocketHandles(handles []SocketHandle) (uint32, Status)

	// ProcessorHandles enumerates processors within a socket
	ProcessorHandles(socket SocketHandle, handles []ProcessorHandle) (uint32, Status)

	ProcessorType(p ProcessorHandle) (ProcessorType, Status)
	PowerInfo(p ProcessorHandle) (PowerInfo, Status)
	TemperatureMetric(p ProcessorHandle, sensor TemperatureType, metric TemperatureMetric) (int64, Status)

	// GPUActivity reads graphics, memory-controller and multimedia utilization
	// in a single call.
	GPUActivity(p ProcessorHandle) (EngineUsage, Status)

	MemoryUsage(p ProcessorHandle, mem MemoryType) (uint64, Status)

	// GPUMetrics reads the combined metrics block
	GPUMetrics(p ProcessorHandle) (GPUMetrics, Status)

	// StatusString returns a human readable description of a status
	StatusString(s Status) string
}

// SocketHandle is an opaque socket identifier issued by a Driver
type SocketHandle uintptr

// ProcessorHandle is an opaque processor identifier issued by a Driver
type ProcessorHandle uintptr

// Version is the driver library version
type Version struct {
	Major   uint32
	Minor   uint32
	Release uint32
	Build   string
}

// PowerInfo holds socket power readings in milliwatts
type PowerInfo struct {
	CurrentSocketPower Power
	AverageSocketPower Power
	PowerLimit         Power
}

// EngineUsage holds engine utilization percentages
type EngineUsage struct {
	GfxActivity uint32
	UmcActivity uint32
	MmActivity  uint32
}

// XCPStats holds per-engine busy values for one compute partition
type XCPStats struct {
	VCNBusy  [MaxVCN]uint16
	JPEGBusy [MaxJPEG]uint16
}

// GPUMetrics is the combined metrics block. Power is in milliwatts and
// temperature in millidegrees Celsius. Fields a device does not implement
// carry SentinelValue.
type GPUMetrics struct {
	TemperatureEdge    Temperature
	TemperatureHotspot Temperature
	TemperatureMem     Temperature

	CurrentSocketPower Power
	AverageSocketPower Power

	AverageGfxActivity uint16
	AverageUmcActivity uint16
	AverageMmActivity  uint16

	VCNActivity  [MaxVCN]uint16
	JPEGActivity [MaxJPEG]uint16

	// NumPartitions is the number of valid entries in XCPStats
	NumPartitions uint16
	XCPStats      [MaxXCP]XCPStats
}

// NewGPUMetrics returns a metrics block with every field set to the sentinel
// and no partitions. Drivers fill in the fields they implement.
func NewGPUMetrics() GPUMetrics {
	m := GPUMetrics{
		TemperatureEdge:    SentinelValue,
		TemperatureHotspot: SentinelValue,
		TemperatureMem:     SentinelValue,
		CurrentSocketPower: SentinelValue,
		AverageSocketPower: SentinelValue,
		AverageGfxActivity: SentinelValue,
		AverageUmcActivity: SentinelValue,
		AverageMmActivity:  SentinelValue,
	}
	for e := range m.VCNActivity {
		m.VCNActivity[e] = SentinelValue
	}
	for e := range m.JPEGActivity {
		m.JPEGActivity[e] = SentinelValue
	}
	for x := range m.XCPStats {
		xcp := &m.XCPStats[x]
		for e := range xcp.VCNBusy {
			xcp.VCNBusy[e] = SentinelValue
		}
		for e := range xcp.JPEGBusy {
			xcp.JPEGBusy[e] = SentinelValue
		}
	}
	return m
}

// ProcessorType is the coarse kind of a processor
type ProcessorType uint32

const (
	ProcessorUnknown ProcessorType = iota
	ProcessorAMDGPU
	ProcessorAMDCPU
	ProcessorNonAMDGPU
	ProcessorNonAMDCPU
	ProcessorAMDCPUCore
	ProcessorAMDAPU
)

func (t ProcessorType) String() string {
	switch t {
	case ProcessorAMDGPU:
		return "amd-gpu"
	case ProcessorAMDCPU:
		return "amd-cpu"
	case ProcessorNonAMDGPU:
		return "non-amd-gpu"
	case ProcessorNonAMDCPU:
		return "non-amd-cpu"
	case ProcessorAMDCPUCore:
		return "amd-cpu-core"
	case ProcessorAMDAPU:
		return "amd-apu"
	default:
		return "unknown"
	}
}

// TemperatureType is a sensor location
type TemperatureType uint32

const (
	TemperatureEdge TemperatureType = iota
	TemperatureHotspot
	TemperatureVRAM
)

// TemperatureMetric selects which reading of a sensor is returned
type TemperatureMetric uint32

const (
	TempMetricCurrent TemperatureMetric = iota
	TempMetricCritical
	TempMetricEmergency
)

// MemoryType is a memory pool kind
type MemoryType uint32

const (
	MemoryVRAM MemoryType = iota
	MemoryVisVRAM
	MemoryGTT
)

func (m MemoryType) String() string {
	switch m {
	case MemoryVRAM:
		return "vram"
	case MemoryVisVRAM:
		return "vis-vram"
	case MemoryGTT:
		return "gtt"
	default:
		return "unknown"
	}
}
