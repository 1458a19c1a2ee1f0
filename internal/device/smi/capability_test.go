// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProbe_AllSupported(t *testing.T) {
	m := new(mockDriver)
	expectHealthyDevice(m, 1, 2)

	mask := probe(m, 1)

	assert.True(t, mask.CurrentSocketPower)
	assert.True(t, mask.AverageSocketPower)
	assert.True(t, mask.MemoryUsage)
	assert.True(t, mask.HotspotTemperature)
	assert.True(t, mask.EdgeTemperature)
	assert.True(t, mask.GfxActivity)
	assert.True(t, mask.UmcActivity)
	assert.True(t, mask.MmActivity)
	assert.True(t, mask.VCNXCPStats)
	assert.True(t, mask.JPEGXCPStats)
	assert.Equal(t, 2, mask.Partitions)

	for x := range 2 {
		assert.True(t, mask.VCNBusy[x][0], "partition %d vcn 0", x)
		assert.False(t, mask.VCNBusy[x][1], "partition %d vcn 1", x)
		assert.True(t, mask.JPEGBusy[x][0], "partition %d jpeg 0", x)
		assert.False(t, mask.JPEGBusy[x][1], "partition %d jpeg 1", x)
	}
	assert.False(t, mask.VCNBusy[2][0], "partitions beyond the device count stay unsupported")

	assert.True(t, mask.VCNActivity[0])
	assert.False(t, mask.VCNActivity[1])
	assert.False(t, mask.Has(FamilyJPEGActivity))
	m.AssertExpectations(t)
}

func TestProbe_FailedCalls(t *testing.T) {
	m := new(mockDriver)
	m.On("PowerInfo", ProcessorHandle(1)).Return(PowerInfo{}, StatusNotSupported)
	m.On("MemoryUsage", ProcessorHandle(1), MemoryVRAM).Return(uint64(0), StatusFileError)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureHotspot, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureEdge, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("GPUActivity", ProcessorHandle(1)).Return(EngineUsage{}, StatusDRMError)
	m.On("GPUMetrics", ProcessorHandle(1)).Return(GPUMetrics{}, StatusNotSupported)

	mask := probe(m, 1)

	assert.Equal(t, CapabilityMask{}, mask, "every failed family is unsupported")
	assert.Empty(t, mask.Supported())
}

func TestProbe_Sentinels(t *testing.T) {
	tt := []struct {
		name  string
		power PowerInfo
		edge  int64
		hot   int64
		check func(t *testing.T, m CapabilityMask)
	}{{
		name:  "power reported",
		power: PowerInfo{CurrentSocketPower: 10, AverageSocketPower: 9},
		edge:  40000, hot: 50000,
		check: func(t *testing.T, m CapabilityMask) {
			assert.True(t, m.CurrentSocketPower)
			assert.True(t, m.AverageSocketPower)
		},
	}, {
		name:  "current power sentinel",
		power: PowerInfo{CurrentSocketPower: SentinelValue, AverageSocketPower: 9},
		edge:  40000, hot: 50000,
		check: func(t *testing.T, m CapabilityMask) {
			assert.False(t, m.CurrentSocketPower)
			assert.True(t, m.AverageSocketPower)
		},
	}, {
		name:  "edge temperature sentinel",
		power: PowerInfo{CurrentSocketPower: 10, AverageSocketPower: 9},
		edge:  SentinelValue, hot: 50000,
		check: func(t *testing.T, m CapabilityMask) {
			assert.False(t, m.EdgeTemperature)
			assert.True(t, m.HotspotTemperature)
		},
	}, {
		name:  "negative temperature is valid",
		power: PowerInfo{CurrentSocketPower: 10, AverageSocketPower: 9},
		edge:  -500, hot: SentinelValue,
		check: func(t *testing.T, m CapabilityMask) {
			assert.True(t, m.EdgeTemperature)
			assert.False(t, m.HotspotTemperature)
		},
	}}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			m := new(mockDriver)
			m.On("PowerInfo", ProcessorHandle(1)).Return(tc.power, StatusSuccess)
			m.On("MemoryUsage", ProcessorHandle(1), MemoryVRAM).Return(uint64(1), StatusSuccess)
			m.On("TemperatureMetric", ProcessorHandle(1), TemperatureHotspot, TempMetricCurrent).Return(tc.hot, StatusSuccess)
			m.On("TemperatureMetric", ProcessorHandle(1), TemperatureEdge, TempMetricCurrent).Return(tc.edge, StatusSuccess)
			m.On("GPUActivity", ProcessorHandle(1)).Return(EngineUsage{}, StatusSuccess)
			m.On("GPUMetrics", ProcessorHandle(1)).Return(testBlock(1), StatusSuccess)

			tc.check(t, probe(m, 1))
		})
	}
}

func TestProbe_ZeroPartitions(t *testing.T) {
	m := new(mockDriver)
	expectHealthyDevice(m, 1, 0)

	mask := probe(m, 1)

	assert.Equal(t, 0, mask.Partitions)
	assert.False(t, mask.VCNXCPStats)
	assert.False(t, mask.JPEGXCPStats)
	assert.Equal(t, [MaxXCP][MaxVCN]bool{}, mask.VCNBusy)
	assert.True(t, mask.GfxActivity, "engine flags do not depend on partitions")
}

func TestProbe_PartitionCountClamped(t *testing.T) {
	m := new(mockDriver)
	block := testBlock(MaxXCP)
	block.NumPartitions = MaxXCP + 4
	m.On("PowerInfo", ProcessorHandle(1)).Return(PowerInfo{}, StatusNotSupported)
	m.On("MemoryUsage", ProcessorHandle(1), MemoryVRAM).Return(uint64(0), StatusNotSupported)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureHotspot, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureEdge, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("GPUActivity", ProcessorHandle(1)).Return(EngineUsage{}, StatusNotSupported)
	m.On("GPUMetrics", ProcessorHandle(1)).Return(block, StatusSuccess)

	mask := probe(m, 1)

	assert.Equal(t, MaxXCP, mask.Partitions)
	assert.True(t, mask.VCNBusy[MaxXCP-1][0])
}

func TestProbe_OnlySentinelEngines(t *testing.T) {
	m := new(mockDriver)
	block := testBlock(2)
	for x := range 2 {
		block.XCPStats[x].VCNBusy[0] = SentinelValue
	}
	m.On("PowerInfo", ProcessorHandle(1)).Return(PowerInfo{}, StatusNotSupported)
	m.On("MemoryUsage", ProcessorHandle(1), MemoryVRAM).Return(uint64(0), StatusNotSupported)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureHotspot, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("TemperatureMetric", ProcessorHandle(1), TemperatureEdge, TempMetricCurrent).Return(int64(0), StatusNotSupported)
	m.On("GPUActivity", ProcessorHandle(1)).Return(EngineUsage{}, StatusNotSupported)
	m.On("GPUMetrics", ProcessorHandle(1)).Return(block, StatusSuccess)

	mask := probe(m, 1)

	assert.False(t, mask.VCNXCPStats)
	assert.True(t, mask.JPEGXCPStats)
}

func TestProcessor_ProbeOnce(t *testing.T) {
	m := new(mockDriver)
	expectHealthyDevice(m, 1, 1)
	p := newTestProcessor(m, 1)

	assert.False(t, p.Probed())
	first := p.SupportedMetrics()
	assert.True(t, p.Probed())
	second := p.SupportedMetrics()

	assert.Equal(t, first, second)
	m.AssertNumberOfCalls(t, "PowerInfo", 1)
	m.AssertNumberOfCalls(t, "GPUActivity", 1)
	m.AssertNumberOfCalls(t, "GPUMetrics", 1)
	m.AssertNumberOfCalls(t, "TemperatureMetric", 2)
	m.AssertNumberOfCalls(t, "MemoryUsage", 1)
}

func TestProcessor_ConcurrentFirstProbe(t *testing.T) {
	m := new(mockDriver)
	expectHealthyDevice(m, 1, 1)
	obs := new(mockObserver)
	obs.On("ProbeCompleted", 0, mock.AnythingOfType("smi.CapabilityMask")).Return()
	p := newProcessor(m, obs, 1, ProcessorAMDGPU, 0, 0)

	const n = 32
	masks := make([]CapabilityMask, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			masks[i] = p.SupportedMetrics()
		}()
	}
	wg.Wait()

	for i := range n {
		require.Equal(t, masks[0], masks[i])
	}
	m.AssertNumberOfCalls(t, "PowerInfo", 1)
	m.AssertNumberOfCalls(t, "GPUMetrics", 1)
	obs.AssertNumberOfCalls(t, "ProbeCompleted", 1)
}

func TestCapabilityMask_Report(t *testing.T) {
	m := CapabilityMask{
		CurrentSocketPower: true,
		EdgeTemperature:    true,
		JPEGXCPStats:       true,
	}
	m.VCNActivity[2] = true

	assert.Equal(t, []string{
		FamilyCurrentSocketPower,
		FamilyEdgeTemperature,
		FamilyJPEGXCPStats,
		FamilyVCNActivity,
	}, m.Supported())
	assert.Equal(t,
		"[true, false, false, false, true, false, false, false, false, true, true, false]",
		m.String())
	assert.False(t, m.Has("no_such_family"))
}

func TestIsFamily(t *testing.T) {
	for _, f := range Families {
		assert.True(t, IsFamily(f), f)
	}
	assert.False(t, IsFamily("gfx"))
}
