// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// mockDriver is a mock implementation of Driver for testing
type mockDriver struct {
	mock.Mock
}

var _ Driver = (*mockDriver)(nil)

func (m *mockDriver) Name() string {
	return "mock"
}

func (m *mockDriver) StatusString(s Status) string {
	return s.String()
}

func (m *mockDriver) Version() (Version, Status) {
	args := m.Called()
	return args.Get(0).(Version), args.Get(1).(Status)
}

func (m *mockDriver) SocketHandles(handles []SocketHandle) (uint32, Status) {
	args := m.Called(handles)
	return args.Get(0).(uint32), args.Get(1).(Status)
}

func (m *mockDriver) ProcessorHandles(socket SocketHandle, handles []ProcessorHandle) (uint32, Status) {
	args := m.Called(socket, handles)
	return args.Get(0).(uint32), args.Get(1).(Status)
}

func (m *mockDriver) ProcessorType(p ProcessorHandle) (ProcessorType, Status) {
	args := m.Called(p)
	return args.Get(0).(ProcessorType), args.Get(1).(Status)
}

func (m *mockDriver) PowerInfo(p ProcessorHandle) (PowerInfo, Status) {
	args := m.Called(p)
	return args.Get(0).(PowerInfo), args.Get(1).(Status)
}

func (m *mockDriver) TemperatureMetric(p ProcessorHandle, sensor TemperatureType, metric TemperatureMetric) (int64, Status) {
	args := m.Called(p, sensor, metric)
	return args.Get(0).(int64), args.Get(1).(Status)
}

func (m *mockDriver) GPUActivity(p ProcessorHandle) (EngineUsage, Status) {
	args := m.Called(p)
	return args.Get(0).(EngineUsage), args.Get(1).(Status)
}

func (m *mockDriver) MemoryUsage(p ProcessorHandle, mem MemoryType) (uint64, Status) {
	args := m.Called(p, mem)
	return args.Get(0).(uint64), args.Get(1).(Status)
}

func (m *mockDriver) GPUMetrics(p ProcessorHandle) (GPUMetrics, Status) {
	args := m.Called(p)
	return args.Get(0).(GPUMetrics), args.Get(1).(Status)
}

// mockObserver records observer events
type mockObserver struct {
	mock.Mock
}

var _ Observer = (*mockObserver)(nil)

func (m *mockObserver) ProbeCompleted(index int, mask CapabilityMask) {
	m.Called(index, mask)
}

func (m *mockObserver) MemoryReadFailed(index int, err error) {
	m.Called(index, err)
}

func (m *mockObserver) SampleFailed(index int, err error) {
	m.Called(index, err)
}

func (m *mockObserver) SweepCompleted(present, absent int, duration time.Duration) {
	m.Called(present, absent, duration)
}

var (
	countSockets = mock.MatchedBy(func(h []SocketHandle) bool { return h == nil })
	fillSockets  = mock.MatchedBy(func(h []SocketHandle) bool { return h != nil })
	countProcs   = mock.MatchedBy(func(h []ProcessorHandle) bool { return h == nil })
	fillProcs    = mock.MatchedBy(func(h []ProcessorHandle) bool { return h != nil })
)

// expectSockets sets up a two-phase socket listing returning handles
func expectSockets(m *mockDriver, handles ...SocketHandle) {
	m.On("SocketHandles", countSockets).Return(uint32(len(handles)), StatusSuccess)
	m.On("SocketHandles", fillSockets).Run(func(args mock.Arguments) {
		copy(args.Get(0).([]SocketHandle), handles)
	}).Return(uint32(len(handles)), StatusSuccess)
}

// expectProcessors sets up a two-phase processor listing for socket
func expectProcessors(m *mockDriver, socket SocketHandle, handles ...ProcessorHandle) {
	m.On("ProcessorHandles", socket, countProcs).Return(uint32(len(handles)), StatusSuccess)
	m.On("ProcessorHandles", socket, fillProcs).Run(func(args mock.Arguments) {
		copy(args.Get(1).([]ProcessorHandle), handles)
	}).Return(uint32(len(handles)), StatusSuccess)
	for _, h := range handles {
		m.On("ProcessorType", h).Return(ProcessorAMDGPU, StatusSuccess)
	}
}

// testBlock returns a metrics block where the first engine of every partition
// reports a value and every other engine reports the sentinel
func testBlock(partitions int) GPUMetrics {
	b := GPUMetrics{
		TemperatureEdge:    45000,
		TemperatureHotspot: 55000,
		CurrentSocketPower: 10,
		AverageSocketPower: 9,
		AverageGfxActivity: 30,
		AverageUmcActivity: 20,
		AverageMmActivity:  5,
		NumPartitions:      uint16(partitions),
	}
	for x := range MaxXCP {
		for e := range MaxVCN {
			b.XCPStats[x].VCNBusy[e] = SentinelValue
		}
		for e := range MaxJPEG {
			b.XCPStats[x].JPEGBusy[e] = SentinelValue
		}
	}
	for x := range partitions {
		b.XCPStats[x].VCNBusy[0] = uint16(10 + x)
		b.XCPStats[x].JPEGBusy[0] = uint16(20 + x)
	}
	for e := range MaxVCN {
		b.VCNActivity[e] = SentinelValue
	}
	for e := range MaxJPEG {
		b.JPEGActivity[e] = SentinelValue
	}
	b.VCNActivity[0] = 7
	return b
}

// expectHealthyDevice sets up every read of h to succeed
func expectHealthyDevice(m *mockDriver, h ProcessorHandle, partitions int) {
	m.On("PowerInfo", h).Return(PowerInfo{CurrentSocketPower: 10, AverageSocketPower: 9}, StatusSuccess)
	m.On("MemoryUsage", h, MemoryVRAM).Return(uint64(4096), StatusSuccess)
	m.On("TemperatureMetric", h, TemperatureHotspot, TempMetricCurrent).Return(int64(55000), StatusSuccess)
	m.On("TemperatureMetric", h, TemperatureEdge, TempMetricCurrent).Return(int64(45000), StatusSuccess)
	m.On("GPUActivity", h).Return(EngineUsage{GfxActivity: 30, UmcActivity: 20, MmActivity: 5}, StatusSuccess)
	m.On("GPUMetrics", h).Return(testBlock(partitions), StatusSuccess)
}

func newTestProcessor(m *mockDriver, h ProcessorHandle) *Processor {
	return newProcessor(m, NopObserver{}, h, ProcessorAMDGPU, 0, 0)
}

var assertAnyError = mock.MatchedBy(func(err error) bool { return err != nil })
