// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

func newHealthyHandle() *mockDeviceHandle {
	h := new(mockDeviceHandle)
	h.On("GetName").Return("NVIDIA A100", nvml.SUCCESS)
	h.On("GetPowerUsage").Return(uint32(215000), nvml.SUCCESS)
	h.On("GetEnforcedPowerLimit").Return(uint32(400000), nvml.SUCCESS)
	h.On("GetTemperature", nvml.TEMPERATURE_GPU).Return(uint32(52), nvml.SUCCESS)
	h.On("GetUtilizationRates").Return(nvml.Utilization{Gpu: 80, Memory: 35}, nvml.SUCCESS)
	h.On("GetEncoderUtilization").Return(uint32(12), uint32(1000), nvml.SUCCESS)
	h.On("GetDecoderUtilization").Return(uint32(4), uint32(1000), nvml.SUCCESS)
	h.On("GetMemoryInfo").Return(nvml.Memory{Total: 80 << 30, Used: 3 << 30}, nvml.SUCCESS)
	return h
}

func initDriver(t *testing.T, handles ...nvmlDeviceHandle) (*Driver, *mockNvmlLib) {
	t.Helper()
	lib := new(mockNvmlLib)
	lib.On("Init").Return(nvml.SUCCESS)
	lib.On("Shutdown").Return(nvml.SUCCESS)
	lib.On("DeviceGetCount").Return(len(handles), nvml.SUCCESS)
	for i, h := range handles {
		lib.On("DeviceGetHandleByIndex", i).Return(h, nvml.SUCCESS)
	}

	d := newDriverWithLib(nil, lib)
	require.NoError(t, d.Init())
	return d, lib
}

func TestDriver_Init(t *testing.T) {
	t.Run("init failure", func(t *testing.T) {
		lib := new(mockNvmlLib)
		lib.On("Init").Return(nvml.ERROR_LIBRARY_NOT_FOUND)
		lib.On("ErrorString", nvml.ERROR_LIBRARY_NOT_FOUND).Return("library not found")

		err := newDriverWithLib(nil, lib).Init()
		assert.ErrorContains(t, err, "library not found")
	})

	t.Run("device handle failure shuts down", func(t *testing.T) {
		lib := new(mockNvmlLib)
		lib.On("Init").Return(nvml.SUCCESS)
		lib.On("Shutdown").Return(nvml.SUCCESS)
		lib.On("DeviceGetCount").Return(1, nvml.SUCCESS)
		lib.On("DeviceGetHandleByIndex", 0).Return(nil, nvml.ERROR_GPU_IS_LOST)
		lib.On("ErrorString", nvml.ERROR_GPU_IS_LOST).Return("gpu is lost")

		err := newDriverWithLib(nil, lib).Init()
		assert.ErrorContains(t, err, "failed to get device 0")
		lib.AssertCalled(t, "Shutdown")
	})

	t.Run("idempotent", func(t *testing.T) {
		d, lib := initDriver(t, newHealthyHandle())
		require.NoError(t, d.Init())
		lib.AssertNumberOfCalls(t, "Init", 1)

		require.NoError(t, d.Shutdown())
		require.NoError(t, d.Shutdown())
		lib.AssertNumberOfCalls(t, "Shutdown", 1)
	})
}

func TestDriver_NotInitialized(t *testing.T) {
	d := newDriverWithLib(nil, new(mockNvmlLib))

	_, st := d.SocketHandles(nil)
	assert.Equal(t, smi.StatusNotInit, st)
	_, st = d.PowerInfo(1)
	assert.Equal(t, smi.StatusNotInit, st)

	_, err := smi.NewService(d).Enumerate()
	assert.ErrorIs(t, err, smi.ErrEnumeration)
}

func TestDriver_CapabilitiesAndSample(t *testing.T) {
	d, _ := initDriver(t, newHealthyHandle(), newHealthyHandle())

	procs, err := smi.NewService(d).Enumerate()
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, smi.ProcessorNonAMDGPU, procs[1].Type())

	mask := procs[0].SupportedMetrics()
	assert.False(t, mask.CurrentSocketPower, "no instantaneous power in NVML")
	assert.True(t, mask.AverageSocketPower)
	assert.True(t, mask.EdgeTemperature)
	assert.False(t, mask.HotspotTemperature)
	assert.True(t, mask.MemoryUsage)
	assert.True(t, mask.GfxActivity)
	assert.Equal(t, 1, mask.Partitions)
	assert.True(t, mask.VCNBusy[0][0])
	assert.False(t, mask.VCNBusy[0][1])
	assert.True(t, mask.JPEGXCPStats)

	s, err := procs[0].Sample()
	require.NoError(t, err)
	assert.Equal(t, smi.Power(215000), s.AverageSocketPower)
	assert.Zero(t, s.CurrentSocketPower)
	assert.Equal(t, 52*smi.Degree, s.EdgeTemperature)
	assert.Equal(t, uint16(80), s.GfxActivity)
	assert.Equal(t, uint16(12), s.MmActivity)
	assert.Equal(t, uint16(12), s.VCNBusy[0][0])
	assert.Equal(t, uint16(4), s.JPEGBusy[0][0])
	assert.Equal(t, uint64(3<<30), s.MemoryUsage)
}

func TestDriver_PowerAtSentinelStaysSupported(t *testing.T) {
	h := new(mockDeviceHandle)
	h.On("GetName").Return("NVIDIA L4", nvml.SUCCESS)
	h.On("GetPowerUsage").Return(uint32(smi.SentinelValue), nvml.SUCCESS).Once()
	h.On("GetPowerUsage").Return(uint32(215000), nvml.SUCCESS)
	h.On("GetEnforcedPowerLimit").Return(uint32(72000), nvml.SUCCESS)
	h.On("GetTemperature", nvml.TEMPERATURE_GPU).Return(uint32(48), nvml.SUCCESS)
	h.On("GetUtilizationRates").Return(nvml.Utilization{Gpu: 10, Memory: 5}, nvml.SUCCESS)
	h.On("GetEncoderUtilization").Return(uint32(0), uint32(1000), nvml.SUCCESS)
	h.On("GetDecoderUtilization").Return(uint32(0), uint32(1000), nvml.SUCCESS)
	h.On("GetMemoryInfo").Return(nvml.Memory{Total: 24 << 30, Used: 1 << 30}, nvml.SUCCESS)
	d, _ := initDriver(t, h)

	procs, err := smi.NewService(d).Enumerate()
	require.NoError(t, err)
	require.Len(t, procs, 1)

	// the first read lands on 65.535 W
	assert.True(t, procs[0].SupportedMetrics().AverageSocketPower)

	s, err := procs[0].Sample()
	require.NoError(t, err)
	assert.Equal(t, 215*smi.Watt, s.AverageSocketPower)
}

func TestDriver_PowerFailureFailsSample(t *testing.T) {
	h := new(mockDeviceHandle)
	h.On("GetName").Return("NVIDIA T4", nvml.SUCCESS)
	h.On("GetPowerUsage").Return(uint32(0), nvml.ERROR_NOT_SUPPORTED)
	h.On("GetTemperature", mock.Anything).Return(uint32(0), nvml.ERROR_NOT_SUPPORTED)
	h.On("GetUtilizationRates").Return(nvml.Utilization{}, nvml.ERROR_NOT_SUPPORTED)
	h.On("GetMemoryInfo").Return(nvml.Memory{}, nvml.ERROR_NO_PERMISSION)
	d, _ := initDriver(t, h)

	_, st := d.GPUMetrics(1)
	assert.Equal(t, smi.StatusNotSupported, st)

	_, st = d.MemoryUsage(1, smi.MemoryVRAM)
	assert.Equal(t, smi.StatusNoPerm, st)
	_, st = d.MemoryUsage(1, smi.MemoryGTT)
	assert.Equal(t, smi.StatusNotSupported, st)
	_, st = d.TemperatureMetric(1, smi.TemperatureHotspot, smi.TempMetricCurrent)
	assert.Equal(t, smi.StatusNotSupported, st)
	_, st = d.ProcessorType(3)
	assert.Equal(t, smi.StatusInval, st)
}

func TestDriver_Version(t *testing.T) {
	d, lib := initDriver(t)
	lib.On("SystemGetDriverVersion").Return("550.54.15", nvml.SUCCESS)

	v, st := d.Version()
	require.Equal(t, smi.StatusSuccess, st)
	assert.Equal(t, smi.Version{Major: 550, Minor: 54, Release: 15, Build: "550.54.15"}, v)
}

func TestDriver_NoDevices(t *testing.T) {
	d, _ := initDriver(t)

	procs, err := smi.NewService(d).Enumerate()
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestStatusOf(t *testing.T) {
	tt := map[nvml.Return]smi.Status{
		nvml.SUCCESS:                smi.StatusSuccess,
		nvml.ERROR_UNINITIALIZED:    smi.StatusNotInit,
		nvml.ERROR_NOT_SUPPORTED:    smi.StatusNotSupported,
		nvml.ERROR_NO_PERMISSION:    smi.StatusNoPerm,
		nvml.ERROR_TIMEOUT:          smi.StatusTimeout,
		nvml.ERROR_UNKNOWN:          smi.StatusUnknownError,
		nvml.ERROR_INVALID_ARGUMENT: smi.StatusInval,
	}
	for ret, want := range tt {
		assert.Equal(t, want, statusOf(ret), "ret %d", ret)
	}
}
