// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

const driverName = "nvidia"

// Driver implements smi.Driver for NVIDIA GPUs through NVML. Every device is
// placed on a single socket.
type Driver struct {
	logger *slog.Logger
	lib    nvmlLib

	mu          sync.RWMutex
	devices     []nvmlDeviceHandle
	initialized bool
}

var _ smi.Driver = (*Driver)(nil)

// NewDriver creates an NVML driver; NVML is loaded by Init
func NewDriver(logger *slog.Logger) *Driver {
	return newDriverWithLib(logger, newRealNvmlLib())
}

func newDriverWithLib(logger *slog.Logger, lib nvmlLib) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		logger: logger.With("driver", driverName),
		lib:    lib,
	}
}

func (d *Driver) Name() string {
	return driverName
}

// Init loads NVML and resolves every device handle
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	if ret := d.lib.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("failed to initialize NVML: %s", d.lib.ErrorString(ret))
	}

	count, ret := d.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		d.lib.Shutdown()
		return fmt.Errorf("failed to get device count: %s", d.lib.ErrorString(ret))
	}

	devices := make([]nvmlDeviceHandle, 0, count)
	for i := range count {
		h, ret := d.lib.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			d.lib.Shutdown()
			return fmt.Errorf("failed to get device %d: %s", i, d.lib.ErrorString(ret))
		}
		name, _ := h.GetName()
		d.logger.Info("Discovered NVIDIA GPU", "index", i, "name", name)
		devices = append(devices, h)
	}

	d.devices = devices
	d.initialized = true
	d.logger.Info("NVML driver initialized", "devices", len(devices))
	return nil
}

// Shutdown releases NVML
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	d.initialized = false
	d.devices = nil
	if ret := d.lib.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("failed to shutdown NVML: %s", d.lib.ErrorString(ret))
	}
	return nil
}

func (d *Driver) device(p smi.ProcessorHandle) (nvmlDeviceHandle, smi.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, smi.StatusNotInit
	}
	i := int(p) - 1
	if i < 0 || i >= len(d.devices) {
		return nil, smi.StatusInval
	}
	return d.devices[i], smi.StatusSuccess
}

// statusOf maps NVML return codes to driver statuses
func statusOf(ret nvml.Return) smi.Status {
	switch ret {
	case nvml.SUCCESS:
		return smi.StatusSuccess
	case nvml.ERROR_UNINITIALIZED:
		return smi.StatusNotInit
	case nvml.ERROR_INVALID_ARGUMENT:
		return smi.StatusInval
	case nvml.ERROR_NOT_SUPPORTED:
		return smi.StatusNotSupported
	case nvml.ERROR_NO_PERMISSION:
		return smi.StatusNoPerm
	case nvml.ERROR_NOT_FOUND:
		return smi.StatusNotFound
	case nvml.ERROR_INSUFFICIENT_SIZE:
		return smi.StatusInsufficientSize
	case nvml.ERROR_TIMEOUT:
		return smi.StatusTimeout
	case nvml.ERROR_GPU_IS_LOST:
		return smi.StatusIO
	default:
		return smi.StatusUnknownError
	}
}

// Version parses the NVIDIA driver version, e.g. "550.54.15"
func (d *Driver) Version() (smi.Version, smi.Status) {
	s, ret := d.lib.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		return smi.Version{}, statusOf(ret)
	}

	v := smi.Version{Build: s}
	nums := []*uint32{&v.Major, &v.Minor, &v.Release}
	for i, f := range strings.Split(s, ".") {
		if i >= len(nums) {
			break
		}
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			break
		}
		*nums[i] = uint32(n)
	}
	return v, smi.StatusSuccess
}

func (d *Driver) SocketHandles(handles []smi.SocketHandle) (uint32, smi.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return 0, smi.StatusNotInit
	}
	if len(d.devices) == 0 {
		return 0, smi.StatusSuccess
	}
	if handles != nil {
		handles[0] = 1
	}
	return 1, smi.StatusSuccess
}

func (d *Driver) ProcessorHandles(socket smi.SocketHandle, handles []smi.ProcessorHandle) (uint32, smi.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return 0, smi.StatusNotInit
	}
	if socket != 1 {
		return 0, smi.StatusInval
	}
	if handles == nil {
		return uint32(len(d.devices)), smi.StatusSuccess
	}
	n := min(len(handles), len(d.devices))
	for i := range n {
		handles[i] = smi.ProcessorHandle(i + 1)
	}
	return uint32(n), smi.StatusSuccess
}

func (d *Driver) ProcessorType(p smi.ProcessorHandle) (smi.ProcessorType, smi.Status) {
	if _, st := d.device(p); !st.OK() {
		return smi.ProcessorUnknown, st
	}
	return smi.ProcessorNonAMDGPU, smi.StatusSuccess
}

// PowerInfo reports the NVML power usage as the average; NVML has no
// separate instantaneous reading so the current power is the sentinel.
func (d *Driver) PowerInfo(p smi.ProcessorHandle) (smi.PowerInfo, smi.Status) {
	dev, st := d.device(p)
	if !st.OK() {
		return smi.PowerInfo{}, st
	}

	mw, ret := dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return smi.PowerInfo{}, statusOf(ret)
	}

	info := smi.PowerInfo{
		CurrentSocketPower: smi.SentinelValue,
		AverageSocketPower: smi.MilliWatts(uint64(mw)),
		PowerLimit:         smi.SentinelValue,
	}
	if limit, ret := dev.GetEnforcedPowerLimit(); ret == nvml.SUCCESS {
		info.PowerLimit = smi.MilliWatts(uint64(limit))
	}
	return info, smi.StatusSuccess
}

// TemperatureMetric reports the GPU die sensor as the edge temperature
func (d *Driver) TemperatureMetric(p smi.ProcessorHandle, sensor smi.TemperatureType, metric smi.TemperatureMetric) (int64, smi.Status) {
	dev, st := d.device(p)
	if !st.OK() {
		return 0, st
	}
	if sensor != smi.TemperatureEdge || metric != smi.TempMetricCurrent {
		return 0, smi.StatusNotSupported
	}

	c, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, statusOf(ret)
	}
	return int64(smi.Temperature(c) * smi.Degree), smi.StatusSuccess
}

func (d *Driver) GPUActivity(p smi.ProcessorHandle) (smi.EngineUsage, smi.Status) {
	dev, st := d.device(p)
	if !st.OK() {
		return smi.EngineUsage{}, st
	}

	util, ret := dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return smi.EngineUsage{}, statusOf(ret)
	}
	usage := smi.EngineUsage{
		GfxActivity: util.Gpu,
		UmcActivity: util.Memory,
		MmActivity:  smi.SentinelValue,
	}
	if enc, _, ret := dev.GetEncoderUtilization(); ret == nvml.SUCCESS {
		usage.MmActivity = enc
	}
	return usage, smi.StatusSuccess
}

func (d *Driver) MemoryUsage(p smi.ProcessorHandle, mem smi.MemoryType) (uint64, smi.Status) {
	dev, st := d.device(p)
	if !st.OK() {
		return 0, st
	}
	if mem != smi.MemoryVRAM {
		return 0, smi.StatusNotSupported
	}

	info, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0, statusOf(ret)
	}
	return info.Used, smi.StatusSuccess
}

// GPUMetrics composes the metrics block. The device is one partition whose
// first encode and decode engines carry the NVENC and NVDEC utilization.
func (d *Driver) GPUMetrics(p smi.ProcessorHandle) (smi.GPUMetrics, smi.Status) {
	dev, st := d.device(p)
	if !st.OK() {
		return smi.GPUMetrics{}, st
	}

	m := smi.NewGPUMetrics()
	m.NumPartitions = 1

	// power is the one mandatory reading
	info, st := d.PowerInfo(p)
	if !st.OK() {
		return smi.GPUMetrics{}, st
	}
	m.CurrentSocketPower = info.CurrentSocketPower
	m.AverageSocketPower = info.AverageSocketPower

	if t, st := d.TemperatureMetric(p, smi.TemperatureEdge, smi.TempMetricCurrent); st.OK() {
		m.TemperatureEdge = smi.Temperature(t)
	}

	if usage, st := d.GPUActivity(p); st.OK() {
		m.AverageGfxActivity = uint16(usage.GfxActivity)
		m.AverageUmcActivity = uint16(usage.UmcActivity)
		m.AverageMmActivity = uint16(usage.MmActivity)
	}

	if enc, _, ret := dev.GetEncoderUtilization(); ret == nvml.SUCCESS {
		m.XCPStats[0].VCNBusy[0] = uint16(enc)
		m.VCNActivity[0] = uint16(enc)
	}
	if dec, _, ret := dev.GetDecoderUtilization(); ret == nvml.SUCCESS {
		m.XCPStats[0].JPEGBusy[0] = uint16(dec)
		m.JPEGActivity[0] = uint16(dec)
	}

	return m, smi.StatusSuccess
}

func (d *Driver) StatusString(s smi.Status) string {
	return fmt.Sprintf("%s: %s", driverName, s)
}
