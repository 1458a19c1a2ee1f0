// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLib abstracts the NVML library functions for testability.
type nvmlLib interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	SystemGetDriverVersion() (string, nvml.Return)
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return)
	ErrorString(ret nvml.Return) string
}

// nvmlDeviceHandle abstracts the telemetry reads of an NVML device handle.
type nvmlDeviceHandle interface {
	GetName() (string, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetEnforcedPowerLimit() (uint32, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetEncoderUtilization() (uint32, uint32, nvml.Return)
	GetDecoderUtilization() (uint32, uint32, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
}

// realNvmlLib is the production implementation that calls the actual NVML library.
type realNvmlLib struct{}

// realDeviceHandle wraps an actual nvml.Device
type realDeviceHandle struct {
	device nvml.Device
}

func newRealNvmlLib() nvmlLib {
	return &realNvmlLib{}
}

func (r *realNvmlLib) Init() nvml.Return {
	return nvml.Init()
}

func (r *realNvmlLib) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (r *realNvmlLib) SystemGetDriverVersion() (string, nvml.Return) {
	return nvml.SystemGetDriverVersion()
}

func (r *realNvmlLib) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (r *realNvmlLib) DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return) {
	handle, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return &realDeviceHandle{device: handle}, ret
}

func (r *realNvmlLib) ErrorString(ret nvml.Return) string {
	return nvml.ErrorString(ret)
}

func (h *realDeviceHandle) GetName() (string, nvml.Return) {
	return h.device.GetName()
}

func (h *realDeviceHandle) GetPowerUsage() (uint32, nvml.Return) {
	return h.device.GetPowerUsage()
}

func (h *realDeviceHandle) GetEnforcedPowerLimit() (uint32, nvml.Return) {
	return h.device.GetEnforcedPowerLimit()
}

func (h *realDeviceHandle) GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return) {
	return h.device.GetTemperature(sensor)
}

func (h *realDeviceHandle) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return h.device.GetUtilizationRates()
}

func (h *realDeviceHandle) GetEncoderUtilization() (uint32, uint32, nvml.Return) {
	return h.device.GetEncoderUtilization()
}

func (h *realDeviceHandle) GetDecoderUtilization() (uint32, uint32, nvml.Return) {
	return h.device.GetDecoderUtilization()
}

func (h *realDeviceHandle) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return h.device.GetMemoryInfo()
}
