// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package amdgpu

import "errors"

const (
	sensorGPUTemp     = 0x3
	sensorGPULoad     = 0x4
	sensorGPUAvgPower = 0x5
)

func querySensor(uintptr, uint32) (uint32, error) {
	return 0, errors.New("amdgpu sensor queries require linux")
}
