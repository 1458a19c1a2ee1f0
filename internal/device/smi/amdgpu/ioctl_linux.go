// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package amdgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DRM_IOCTL_AMDGPU_INFO, _IOW('d', 0x45, struct drm_amdgpu_info) with a
// 64 byte request
const ioctlAMDGPUInfo = 0x40406445

const amdgpuInfoSensor = 0x1D

// AMDGPU_INFO_SENSOR sub-queries
const (
	sensorGPUTemp     = 0x3
	sensorGPULoad     = 0x4
	sensorGPUAvgPower = 0x5
)

// infoRequest mirrors struct drm_amdgpu_info
type infoRequest struct {
	returnPointer uint64
	returnSize    uint32
	query         uint32
	data          [48]byte
}

// querySensor reads one sensor through an open render node
func querySensor(fd uintptr, sensor uint32) (uint32, error) {
	var result uint32

	var req infoRequest
	req.returnPointer = uint64(uintptr(unsafe.Pointer(&result)))
	req.returnSize = 4
	req.query = amdgpuInfoSensor
	binary.LittleEndian.PutUint32(req.data[:4], sensor)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(ioctlAMDGPUInfo), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return 0, fmt.Errorf("amdgpu sensor query 0x%x: %w", sensor, errno)
	}
	return result, nil
}
