// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import "fmt"

// SentinelValue is reported by drivers for a field that exists in the
// payload shape but is not implemented by the device
const SentinelValue = 0xFFFF

const (
	// MaxXCP is the maximum number of compute partitions per device
	MaxXCP = 8
	// MaxVCN is the maximum number of video encode engines per partition
	MaxVCN = 4
	// MaxJPEG is the maximum number of video decode engines per partition
	MaxJPEG = 32
)

// Power is power in milliwatts
type Power uint32

const (
	MilliWatt Power = 1
	Watt            = 1000 * MilliWatt
)

// Watts returns the power in watts
func (p Power) Watts() float64 {
	return float64(p) / float64(Watt)
}

func (p Power) String() string {
	return fmt.Sprintf("%.2fW", p.Watts())
}

// IsSentinel reports whether p is the unsupported marker
func (p Power) IsSentinel() bool {
	return p == SentinelValue
}

// MilliWatts converts a measured milliwatt reading. A reading that happens
// to equal the sentinel is reported one milliwatt lower so that it is never
// mistaken for an unsupported field.
func MilliWatts(mw uint64) Power {
	if mw == SentinelValue {
		return SentinelValue - 1
	}
	return Power(mw)
}

// Temperature is temperature in millidegrees Celsius. It is signed since
// some drivers report small negative values.
type Temperature int64

const (
	MilliDegree Temperature = 1
	Degree                  = 1000 * MilliDegree
)

// Celsius returns the temperature in degrees Celsius
func (t Temperature) Celsius() float64 {
	return float64(t) / float64(Degree)
}

func (t Temperature) String() string {
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

// IsSentinel reports whether t is the unsupported marker
func (t Temperature) IsSentinel() bool {
	return t == SentinelValue
}

// MilliDegrees converts a measured millidegree reading, moving a reading
// equal to the sentinel one millidegree lower
func MilliDegrees(v int64) Temperature {
	if v == SentinelValue {
		return SentinelValue - 1
	}
	return Temperature(v)
}
