// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package fake provides a Driver that generates plausible telemetry without
// hardware.
package fake

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

// NOTE: This driver is not intended to be used in production and is for testing only

const (
	defaultDevices    = 2
	defaultPartitions = 1
)

type device struct {
	mu sync.Mutex

	power      smi.Power
	edge       smi.Temperature
	hotspot    smi.Temperature
	gfx        uint16
	memoryUsed uint64
}

// walk moves v by a random step within [lo, hi]
func walk[T ~uint16 | ~uint32 | ~uint64 | ~int64](r *rand.Rand, v T, step, lo, hi int64) T {
	n := int64(v) + r.Int63n(2*step+1) - step
	n = max(lo, min(hi, n))
	return T(n)
}

// Driver implements smi.Driver with random walk values
type Driver struct {
	logger      *slog.Logger
	partitions  int
	unsupported map[string]bool
	devices     []*device

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ smi.Driver = (*Driver)(nil)

// OptFn is a functional option for configuring the fake Driver
type OptFn func(*Driver)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) OptFn {
	return func(d *Driver) {
		d.logger = l.With("driver", d.Name())
	}
}

// WithDevices sets the number of devices
func WithDevices(n int) OptFn {
	return func(d *Driver) {
		d.devices = make([]*device, n)
	}
}

// WithPartitions sets the number of compute partitions per device
func WithPartitions(n int) OptFn {
	return func(d *Driver) {
		d.partitions = max(0, min(n, smi.MaxXCP))
	}
}

// WithUnsupported marks metric families as unsupported on every device
func WithUnsupported(families ...string) OptFn {
	return func(d *Driver) {
		for _, f := range families {
			d.unsupported[f] = true
		}
	}
}

// WithSeed makes the generated values reproducible
func WithSeed(seed int64) OptFn {
	return func(d *Driver) {
		d.rng = rand.New(rand.NewSource(seed))
	}
}

// NewDriver creates a fake driver
func NewDriver(opts ...OptFn) *Driver {
	d := &Driver{
		logger:      slog.Default().With("driver", "fake"),
		partitions:  defaultPartitions,
		unsupported: map[string]bool{},
		devices:     make([]*device, defaultDevices),
		rng:         rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := range d.devices {
		d.devices[i] = &device{
			power:      smi.Power(150+10*i) * smi.Watt,
			edge:       smi.Temperature(40+i) * smi.Degree,
			hotspot:    smi.Temperature(50+i) * smi.Degree,
			gfx:        uint16(20 + i),
			memoryUsed: uint64(1+i) << 30,
		}
	}
	return d
}

func (d *Driver) Name() string {
	return "fake"
}

func (d *Driver) Init() error {
	d.logger.Info("Fake driver initialized",
		"devices", len(d.devices), "partitions", d.partitions)
	return nil
}

func (d *Driver) Shutdown() error {
	return nil
}

func (d *Driver) Version() (smi.Version, smi.Status) {
	return smi.Version{Major: 1, Minor: 0, Release: 0, Build: "fake"}, smi.StatusSuccess
}

// SocketHandles reports a single socket holding every device
func (d *Driver) SocketHandles(handles []smi.SocketHandle) (uint32, smi.Status) {
	if len(d.devices) == 0 {
		return 0, smi.StatusSuccess
	}
	if handles == nil {
		return 1, smi.StatusSuccess
	}
	handles[0] = 1
	return 1, smi.StatusSuccess
}

func (d *Driver) ProcessorHandles(socket smi.SocketHandle, handles []smi.ProcessorHandle) (uint32, smi.Status) {
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

func (d *Driver) device(p smi.ProcessorHandle) (*device, bool) {
	i := int(p) - 1
	if i < 0 || i >= len(d.devices) {
		return nil, false
	}
	return d.devices[i], true
}

func (d *Driver) ProcessorType(p smi.ProcessorHandle) (smi.ProcessorType, smi.Status) {
	if _, ok := d.device(p); !ok {
		return smi.ProcessorUnknown, smi.StatusInval
	}
	return smi.ProcessorAMDGPU, smi.StatusSuccess
}

// step advances every value of dev and returns a copy
func (d *Driver) step(dev *device) device {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()

	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.power = walk(d.rng, dev.power, 5000, 50000, 700000)
	dev.edge = walk(d.rng, dev.edge, 500, 25000, 90000)
	dev.hotspot = walk(d.rng, dev.hotspot, 700, 30000, 105000)
	dev.gfx = walk(d.rng, dev.gfx, 5, 0, 100)
	dev.memoryUsed = walk(d.rng, dev.memoryUsed, 64<<20, 256<<20, 64<<30)

	return device{
		power:      dev.power,
		edge:       dev.edge,
		hotspot:    dev.hotspot,
		gfx:        dev.gfx,
		memoryUsed: dev.memoryUsed,
	}
}

// power returns v, or the sentinel when the family is unsupported
func (d *Driver) power(family string, v smi.Power) smi.Power {
	if d.unsupported[family] {
		return smi.SentinelValue
	}
	return smi.MilliWatts(uint64(v))
}

func (d *Driver) temperature(family string, v smi.Temperature) smi.Temperature {
	if d.unsupported[family] {
		return smi.SentinelValue
	}
	return smi.MilliDegrees(int64(v))
}

func (d *Driver) PowerInfo(p smi.ProcessorHandle) (smi.PowerInfo, smi.Status) {
	dev, ok := d.device(p)
	if !ok {
		return smi.PowerInfo{}, smi.StatusInval
	}
	v := d.step(dev)
	return smi.PowerInfo{
		CurrentSocketPower: d.power(smi.FamilyCurrentSocketPower, v.power),
		AverageSocketPower: d.power(smi.FamilyAverageSocketPower, v.power),
		PowerLimit:         750 * smi.Watt,
	}, smi.StatusSuccess
}

func (d *Driver) TemperatureMetric(p smi.ProcessorHandle, sensor smi.TemperatureType, metric smi.TemperatureMetric) (int64, smi.Status) {
	dev, ok := d.device(p)
	if !ok {
		return 0, smi.StatusInval
	}
	if metric != smi.TempMetricCurrent {
		return int64(105 * smi.Degree), smi.StatusSuccess
	}
	v := d.step(dev)
	switch sensor {
	case smi.TemperatureEdge:
		return int64(d.temperature(smi.FamilyEdgeTemperature, v.edge)), smi.StatusSuccess
	case smi.TemperatureHotspot:
		return int64(d.temperature(smi.FamilyHotspotTemperature, v.hotspot)), smi.StatusSuccess
	default:
		return 0, smi.StatusNotSupported
	}
}

func (d *Driver) engineUnsupported() bool {
	return d.unsupported[smi.FamilyGfxActivity] ||
		d.unsupported[smi.FamilyUmcActivity] ||
		d.unsupported[smi.FamilyMmActivity]
}

func (d *Driver) GPUActivity(p smi.ProcessorHandle) (smi.EngineUsage, smi.Status) {
	dev, ok := d.device(p)
	if !ok {
		return smi.EngineUsage{}, smi.StatusInval
	}
	if d.engineUnsupported() {
		return smi.EngineUsage{}, smi.StatusNotSupported
	}
	v := d.step(dev)
	return smi.EngineUsage{
		GfxActivity: uint32(v.gfx),
		UmcActivity: uint32(v.gfx / 2),
		MmActivity:  uint32(v.gfx / 4),
	}, smi.StatusSuccess
}

func (d *Driver) MemoryUsage(p smi.ProcessorHandle, mem smi.MemoryType) (uint64, smi.Status) {
	dev, ok := d.device(p)
	if !ok {
		return 0, smi.StatusInval
	}
	if mem != smi.MemoryVRAM || d.unsupported[smi.FamilyMemoryUsage] {
		return 0, smi.StatusNotSupported
	}
	return d.step(dev).memoryUsed, smi.StatusSuccess
}

func (d *Driver) GPUMetrics(p smi.ProcessorHandle) (smi.GPUMetrics, smi.Status) {
	dev, ok := d.device(p)
	if !ok {
		return smi.GPUMetrics{}, smi.StatusInval
	}
	v := d.step(dev)

	m := smi.NewGPUMetrics()
	m.TemperatureEdge = d.temperature(smi.FamilyEdgeTemperature, v.edge)
	m.TemperatureHotspot = d.temperature(smi.FamilyHotspotTemperature, v.hotspot)
	m.CurrentSocketPower = d.power(smi.FamilyCurrentSocketPower, v.power)
	m.AverageSocketPower = d.power(smi.FamilyAverageSocketPower, v.power)
	m.AverageGfxActivity = v.gfx
	m.AverageUmcActivity = v.gfx / 2
	m.AverageMmActivity = v.gfx / 4
	m.NumPartitions = uint16(d.partitions)

	// one encode and two decode engines per partition
	for x := range d.partitions {
		xcp := &m.XCPStats[x]
		if !d.unsupported[smi.FamilyVCNXCPStats] {
			xcp.VCNBusy[0] = v.gfx / 3
		}
		if !d.unsupported[smi.FamilyJPEGXCPStats] {
			xcp.JPEGBusy[0] = v.gfx / 5
			xcp.JPEGBusy[1] = v.gfx / 6
		}
	}

	if !d.unsupported[smi.FamilyVCNActivity] {
		m.VCNActivity[0] = v.gfx / 3
	}
	if !d.unsupported[smi.FamilyJPEGActivity] {
		m.JPEGActivity[0] = v.gfx / 5
	}

	return m, smi.StatusSuccess
}

func (d *Driver) StatusString(s smi.Status) string {
	return fmt.Sprintf("fake: %s", s)
}
