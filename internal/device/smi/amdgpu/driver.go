// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package amdgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/procfs/sysfs"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

// card is one amdgpu DRM card
type card struct {
	name       string
	devicePath string
	pciSlot    string
	hwmon      string
	sensors    map[smi.TemperatureType]string
	render     *os.File
}

func (c *card) hwmonFile(name string) (string, error) {
	if c.hwmon == "" {
		return "", errNoHwmon
	}
	return filepath.Join(c.hwmon, name), nil
}

func (c *card) readHwmon(name string) (uint64, error) {
	path, err := c.hwmonFile(name)
	if err != nil {
		return 0, err
	}
	return readUint(path)
}

func (c *card) sensor(id uint32) (uint32, error) {
	if c.render == nil {
		return 0, errors.New("render node not open")
	}
	return querySensor(c.render.Fd(), id)
}

// Driver implements smi.Driver on top of the amdgpu sysfs, hwmon and DRM
// ioctl interfaces
type Driver struct {
	logger *slog.Logger
	sysfs  string
	devfs  string

	cards   []*card
	sockets [][]int // card indices per socket
}

var _ smi.Driver = (*Driver)(nil)

// OptFn is a functional option for configuring the Driver
type OptFn func(*Driver)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) OptFn {
	return func(d *Driver) {
		d.logger = l.With("driver", driverName)
	}
}

// WithSysFS sets the sysfs mount point
func WithSysFS(path string) OptFn {
	return func(d *Driver) {
		d.sysfs = path
	}
}

// WithDevFS sets the devfs mount point used to open render nodes
func WithDevFS(path string) OptFn {
	return func(d *Driver) {
		d.devfs = path
	}
}

// NewDriver creates an amdgpu driver. Devices are discovered by Init.
func NewDriver(opts ...OptFn) *Driver {
	d := &Driver{
		logger: slog.Default().With("driver", driverName),
		sysfs:  "/sys",
		devfs:  "/dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string {
	return driverName
}

// Init discovers every amdgpu card and opens its render node. A host without
// amdgpu devices is not an error.
func (d *Driver) Init() error {
	drm := filepath.Join(d.sysfs, "class", "drm")
	entries, err := os.ReadDir(drm)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("No DRM class in sysfs, no devices available", "path", drm)
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", drm, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isCardDevice(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return cardNumber(names[i]) < cardNumber(names[j])
	})

	socketIndex := map[string]int{}
	for _, name := range names {
		devicePath := filepath.Join(drm, name, "device")
		if readDriverName(devicePath) != driverName {
			continue
		}

		c := &card{
			name:       name,
			devicePath: devicePath,
			pciSlot:    parsePCISlot(devicePath),
			hwmon:      findHwmon(devicePath),
		}
		c.sensors = temperatureSensors(c.hwmon)
		d.openRenderNode(c)

		key := socketKey(c.pciSlot)
		si, ok := socketIndex[key]
		if !ok {
			si = len(d.sockets)
			socketIndex[key] = si
			d.sockets = append(d.sockets, nil)
		}
		d.sockets[si] = append(d.sockets[si], len(d.cards))
		d.cards = append(d.cards, c)
	}

	d.logCardStats()
	d.logger.Info("amdgpu driver initialized", "cards", len(d.cards), "sockets", len(d.sockets))
	return nil
}

func (d *Driver) openRenderNode(c *card) {
	node := renderNode(c.devicePath)
	if node == "" {
		d.logger.Debug("No render node for card", "card", c.name)
		return
	}
	path := filepath.Join(d.devfs, "dri", node)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		d.logger.Warn("Cannot open render node, sensor fallbacks unavailable",
			"card", c.name, "render_node", path, "error", err)
		return
	}
	c.render = f
}

// logCardStats reports the static memory layout of every card
func (d *Driver) logCardStats() {
	fs, err := sysfs.NewFS(d.sysfs)
	if err != nil {
		d.logger.Debug("Failed to open sysfs", "error", err)
		return
	}
	stats, err := fs.ClassDRMCardAMDGPUStats()
	if err != nil {
		d.logger.Debug("Failed to read amdgpu card stats", "error", err)
		return
	}
	for _, s := range stats {
		d.logger.Info("amdgpu card",
			"card", filepath.Base(s.Name),
			"unique_id", s.UniqueID,
			"vram_total", s.MemoryVRAMSize,
			"vram_vendor", s.MemoryVRAMVendor)
	}
}

// Shutdown closes every render node
func (d *Driver) Shutdown() error {
	var errs []error
	for _, c := range d.cards {
		if c.render == nil {
			continue
		}
		if err := c.render.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close render node of %s: %w", c.name, err))
		}
		c.render = nil
	}
	return errors.Join(errs...)
}

func (d *Driver) card(p smi.ProcessorHandle) (*card, bool) {
	i := int(p) - 1
	if i < 0 || i >= len(d.cards) {
		return nil, false
	}
	return d.cards[i], true
}

// Version reads the version of an out-of-tree amdgpu module
func (d *Driver) Version() (smi.Version, smi.Status) {
	s, err := readString(filepath.Join(d.sysfs, "module", driverName, "version"))
	if err != nil {
		return smi.Version{}, statusOf(err)
	}
	return parseVersion(s), smi.StatusSuccess
}

func (d *Driver) SocketHandles(handles []smi.SocketHandle) (uint32, smi.Status) {
	if handles == nil {
		return uint32(len(d.sockets)), smi.StatusSuccess
	}
	n := min(len(handles), len(d.sockets))
	for i := range n {
		handles[i] = smi.SocketHandle(i + 1)
	}
	return uint32(n), smi.StatusSuccess
}

func (d *Driver) ProcessorHandles(socket smi.SocketHandle, handles []smi.ProcessorHandle) (uint32, smi.Status) {
	si := int(socket) - 1
	if si < 0 || si >= len(d.sockets) {
		return 0, smi.StatusInval
	}
	cards := d.sockets[si]
	if handles == nil {
		return uint32(len(cards)), smi.StatusSuccess
	}
	n := min(len(handles), len(cards))
	for i := range n {
		handles[i] = smi.ProcessorHandle(cards[i] + 1)
	}
	return uint32(n), smi.StatusSuccess
}

func (d *Driver) ProcessorType(p smi.ProcessorHandle) (smi.ProcessorType, smi.Status) {
	if _, ok := d.card(p); !ok {
		return smi.ProcessorUnknown, smi.StatusInval
	}
	return smi.ProcessorAMDGPU, smi.StatusSuccess
}

// PowerInfo reads hwmon power in microwatts. A missing reading is reported
// as the sentinel; if neither reading exists the average power sensor of the
// render node is used.
func (d *Driver) PowerInfo(p smi.ProcessorHandle) (smi.PowerInfo, smi.Status) {
	c, ok := d.card(p)
	if !ok {
		return smi.PowerInfo{}, smi.StatusInval
	}

	info := smi.PowerInfo{
		CurrentSocketPower: smi.SentinelValue,
		AverageSocketPower: smi.SentinelValue,
		PowerLimit:         smi.SentinelValue,
	}

	avg, avgErr := c.readHwmon("power1_average")
	cur, curErr := c.readHwmon("power1_input")
	if avgErr != nil && curErr != nil {
		w, err := c.sensor(sensorGPUAvgPower)
		if err != nil {
			return smi.PowerInfo{}, statusOf(avgErr)
		}
		info.AverageSocketPower = smi.Power(w) * smi.Watt
		return info, smi.StatusSuccess
	}

	if avgErr == nil {
		info.AverageSocketPower = smi.MilliWatts(avg / 1000)
	}
	if curErr == nil {
		info.CurrentSocketPower = smi.MilliWatts(cur / 1000)
	}
	if limit, err := c.readHwmon("power1_cap"); err == nil {
		info.PowerLimit = smi.MilliWatts(limit / 1000)
	}
	return info, smi.StatusSuccess
}

var temperatureFiles = map[smi.TemperatureMetric]string{
	smi.TempMetricCurrent:   "input",
	smi.TempMetricCritical:  "crit",
	smi.TempMetricEmergency: "emergency",
}

// TemperatureMetric reads a hwmon temperature in millidegrees
func (d *Driver) TemperatureMetric(p smi.ProcessorHandle, sensor smi.TemperatureType, metric smi.TemperatureMetric) (int64, smi.Status) {
	c, ok := d.card(p)
	if !ok {
		return 0, smi.StatusInval
	}
	suffix, ok := temperatureFiles[metric]
	if !ok {
		return 0, smi.StatusInval
	}

	prefix, ok := c.sensors[sensor]
	if !ok {
		if sensor == smi.TemperatureEdge && metric == smi.TempMetricCurrent {
			if v, err := c.sensor(sensorGPUTemp); err == nil {
				return int64(smi.MilliDegrees(int64(v))), smi.StatusSuccess
			}
		}
		return 0, smi.StatusNotSupported
	}

	path, err := c.hwmonFile(prefix + "_" + suffix)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := readInt(path)
	if err != nil {
		return 0, statusOf(err)
	}
	return int64(smi.MilliDegrees(v)), smi.StatusSuccess
}

// GPUActivity reads gpu_busy_percent and mem_busy_percent. Multimedia
// activity has no sysfs source and is always the sentinel.
func (d *Driver) GPUActivity(p smi.ProcessorHandle) (smi.EngineUsage, smi.Status) {
	c, ok := d.card(p)
	if !ok {
		return smi.EngineUsage{}, smi.StatusInval
	}

	usage := smi.EngineUsage{
		UmcActivity: smi.SentinelValue,
		MmActivity:  smi.SentinelValue,
	}

	gfx, err := readUint(filepath.Join(c.devicePath, "gpu_busy_percent"))
	if err != nil {
		load, serr := c.sensor(sensorGPULoad)
		if serr != nil {
			return smi.EngineUsage{}, statusOf(err)
		}
		gfx = uint64(load)
	}
	usage.GfxActivity = uint32(gfx)

	if umc, err := readUint(filepath.Join(c.devicePath, "mem_busy_percent")); err == nil {
		usage.UmcActivity = uint32(umc)
	}
	return usage, smi.StatusSuccess
}

var memoryFiles = map[smi.MemoryType]string{
	smi.MemoryVRAM:    "mem_info_vram_used",
	smi.MemoryVisVRAM: "mem_info_vis_vram_used",
	smi.MemoryGTT:     "mem_info_gtt_used",
}

// MemoryUsage reads the used bytes of a memory pool
func (d *Driver) MemoryUsage(p smi.ProcessorHandle, mem smi.MemoryType) (uint64, smi.Status) {
	c, ok := d.card(p)
	if !ok {
		return 0, smi.StatusInval
	}
	file, ok := memoryFiles[mem]
	if !ok {
		return 0, smi.StatusInval
	}
	v, err := readUint(filepath.Join(c.devicePath, file))
	if err != nil {
		return 0, statusOf(err)
	}
	return v, smi.StatusSuccess
}

// GPUMetrics assembles the metrics block from the individual sources. Per
// engine busy values are not exposed through sysfs and stay the sentinel.
func (d *Driver) GPUMetrics(p smi.ProcessorHandle) (smi.GPUMetrics, smi.Status) {
	c, ok := d.card(p)
	if !ok {
		return smi.GPUMetrics{}, smi.StatusInval
	}

	m := smi.NewGPUMetrics()
	read := 0

	temps := []struct {
		sensor smi.TemperatureType
		dst    *smi.Temperature
	}{
		{smi.TemperatureEdge, &m.TemperatureEdge},
		{smi.TemperatureHotspot, &m.TemperatureHotspot},
		{smi.TemperatureVRAM, &m.TemperatureMem},
	}
	for _, t := range temps {
		if v, st := d.TemperatureMetric(p, t.sensor, smi.TempMetricCurrent); st.OK() {
			*t.dst = smi.Temperature(v)
			read++
		}
	}

	if info, st := d.PowerInfo(p); st.OK() {
		m.CurrentSocketPower = info.CurrentSocketPower
		m.AverageSocketPower = info.AverageSocketPower
		read++
	}

	if usage, st := d.GPUActivity(p); st.OK() {
		m.AverageGfxActivity = uint16(usage.GfxActivity)
		m.AverageUmcActivity = uint16(usage.UmcActivity)
		m.AverageMmActivity = uint16(usage.MmActivity)
		read++
	}

	if mode, err := readString(filepath.Join(c.devicePath, "current_compute_partition")); err == nil {
		numXCC, _ := readUint(filepath.Join(c.devicePath, "num_xcc"))
		m.NumPartitions = uint16(partitionCount(mode, int(numXCC)))
	}

	if read == 0 {
		return smi.GPUMetrics{}, smi.StatusNotSupported
	}
	return m, smi.StatusSuccess
}

func (d *Driver) StatusString(s smi.Status) string {
	return fmt.Sprintf("%s: %s", driverName, s)
}
