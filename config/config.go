// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS string `yaml:"sysfs"`
		DevFS string `yaml:"devfs"`
	}

	// Driver selects the backend that talks to the devices
	Driver struct {
		Backend string `yaml:"backend"`
	}

	Monitor struct {
		Interval  time.Duration `yaml:"interval"`  // Interval between sweeps; 0 collects on demand only
		Staleness time.Duration `yaml:"staleness"` // Age after which a cached sweep is refreshed on read

		// Workers bounds the number of devices sampled concurrently in one sweep
		Workers int `yaml:"workers"`
	}

	StdoutExporter struct {
		Enabled       *bool `yaml:"enabled"`
		ShowSupported *bool `yaml:"showSupported"`
	}

	Exporter struct {
		Stdout StdoutExporter `yaml:"stdout"`
	}

	FakeDriver struct {
		Enabled     *bool    `yaml:"enabled"`
		Devices     int      `yaml:"devices"`
		Partitions  int      `yaml:"partitions"`
		Unsupported []string `yaml:"unsupported"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeDriver FakeDriver `yaml:"fakeDriver"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		Driver   Driver   `yaml:"driver"`
		Monitor  Monitor  `yaml:"monitor"`
		Exporter Exporter `yaml:"exporter"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

// Backends
const (
	BackendAMDGPU = "amdgpu"
	BackendNVIDIA = "nvidia"
	BackendFake   = "fake"
)

var backends = []string{BackendAMDGPU, BackendNVIDIA, BackendFake}

const (
	// Flags
	ConfigFileFlag = "config.file"

	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag = "host.sysfs"
	HostDevFSFlag = "host.devfs"

	DriverBackendFlag = "driver.backend"

	MonitorIntervalFlag  = "monitor.interval"
	MonitorStalenessFlag = "monitor.staleness"
	MonitorWorkersFlag   = "monitor.workers"

	// Exporters
	ExporterStdoutEnabledFlag       = "exporter.stdout"
	ExporterStdoutShowSupportedFlag = "exporter.stdout.show-supported"

	// NOTE: not flags
	DevFakeDriverEnabled     = "dev.fakeDriver.enabled"
	DevFakeDriverDevices     = "dev.fakeDriver.devices"
	DevFakeDriverPartitions  = "dev.fakeDriver.partitions"
	DevFakeDriverUnsupported = "dev.fakeDriver.unsupported"

// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS: "/sys",
			DevFS: "/dev",
		},
		Driver: Driver{
			Backend: BackendAMDGPU,
		},
		Monitor: Monitor{
			Interval:  5 * time.Second,
			Staleness: 500 * time.Millisecond,
			Workers:   1,
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:       ptr.To(false),
				ShowSupported: ptr.To(true),
			},
		},
	}

	cfg.Dev.FakeDriver = FakeDriver{
		Enabled:     ptr.To(false),
		Devices:     2,
		Partitions:  2,
		Unsupported: []string{smi.FamilyEdgeTemperature},
	}
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	var errRet error
	defer func() {
		err = file.Close()
		if err != nil && errRet == nil {
			errRet = err
		}
	}()

	cfg, errRet := Load(file)

	return cfg, errRet
}

// FromFiles loads the first file and merges each following file on top of it
func FromFiles(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		cfg := DefaultConfig()
		cfg.sanitize()
		return cfg, nil
	}
	if len(paths) == 1 {
		return FromFile(paths[0])
	}

	base, err := FromFile(paths[0])
	if err != nil {
		return nil, err
	}

	b := (&Builder{}).Use(base)
	for _, p := range paths[1:] {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read config overlay %s: %w", p, err)
		}
		b.Merge(string(data))
	}

	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}
	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostDevFS := app.Flag(HostDevFSFlag, "Host devfs path").Default("/dev").ExistingDir()

	backend := app.Flag(DriverBackendFlag, "Device backend: amdgpu, nvidia or fake").Default(BackendAMDGPU).Enum(backends...)

	// monitor
	monitorInterval := app.Flag(MonitorIntervalFlag,
		"Interval between device sweeps; 0 to collect only on demand").Default("5s").Duration()
	monitorStaleness := app.Flag(MonitorStalenessFlag,
		"Age after which a cached sweep is refreshed on read").Default("500ms").Duration()
	monitorWorkers := app.Flag(MonitorWorkersFlag,
		"Number of devices sampled concurrently").Default("1").Int()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("false").Bool()
	stdoutShowSupported := app.Flag(ExporterStdoutShowSupportedFlag,
		"Print the supported metrics of every device at startup").Default("true").Bool()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[HostDevFSFlag] {
			cfg.Host.DevFS = *hostDevFS
		}

		if flagsSet[DriverBackendFlag] {
			cfg.Driver.Backend = *backend
		}

		// monitor settings
		if flagsSet[MonitorIntervalFlag] {
			cfg.Monitor.Interval = *monitorInterval
		}
		if flagsSet[MonitorStalenessFlag] {
			cfg.Monitor.Staleness = *monitorStaleness
		}
		if flagsSet[MonitorWorkersFlag] {
			cfg.Monitor.Workers = *monitorWorkers
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterStdoutShowSupportedFlag] {
			cfg.Exporter.Stdout.ShowSupported = stdoutShowSupported
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.DevFS = strings.TrimSpace(c.Host.DevFS)
	c.Driver.Backend = strings.ToLower(strings.TrimSpace(c.Driver.Backend))

	for i := range c.Dev.FakeDriver.Unsupported {
		c.Dev.FakeDriver.Unsupported[i] = strings.TrimSpace(c.Dev.FakeDriver.Unsupported[i])
	}

	// the fake driver always wins so a dev config never touches real hardware
	if ptr.Deref(c.Dev.FakeDriver.Enabled, false) {
		c.Driver.Backend = BackendFake
	}
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // driver
		if !slices.Contains(backends, c.Driver.Backend) {
			errs = append(errs, fmt.Sprintf("invalid driver backend: %q; must be one of %s",
				c.Driver.Backend, strings.Join(backends, ", ")))
		}
	}
	{ // Validate host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip && c.Driver.Backend == BackendAMDGPU {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
		}
	}
	{ // Monitor
		if c.Monitor.Interval < 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor interval: %s can't be negative", c.Monitor.Interval))
		}
		if c.Monitor.Staleness <= 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor staleness: %s must be positive", c.Monitor.Staleness))
		}
		if c.Monitor.Workers < 1 {
			errs = append(errs, fmt.Sprintf("invalid monitor workers: %d must be at least 1", c.Monitor.Workers))
		}
	}
	{ // fake driver
		fd := c.Dev.FakeDriver
		if fd.Devices < 0 {
			errs = append(errs, fmt.Sprintf("invalid fake driver devices: %d can't be negative", fd.Devices))
		}
		if fd.Partitions < 0 || fd.Partitions > smi.MaxXCP {
			errs = append(errs, fmt.Sprintf("invalid fake driver partitions: %d must be within [0, %d]", fd.Partitions, smi.MaxXCP))
		}
		for _, f := range fd.Unsupported {
			if !smi.IsFamily(f) {
				errs = append(errs, fmt.Sprintf("unknown metric family in %s: %q", DevFakeDriverUnsupported, f))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{HostDevFSFlag, c.Host.DevFS},
		{DriverBackendFlag, c.Driver.Backend},
		{MonitorIntervalFlag, c.Monitor.Interval.String()},
		{MonitorStalenessFlag, c.Monitor.Staleness.String()},
		{MonitorWorkersFlag, fmt.Sprintf("%d", c.Monitor.Workers)},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterStdoutShowSupportedFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.ShowSupported, false))},
		{DevFakeDriverEnabled, fmt.Sprintf("%v", ptr.Deref(c.Dev.FakeDriver.Enabled, false))},
		{DevFakeDriverDevices, fmt.Sprintf("%d", c.Dev.FakeDriver.Devices)},
		{DevFakeDriverPartitions, fmt.Sprintf("%d", c.Dev.FakeDriver.Partitions)},
		{DevFakeDriverUnsupported, strings.Join(c.Dev.FakeDriver.Unsupported, ", ")},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
