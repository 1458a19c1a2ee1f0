// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/smi-telemetry/config"
	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi/amdgpu"
	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi/fake"
	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi/nvidia"
	"github.com/sustainable-computing-io/smi-telemetry/internal/exporter/stdout"
	"github.com/sustainable-computing-io/smi-telemetry/internal/logger"
	"github.com/sustainable-computing-io/smi-telemetry/internal/monitor"
	"github.com/sustainable-computing-io/smi-telemetry/internal/observability"
	"github.com/sustainable-computing-io/smi-telemetry/internal/service"
	"github.com/sustainable-computing-io/smi-telemetry/internal/version"
)

const appName = "smi-telemetry"

func main() {
	// parse args and config and exit with error if there is an error
	cfg, err := parseArgsAndConfig(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger.Info("Starting "+appName, "build", version.Info())
	printConfigInfo(logger, cfg)

	services, metrics, err := createServices(logger, cfg, os.Stdout)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}
	logger.Info("Created services", "services", service.Names(services))

	if err := service.Init(logger, services); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	runErr := service.Run(context.Background(), logger, services)
	metrics.LogTotals(logger)
	if runErr != nil {
		logger.Error(appName+" terminated with an error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func parseArgsAndConfig(args []string) (*config.Config, error) {
	app := kingpin.New(appName, "Capability-aware accelerator telemetry.")
	app.Version(version.Info().String())

	configFiles := app.Flag(config.ConfigFileFlag,
		"Path to YAML configuration file; repeat to layer overlays").Strings()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(args))

	logger := logger.New("info", "text", os.Stderr)
	if len(*configFiles) > 0 {
		logger.Info("Loading configuration files", "paths", *configFiles)
	}
	cfg, err := config.FromFiles(*configFiles...)
	if err != nil {
		logger.Error("Error loading config file", "error", err.Error())
		return nil, err
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(os.Stderr, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

// backend is a Driver whose lifecycle is managed by the service runner
type backend interface {
	smi.Driver
	service.Initializer
	service.Shutdowner
}

func newBackend(logger *slog.Logger, cfg *config.Config) (backend, error) {
	switch cfg.Driver.Backend {
	case config.BackendAMDGPU:
		return amdgpu.NewDriver(
			amdgpu.WithLogger(logger),
			amdgpu.WithSysFS(cfg.Host.SysFS),
			amdgpu.WithDevFS(cfg.Host.DevFS),
		), nil
	case config.BackendNVIDIA:
		return nvidia.NewDriver(logger), nil
	case config.BackendFake:
		fd := cfg.Dev.FakeDriver
		return fake.NewDriver(
			fake.WithLogger(logger),
			fake.WithDevices(fd.Devices),
			fake.WithPartitions(fd.Partitions),
			fake.WithUnsupported(fd.Unsupported...),
		), nil
	default:
		return nil, fmt.Errorf("unknown driver backend %q", cfg.Driver.Backend)
	}
}

// createServices builds every service in init order. out receives the
// stdout exporter tables.
func createServices(logger *slog.Logger, cfg *config.Config, out io.WriteCloser) ([]service.Service, *observability.Metrics, error) {
	logger.Debug("Creating all services")

	driver, err := newBackend(logger, cfg)
	if err != nil {
		return nil, nil, err
	}

	metrics := observability.NewMetrics()
	observer := smi.Observers{smi.NewLogObserver(logger), metrics}

	registry := smi.NewService(driver,
		smi.WithLogger(logger),
		smi.WithObserver(observer),
	)

	collector := smi.NewCollector(registry,
		smi.WithCollectorLogger(logger),
		smi.WithCollectorObserver(observer),
		smi.WithWorkers(cfg.Monitor.Workers),
	)

	mon := monitor.NewMonitor(collector,
		monitor.WithLogger(logger),
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithMaxStaleness(cfg.Monitor.Staleness),
	)

	services := []service.Service{driver, registry, mon}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(mon,
			stdout.WithLogger(logger),
			stdout.WithOutput(out),
			stdout.WithShowSupported(ptr.Deref(cfg.Exporter.Stdout.ShowSupported, true)),
		))
	}

	services = append(services, service.NewSignalHandler(logger, os.Interrupt))
	return services, metrics, nil
}
