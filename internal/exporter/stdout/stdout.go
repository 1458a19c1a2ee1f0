// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
	"github.com/sustainable-computing-io/smi-telemetry/internal/monitor"
	"github.com/sustainable-computing-io/smi-telemetry/internal/service"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
	Monitor     = monitor.SweepProvider
)

const notAvailable = "n/a"

// Exporter renders every new sweep to stdout
type Exporter struct {
	logger        *slog.Logger
	monitor       Monitor
	out           io.WriteCloser
	showSupported bool
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger        *slog.Logger
	out           io.WriteCloser
	showSupported bool
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:        slog.Default(),
		out:           os.Stdout,
		showSupported: true,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

// WithShowSupported prints the supported metrics of every device on Init
func WithShowSupported(show bool) OptionFn {
	return func(o *Opts) {
		o.showSupported = show
	}
}

func NewExporter(m Monitor, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:        opts.logger.With("service", "stdout"),
		monitor:       m,
		out:           opts.out,
		showSupported: opts.showSupported,
	}
}

func (e *Exporter) Init() error {
	if !e.showSupported {
		return nil
	}
	sweep, err := e.monitor.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to read devices: %w", err)
	}
	writeSupported(e.out, sweep.Processors)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	dataCh := e.monitor.DataChannel()
	for {
		select {
		case <-dataCh:
			sweep, err := e.monitor.Snapshot()
			if err != nil {
				e.logger.Error("Failed to read telemetry", "error", err)
				continue
			}
			writeSweep(e.out, sweep)
		case <-ctx.Done():
			e.logger.Info("Exiting stdout exporter")
			return nil
		}
	}
}

// writeSupported prints one row per device with its supported families
func writeSupported(out io.Writer, procs []*smi.Processor) {
	rows := make([][]string, 0, len(procs))
	for _, p := range procs {
		mask := p.SupportedMetrics()
		rows = append(rows, []string{
			strconv.Itoa(p.Index()),
			p.Type().String(),
			strconv.Itoa(mask.Partitions),
			strings.Join(mask.Supported(), " "),
		})
	}
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Device", "Type", "Partitions", "Supported"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func writeSweep(out io.Writer, sweep *smi.Sweep) {
	rows := make([][]string, 0, len(sweep.Processors))
	for i, p := range sweep.Processors {
		row := []string{strconv.Itoa(i), p.Type().String()}

		s, ok := sweep.Sample(i)
		if !ok {
			for range 8 {
				row = append(row, "absent")
			}
			rows = append(rows, row)
			continue
		}

		mask := p.SupportedMetrics()
		row = append(row,
			power(mask.AverageSocketPower, s.AverageSocketPower),
			power(mask.CurrentSocketPower, s.CurrentSocketPower),
			temperature(mask.HotspotTemperature, s.HotspotTemperature),
			temperature(mask.EdgeTemperature, s.EdgeTemperature),
			percent(mask.GfxActivity, s.GfxActivity),
			percent(mask.UmcActivity, s.UmcActivity),
			percent(mask.MmActivity, s.MmActivity),
			memory(mask.MemoryUsage, s.MemoryUsage),
		)
		rows = append(rows, row)
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Device", "Type", "Power(avg)", "Power(cur)", "Hotspot", "Edge", "GFX", "UMC", "MM", "VRAM"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func power(ok bool, p smi.Power) string {
	if !ok {
		return notAvailable
	}
	return p.String()
}

func temperature(ok bool, t smi.Temperature) string {
	if !ok {
		return notAvailable
	}
	return t.String()
}

func percent(ok bool, v uint16) string {
	if !ok {
		return notAvailable
	}
	return strconv.Itoa(int(v)) + "%"
}

func memory(ok bool, bytes uint64) string {
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%.2fGiB", float64(bytes)/(1<<30))
}

func (e *Exporter) Shutdown() error {
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
