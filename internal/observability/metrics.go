// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sustainable-computing-io/smi-telemetry/internal/device/smi"
)

const namespace = "smi_telemetry"

// Metrics holds the self-monitoring metrics of the collector. It uses a
// custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	ProbesTotal             prometheus.Counter
	SupportedFamilies       *prometheus.GaugeVec
	SampleFailuresTotal     *prometheus.CounterVec
	MemoryReadFailuresTotal *prometheus.CounterVec
	SweepsTotal             prometheus.Counter
	SweepDuration           prometheus.Histogram
	DevicesPresent          prometheus.Gauge
	DevicesAbsent           prometheus.Gauge
}

var _ smi.Observer = (*Metrics)(nil)

// NewMetrics creates the metrics registered on a new registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ProbesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of device capability probes.",
		}),
		SupportedFamilies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supported_families",
			Help:      "Number of metric families a device supports.",
		}, []string{"device"}),
		SampleFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Total number of devices left out of a sweep.",
		}, []string{"device"}),
		MemoryReadFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_read_failures_total",
			Help:      "Total number of failed memory usage reads.",
		}, []string{"device"}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Total number of completed sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweeps in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		DevicesPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_devices_present",
			Help:      "Number of devices sampled by the last sweep.",
		}),
		DevicesAbsent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_devices_absent",
			Help:      "Number of devices left out of the last sweep.",
		}),
	}

	reg.MustRegister(m.Collectors()...)
	return m
}

// Collectors returns every self metric in registration order
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProbesTotal,
		m.SupportedFamilies,
		m.SampleFailuresTotal,
		m.MemoryReadFailuresTotal,
		m.SweepsTotal,
		m.SweepDuration,
		m.DevicesPresent,
		m.DevicesAbsent,
	}
}

func (m *Metrics) ProbeCompleted(index int, mask smi.CapabilityMask) {
	m.ProbesTotal.Inc()
	m.SupportedFamilies.WithLabelValues(strconv.Itoa(index)).Set(float64(len(mask.Supported())))
}

func (m *Metrics) MemoryReadFailed(index int, _ error) {
	m.MemoryReadFailuresTotal.WithLabelValues(strconv.Itoa(index)).Inc()
}

func (m *Metrics) SampleFailed(index int, _ error) {
	m.SampleFailuresTotal.WithLabelValues(strconv.Itoa(index)).Inc()
}

func (m *Metrics) SweepCompleted(present, absent int, duration time.Duration) {
	m.SweepsTotal.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.DevicesPresent.Set(float64(present))
	m.DevicesAbsent.Set(float64(absent))
}

// Totals gathers the registry and sums every series of each metric family.
// Histograms contribute their sample count.
func (m *Metrics) Totals() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, metric := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sum += metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				sum += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		totals[mf.GetName()] = sum
	}
	return totals, nil
}

// LogTotals logs the result of Totals at info level
func (m *Metrics) LogTotals(logger *slog.Logger) {
	totals, err := m.Totals()
	if err != nil {
		logger.Warn("Failed to gather self metrics", "error", err)
		return
	}

	names := slices.Sorted(maps.Keys(totals))
	attrs := make([]any, 0, 2*len(names))
	for _, name := range names {
		attrs = append(attrs, strings.TrimPrefix(name, namespace+"_"), totals[name])
	}
	logger.Info("Self metrics", attrs...)
}
