// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/smi-telemetry/internal/observability"
)

// MetricInfo holds information about a Prometheus metric
type MetricInfo struct {
	Name        string
	Type        string
	Description string
	Labels      []string
	ConstLabels map[string]string
}

var (
	fqNameRegex         = regexp.MustCompile(`fqName: "([^"]+)"`)
	helpRegex           = regexp.MustCompile(`help: "([^"]+)"`)
	variableLabelsRegex = regexp.MustCompile(`variableLabels: \{([^}]*)\}`)
	constLabelsRegex    = regexp.MustCompile(`constLabels: \{([^}]*)\}`)
	labelPairRegex      = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// metricType maps a collector to its Prometheus type. Gauges are checked
// before counters since a Gauge also satisfies the Counter interface.
func metricType(c prometheus.Collector) string {
	switch c.(type) {
	case prometheus.Gauge, *prometheus.GaugeVec:
		return "GAUGE"
	case prometheus.Histogram, *prometheus.HistogramVec:
		return "HISTOGRAM"
	case prometheus.Counter, *prometheus.CounterVec:
		return "COUNTER"
	default:
		return "UNTYPED"
	}
}

// extractMetricsInfo extracts metric information from a Prometheus collector
func extractMetricsInfo(c prometheus.Collector) []MetricInfo {
	ch := make(chan *prometheus.Desc, 16)
	go func() {
		c.Describe(ch)
		close(ch)
	}()

	typ := metricType(c)
	var metrics []MetricInfo
	for desc := range ch {
		descStr := desc.String()
		fqNameMatch := fqNameRegex.FindStringSubmatch(descStr)
		helpMatch := helpRegex.FindStringSubmatch(descStr)
		if len(fqNameMatch) < 2 || len(helpMatch) < 2 {
			fmt.Fprintf(os.Stderr, "Warning: could not parse %s\n", descStr)
			continue
		}

		var labels []string
		if m := variableLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 && m[1] != "" {
			for _, l := range strings.Split(m[1], ",") {
				labels = append(labels, strings.TrimSpace(l))
			}
		}

		constLabels := map[string]string{}
		if m := constLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 && m[1] != "" {
			for _, pair := range labelPairRegex.FindAllStringSubmatch(m[1], -1) {
				constLabels[pair[1]] = pair[2]
			}
		}

		metrics = append(metrics, MetricInfo{
			Name:        fqNameMatch[1],
			Type:        typ,
			Description: helpMatch[1],
			Labels:      labels,
			ConstLabels: constLabels,
		})
	}
	return metrics
}

// generateMarkdown renders the metrics grouped by what they describe
func generateMarkdown(metrics []MetricInfo) string {
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	var md strings.Builder
	md.WriteString("# smi-telemetry Self Metrics\n\n")
	md.WriteString("Counters and gauges describing the collector itself: probes, sweeps and per-device read failures.\n\n")
	md.WriteString("### Metric Types\n\n")
	md.WriteString("- **COUNTER**: A cumulative metric that only increases over time\n")
	md.WriteString("- **GAUGE**: A metric that can increase and decrease\n")
	md.WriteString("- **HISTOGRAM**: Observations counted in configurable buckets\n\n")
	md.WriteString("## Metrics Reference\n\n")

	var device, sweep, other []MetricInfo
	for _, m := range metrics {
		switch {
		case slices.Contains(m.Labels, "device"):
			device = append(device, m)
		case strings.Contains(m.Name, "_sweep"):
			sweep = append(sweep, m)
		default:
			other = append(other, m)
		}
	}

	sections := []struct {
		title, intro string
		metrics      []MetricInfo
	}{
		{"Device Metrics", "Labelled by device index.", device},
		{"Sweep Metrics", "Updated once per sweep across all devices.", sweep},
		{"Other Metrics", "", other},
	}
	for _, s := range sections {
		if len(s.metrics) == 0 {
			continue
		}
		fmt.Fprintf(&md, "### %s\n\n", s.title)
		if s.intro != "" {
			fmt.Fprintf(&md, "%s\n\n", s.intro)
		}
		writeMetricsSection(&md, s.metrics)
	}

	md.WriteString("---\n\n")
	md.WriteString("This documentation was automatically generated by the gen-metric-docs tool.\n")
	return md.String()
}

func writeMetricsSection(md *strings.Builder, metrics []MetricInfo) {
	for _, metric := range metrics {
		fmt.Fprintf(md, "#### %s\n\n", metric.Name)
		fmt.Fprintf(md, "- **Type**: %s\n", metric.Type)
		fmt.Fprintf(md, "- **Description**: %s\n", metric.Description)
		if len(metric.Labels) > 0 {
			md.WriteString("- **Labels**:\n")
			for _, label := range metric.Labels {
				fmt.Fprintf(md, "  - `%s`\n", label)
			}
		}
		if len(metric.ConstLabels) > 0 {
			md.WriteString("- **Constant Labels**:\n")
			keys := make([]string, 0, len(metric.ConstLabels))
			for key := range metric.ConstLabels {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(md, "  - `%s`\n", key)
			}
		}
		md.WriteString("\n")
	}
}

func run(outputPath string) error {
	var all []MetricInfo
	for _, c := range observability.NewMetrics().Collectors() {
		all = append(all, extractMetricsInfo(c)...)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(generateMarkdown(all)), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}
	fmt.Printf("Wrote %d metrics to %s\n", len(all), outputPath)
	return nil
}

func main() {
	outputPath := flag.String("output", "docs/metrics.md", "Path to output Markdown file")
	flag.Parse()

	if err := run(*outputPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
