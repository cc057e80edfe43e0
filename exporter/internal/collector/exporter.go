package collector

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/logging"
)

// family describes one gauge family the Collector can emit.
type family struct {
	name   string
	help   string
	labels []string
}

var families = []family{
	{MetricUp, "Whether the Jenkins API answered the last status query (1) or not (0).", []string{LabelVersion}},
	{MetricQueueOldestJobSince, "Seconds since the oldest item in the build queue was enqueued.", nil},
	{MetricPluginsEnabled, "Number of enabled plugins.", nil},
	{MetricPluginsEnabledWithUpdate, "Number of enabled plugins with an update available.", nil},
	{MetricSlaveUp, "Whether a build agent is online (1) or offline or temporarily offline (0).", []string{LabelDisplayName}},
}

// Exporter adapts a Collector to prometheus.Collector. Every Collect call
// runs a fresh collection cycle and emits one gauge per record.
type Exporter struct {
	collector *Collector
	descs     map[string]familyDesc
}

// familyDesc pairs a descriptor with its variable label names, in order.
type familyDesc struct {
	desc   *prometheus.Desc
	labels []string
}

// NewExporter returns an Exporter for c. Descriptors are keyed by the
// prefixed metric name.
func NewExporter(c *Collector) *Exporter {
	descs := make(map[string]familyDesc, len(families))
	for _, f := range families {
		name := c.prefix + "_" + f.name
		descs[name] = familyDesc{
			desc:   prometheus.NewDesc(name, f.help, f.labels, nil),
			labels: f.labels,
		}
	}
	return &Exporter{collector: c, descs: descs}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector. It is called synchronously by the
// registry on each scrape, possibly from several goroutines at once.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx := logging.WithCycle(context.Background(), uuid.NewString())

	for _, r := range e.collector.Records(ctx) {
		ch <- e.metric(ctx, r)
	}
}

// metric converts r into a constant gauge.
func (e *Exporter) metric(ctx context.Context, r Record) prometheus.Metric {
	fd, ok := e.descs[r.Name]
	if !ok {
		keys := sortedKeys(r.Labels)
		fd = familyDesc{desc: prometheus.NewDesc(r.Name, "", keys, nil), labels: keys}
		slog.WarnContext(ctx, "collector: record without a registered family", "name", r.Name)
	}
	desc, keys := fd.desc, fd.labels

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = r.Labels[k]
	}

	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, r.Value, values...)
	if err != nil {
		return prometheus.NewInvalidMetric(desc, err)
	}
	return m
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
