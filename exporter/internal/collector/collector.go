package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/jenkins"
)

// Base metric names, before the configured prefix is applied.
const (
	MetricUp                       = "up"
	MetricQueueOldestJobSince      = "queue_oldest_job_since_seconds"
	MetricPluginsEnabled           = "plugins_enabled_count"
	MetricPluginsEnabledWithUpdate = "plugins_enabled_with_update_count"
	MetricSlaveUp                  = "slave_up"
)

// Label names attached to records.
const (
	LabelVersion     = "version"
	LabelDisplayName = "display_name"
)

// Record is one metric data point produced by a collection cycle.
// A nil Labels map is the same as an empty one.
type Record struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// API is the subset of the Jenkins client used by the Collector.
type API interface {
	Queue(ctx context.Context) (*jenkins.Queue, *jenkins.Response, bool)
	Plugins(ctx context.Context) (*jenkins.PluginList, bool)
	Computers(ctx context.Context) (*jenkins.ComputerSet, bool)
}

// Collector turns Jenkins API responses into metric records.
//
// It keeps no state between cycles, so Records may be called from several
// goroutines at once; the API implementation is responsible for its own
// synchronization.
type Collector struct {
	api    API
	prefix string
	now    func() time.Time // injectable for deterministic tests
}

// New returns a Collector reading from api and prefixing every metric name
// with prefix + "_".
func New(api API, prefix string) *Collector {
	return &Collector{
		api:    api,
		prefix: prefix,
		now:    time.Now,
	}
}

// Records runs one collection cycle: status, queue, plugins and agents, in
// that order. Each step issues its own request and a failed step never stops
// the others. The returned names are prefixed.
func (c *Collector) Records(ctx context.Context) []Record {
	start := c.now()

	var recs []Record
	recs = append(recs, c.statusRecords(ctx)...)
	recs = append(recs, c.queueRecords(ctx)...)
	recs = append(recs, c.pluginRecords(ctx)...)
	recs = append(recs, c.agentRecords(ctx)...)

	for i := range recs {
		recs[i].Name = c.prefix + "_" + recs[i].Name
	}

	slog.DebugContext(ctx, "collector: cycle complete",
		"records", len(recs),
		"duration", c.now().Sub(start),
	)
	return recs
}

// statusRecords reports up=1 with the Jenkins version when the queue endpoint
// answers, and up=0 with an empty version otherwise.
func (c *Collector) statusRecords(ctx context.Context) []Record {
	_, resp, ok := c.api.Queue(ctx)
	if !ok {
		return []Record{{Name: MetricUp, Value: 0, Labels: map[string]string{LabelVersion: ""}}}
	}
	return []Record{{Name: MetricUp, Value: 1, Labels: map[string]string{LabelVersion: resp.Version}}}
}

// queueRecords reports how long the oldest queued item has been waiting.
// Nothing is emitted when the queue endpoint fails.
func (c *Collector) queueRecords(ctx context.Context) []Record {
	q, _, ok := c.api.Queue(ctx)
	if !ok {
		return nil
	}

	var since float64
	if oldest, ok := q.OldestSince(); ok && oldest > 0 {
		// Clock skew can make this negative; it is reported as-is.
		since = float64(c.now().UnixMilli()-oldest) / 1000
	}
	return []Record{{Name: MetricQueueOldestJobSince, Value: since}}
}

// pluginRecords counts enabled plugins and enabled plugins with an update.
func (c *Collector) pluginRecords(ctx context.Context) []Record {
	pl, ok := c.api.Plugins(ctx)
	if !ok {
		return nil
	}

	var enabled, withUpdate int
	for _, p := range pl.Plugins {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.HasUpdate {
			withUpdate++
		}
	}
	return []Record{
		{Name: MetricPluginsEnabled, Value: float64(enabled)},
		{Name: MetricPluginsEnabledWithUpdate, Value: float64(withUpdate)},
	}
}

// agentRecords reports slave_up per build agent, labelled by display name.
// The controller node is skipped.
func (c *Collector) agentRecords(ctx context.Context) []Record {
	cs, ok := c.api.Computers(ctx)
	if !ok {
		return nil
	}

	agents := cs.Agents()
	recs := make([]Record, 0, len(agents))
	for _, a := range agents {
		var v float64
		if a.Up() {
			v = 1
		}
		recs = append(recs, Record{
			Name:   MetricSlaveUp,
			Value:  v,
			Labels: map[string]string{LabelDisplayName: a.DisplayName},
		})
	}
	return recs
}
