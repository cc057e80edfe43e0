// Package collector turns Jenkins API responses into Prometheus gauges.
//
// Collector.Records(ctx) runs one collection cycle against the API in a
// fixed order, each step isolated from the others' failures:
//
//	up                                 /queue         1 + version, or 0 + ""
//	queue_oldest_job_since_seconds     /queue         omitted on failure
//	plugins_enabled_count              /pluginManager omitted on failure
//	plugins_enabled_with_update_count  /pluginManager omitted on failure
//	slave_up{display_name}             /computer      one per build agent
//
// Every name is prefixed with "<prefix>_". Exporter wraps a Collector as a
// prometheus.Collector so a registry can run a cycle on each scrape; each
// cycle gets a UUID that is attached to its log records.
package collector
