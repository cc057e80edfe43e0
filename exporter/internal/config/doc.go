// Package config builds the exporter configuration.
//
// Top-level types:
//   - Config{Jenkins, Exporter}: full settings tree
//   - JenkinsConfig: url, username/password, tls, request_timeout, lock_timeout
//   - ExporterConfig: metrics_prefix, port, log_level, metrics_path
//
// Load(path) starts from defaults (prefix "jenkins", port 8000, level INFO,
// 5s request timeout, 30s lock timeout), overlays the optional YAML file and
// then the JENKINS_* / METRICS_PREFIX / EXPORTER_* environment variables,
// and validates the result. The returned Config is treated as immutable.
//
// Watch(ctx, path, onChange) uses fsnotify to re-load the file on change.
// The binary only applies the log level from reloaded configs.
package config
