package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/logging"
)

// Default values applied when fields are absent from both the config file
// and the environment.
const (
	DefaultMetricsPrefix  = "jenkins"
	DefaultPort           = 8000
	DefaultLogLevel       = "INFO"
	DefaultMetricsPath    = "/metrics"
	DefaultRequestTimeout = 5 * time.Second
	DefaultLockTimeout    = 30 * time.Second
)

// Environment variables read by Load. They take precedence over the file.
const (
	EnvJenkinsURL         = "JENKINS_URL"
	EnvJenkinsUser        = "JENKINS_USER"
	EnvJenkinsPass        = "JENKINS_PASS"
	EnvInsecureSkipVerify = "JENKINS_INSECURE_SKIP_VERIFY"
	EnvRequestTimeout     = "JENKINS_REQUEST_TIMEOUT"
	EnvLockTimeout        = "JENKINS_LOCK_TIMEOUT"
	EnvMetricsPrefix      = "METRICS_PREFIX"
	EnvExporterPort       = "EXPORTER_PORT"
	EnvLogLevel           = "EXPORTER_LOG_LEVEL"
	EnvMetricsPath        = "EXPORTER_METRICS_PATH"
)

// Config is the top-level exporter configuration.
// It is built once at startup and must not be modified afterwards.
type Config struct {
	Jenkins  JenkinsConfig  `yaml:"jenkins"`
	Exporter ExporterConfig `yaml:"exporter"`
}

// JenkinsConfig describes the Jenkins instance being polled.
type JenkinsConfig struct {
	// URL is the base URL of Jenkins, e.g. https://ci.example.com.
	// A trailing slash is trimmed on load.
	URL string `yaml:"url"`

	// Username and Password enable HTTP basic auth. Both or neither.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// RequestTimeout bounds each individual API call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LockTimeout bounds how long a request waits for the shared client.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// TLSConfig holds TLS dial options for the Jenkins endpoint.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for self-signed certificates on internal instances.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ExporterConfig holds the settings of the exposition side.
type ExporterConfig struct {
	// MetricsPrefix is prepended with "_" to every exported metric name.
	MetricsPrefix string `yaml:"metrics_prefix"`

	// Port is the TCP port the metrics server listens on.
	Port int `yaml:"port"`

	// LogLevel is one of DEBUG, INFO, WARN(ING), ERROR, CRITICAL.
	LogLevel string `yaml:"log_level"`

	// MetricsPath is the route serving the exposition format.
	MetricsPath string `yaml:"metrics_path"`
}

// Addr returns the listen address for the metrics server.
func (e ExporterConfig) Addr() string {
	return fmt.Sprintf(":%d", e.Port)
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the process environment, in increasing order of precedence.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// lookupFunc matches os.LookupEnv so tests can supply a fixed environment.
type lookupFunc func(key string) (string, bool)

func load(path string, lookup lookupFunc) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Jenkins.URL = strings.TrimRight(strings.TrimSpace(cfg.Jenkins.URL), "/")

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Jenkins: JenkinsConfig{
			RequestTimeout: DefaultRequestTimeout,
			LockTimeout:    DefaultLockTimeout,
		},
		Exporter: ExporterConfig{
			MetricsPrefix: DefaultMetricsPrefix,
			Port:          DefaultPort,
			LogLevel:      DefaultLogLevel,
			MetricsPath:   DefaultMetricsPath,
		},
	}
}

// applyEnv overrides cfg with every variable that is set in the environment.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvJenkinsURL); ok {
		cfg.Jenkins.URL = v
	}
	if v, ok := lookup(EnvJenkinsUser); ok {
		cfg.Jenkins.Username = v
	}
	if v, ok := lookup(EnvJenkinsPass); ok {
		cfg.Jenkins.Password = v
	}
	if v, ok := lookup(EnvInsecureSkipVerify); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInsecureSkipVerify, err)
		}
		cfg.Jenkins.TLS.InsecureSkipVerify = b
	}
	if v, ok := lookup(EnvRequestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRequestTimeout, err)
		}
		cfg.Jenkins.RequestTimeout = d
	}
	if v, ok := lookup(EnvLockTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		cfg.Jenkins.LockTimeout = d
	}
	if v, ok := lookup(EnvMetricsPrefix); ok && v != "" {
		cfg.Exporter.MetricsPrefix = v
	}
	if v, ok := lookup(EnvExporterPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvExporterPort, err)
		}
		cfg.Exporter.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Exporter.LogLevel = v
	}
	if v, ok := lookup(EnvMetricsPath); ok && v != "" {
		cfg.Exporter.MetricsPath = v
	}
	return nil
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Jenkins.URL == "" {
		return fmt.Errorf("jenkins.url is required (or set %s)", EnvJenkinsURL)
	}
	u, err := url.Parse(cfg.Jenkins.URL)
	if err != nil {
		return fmt.Errorf("jenkins.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("jenkins.url %q must be an absolute http(s) URL", cfg.Jenkins.URL)
	}
	if (cfg.Jenkins.Username == "") != (cfg.Jenkins.Password == "") {
		return fmt.Errorf("jenkins.username and jenkins.password must be set together")
	}
	if cfg.Jenkins.RequestTimeout <= 0 {
		return fmt.Errorf("jenkins.request_timeout must be positive")
	}
	if cfg.Jenkins.LockTimeout <= 0 {
		return fmt.Errorf("jenkins.lock_timeout must be positive")
	}
	if !model.MetricNameRE.MatchString(cfg.Exporter.MetricsPrefix) {
		return fmt.Errorf("exporter.metrics_prefix %q is not a valid metric name", cfg.Exporter.MetricsPrefix)
	}
	if cfg.Exporter.Port < 1 || cfg.Exporter.Port > 65535 {
		return fmt.Errorf("exporter.port %d out of range", cfg.Exporter.Port)
	}
	if _, err := logging.ParseLevel(cfg.Exporter.LogLevel); err != nil {
		return fmt.Errorf("exporter.log_level: %w", err)
	}
	if !strings.HasPrefix(cfg.Exporter.MetricsPath, "/") || cfg.Exporter.MetricsPath == "/healthz" {
		return fmt.Errorf("exporter.metrics_path %q must start with / and not collide with /healthz", cfg.Exporter.MetricsPath)
	}
	return nil
}
