package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration of a hostsync invocation.
type Config struct {
	// ServiceName is the name reported in traces and metrics.
	ServiceName string `mapstructure:"serviceName"`

	// ServiceVersion is the version of the binary.
	ServiceVersion string `mapstructure:"serviceVersion"`

	// Logging contains logging configuration.
	Logging LoggingConfig `mapstructure:"logging"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Events contains progress event configuration.
	Events EventsConfig `mapstructure:"events"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `mapstructure:"level"`

	// Format specifies the log format (console, json).
	Format string `mapstructure:"format"`

	// Output is stderr, stdout or a file path.
	Output string `mapstructure:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `mapstructure:"enableCaller"`

	// NoColor disables colors in console output.
	NoColor bool `mapstructure:"noColor"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is otlp, stdout or none.
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the OTLP gRPC endpoint, for example "localhost:4317".
	Endpoint string `mapstructure:"endpoint"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `mapstructure:"samplingRate"`

	// ExportTimeout is the timeout for span export.
	ExportTimeout time.Duration `mapstructure:"exportTimeout"`

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string `mapstructure:"headers"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `mapstructure:"insecure"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool `mapstructure:"enabled"`

	// Namespace is the metrics namespace prefix.
	Namespace string `mapstructure:"namespace"`

	// TextfilePath is written on shutdown in the node_exporter textfile format.
	TextfilePath string `mapstructure:"textfilePath"`

	// ListenAddress serves /metrics while hostsync watch is running.
	ListenAddress string `mapstructure:"listenAddress"`

	// Buckets are the duration histogram buckets in seconds.
	Buckets []float64 `mapstructure:"buckets"`
}

// EventsConfig configures the progress event publisher.
type EventsConfig struct {
	// BufferSize is the size of the event buffer.
	BufferSize int `mapstructure:"bufferSize"`

	// MinLevel is the lowest event level (info, warning, error) written to the log.
	MinLevel string `mapstructure:"minLevel"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "hostsync",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       make(map[string]string),
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "hostsync",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		Events: EventsConfig{
			BufferSize: 256,
			MinLevel:   EventLevelInfo,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if _, ok := logLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("trace endpoint is required for the otlp exporter")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}
	if _, ok := eventLevels[c.Events.MinLevel]; !ok {
		return fmt.Errorf("invalid event level: %s", c.Events.MinLevel)
	}

	return nil
}
