package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/telemetry"
)

// Environment variable prefix for hostsync configuration.
const envPrefix = "HOSTSYNC"

// Loader handles loading and merging configuration from defaults, the
// config file and the environment, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader with every default registered.
func NewLoader() (*Loader, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("manifestDir", envPrefix+"_MANIFEST_DIR")
	_ = v.BindEnv("systemManifestDir", envPrefix+"_SYSTEM_MANIFEST_DIR")
	_ = v.BindEnv("historyPath", envPrefix+"_HISTORY_PATH")
	_ = v.BindEnv("logging.level", envPrefix+"_LOG_LEVEL")

	setDefaults(v, paths, telemetry.DefaultConfig())

	return &Loader{v: v}, nil
}

// setDefaults registers a default for every key so that environment
// variables are picked up on Unmarshal.
func setDefaults(v *viper.Viper, paths *Paths, tel *telemetry.Config) {
	v.SetDefault("manifestDir", paths.ManifestDir)
	v.SetDefault("systemManifestDir", paths.SystemManifestDir)
	v.SetDefault("mode", string(engine.ContextModeUser))
	v.SetDefault("shimDir", paths.ShimDir)
	v.SetDefault("historyPath", paths.HistoryPath)
	v.SetDefault("historyKeep", 200)
	v.SetDefault("policyDirs", []string{paths.SystemPolicyDir, paths.PolicyDir})
	v.SetDefault("protectedUnits", []string{})
	v.SetDefault("disabledPolicies", []string{})

	v.SetDefault("serviceName", tel.ServiceName)
	v.SetDefault("serviceVersion", tel.ServiceVersion)

	v.SetDefault("logging.level", tel.Logging.Level)
	v.SetDefault("logging.format", tel.Logging.Format)
	v.SetDefault("logging.output", tel.Logging.Output)
	v.SetDefault("logging.enableCaller", tel.Logging.EnableCaller)
	v.SetDefault("logging.noColor", tel.Logging.NoColor)

	v.SetDefault("tracing.enabled", tel.Tracing.Enabled)
	v.SetDefault("tracing.exporter", tel.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", tel.Tracing.Endpoint)
	v.SetDefault("tracing.samplingRate", tel.Tracing.SamplingRate)
	v.SetDefault("tracing.exportTimeout", tel.Tracing.ExportTimeout)
	v.SetDefault("tracing.headers", tel.Tracing.Headers)
	v.SetDefault("tracing.insecure", tel.Tracing.Insecure)

	v.SetDefault("metrics.enabled", tel.Metrics.Enabled)
	v.SetDefault("metrics.namespace", tel.Metrics.Namespace)
	v.SetDefault("metrics.textfilePath", tel.Metrics.TextfilePath)
	v.SetDefault("metrics.listenAddress", tel.Metrics.ListenAddress)
	v.SetDefault("metrics.buckets", tel.Metrics.Buckets)

	v.SetDefault("events.bufferSize", tel.Events.BufferSize)
	v.SetDefault("events.minLevel", tel.Events.MinLevel)
}

// Set overrides a key, typically from a command-line flag.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Load loads configuration from the given file path. If configFile is
// empty, the default file is used and a missing file is not an error.
// Environment variables take precedence over file values.
func (l *Loader) Load(configFile string) (*Settings, error) {
	explicit := configFile != ""
	if !explicit {
		var err error
		configFile, err = GetConfigFile()
		if err != nil {
			return nil, fmt.Errorf("getting config file path: %w", err)
		}
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	l.v.SetConfigFile(expandedPath)
	l.v.SetConfigType("yaml")

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || explicit {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := s.expand(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &s, nil
}

// ConfigFileUsed returns the file the settings were read from, or "".
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Dump renders the effective configuration as YAML.
func (l *Loader) Dump() ([]byte, error) {
	data, err := yaml.Marshal(l.v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
