package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/framing"
	"github.com/c360/sensorfusion/fusion"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FUSION"

// Loader handles configuration loading with layers and overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file on top of the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, each layer and the environment overrides, in
// that order.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
				"Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode merged configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "apply environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the built-in configuration: three sensor subscribers on
// loopback, the command publisher bound on all interfaces and the tablet
// TCP channel on port 8051.
func Defaults() *Config {
	return &Config{
		Process: ProcessConfig{
			Name:            "fusiond",
			LogLevel:        "info",
			LogFormat:       "json",
			MetricsAddr:     ":9090",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Subscribers: map[string]ChannelConfig{
			KindTagScan:  sensor(KindTagScan, "tcp://127.0.0.1:5551"),
			KindDistance: sensor(KindDistance, "tcp://127.0.0.1:5552"),
			KindVolume:   sensor(KindVolume, "tcp://127.0.0.1:5553"),
		},
		Publishers: map[string]ChannelConfig{
			KindCommand: {
				Endpoint:         "tcp://*:5560",
				Topic:            KindCommand,
				Kind:             KindCommand,
				QueueCapacity:    bus.DefaultQueueCapacity,
				ReconnectBackoff: Duration(bus.DefaultReconnectBackoff),
			},
		},
		TCP: TCPConfig{
			Enabled:       true,
			Bind:          "0.0.0.0",
			Port:          8051,
			RingCapacity:  framing.DefaultCapacity,
			Discriminator: framing.DefaultDiscriminator,
			Lookahead:     framing.DefaultLookahead,
			PollTimeout:   Duration(100 * time.Millisecond),
		},
		Thresholds: fusion.Thresholds{
			ForkHeightMM:     1500,
			TargetDistanceMM: 800,
		},
		Decision: DecisionConfig{
			Interval: Duration(fusion.DefaultInterval),
		},
	}
}

func sensor(kind, endpoint string) ChannelConfig {
	return ChannelConfig{
		Endpoint:         endpoint,
		Topic:            kind,
		Kind:             kind,
		QueueCapacity:    bus.DefaultQueueCapacity,
		PollTimeout:      Duration(bus.DefaultPollTimeout),
		ReconnectBackoff: Duration(bus.DefaultReconnectBackoff),
	}
}

func loadRaw(path string) (map[string]any, error) {
	data, f, err := readLayer(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		// Round trip through JSON so nested maps share the JSON shapes.
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("unsupported YAML value: %w", err)
		}
		raw = nil
		if err := json.Unmarshal(encoded, &raw); err != nil {
			return nil, err
		}
	default:
		if err := validateNesting(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deepMergeMaps merges override into base. Nested maps merge recursively.
// An explicit null removes the key, which is how a layer drops a default
// channel.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			delete(result, k)
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	texts := []struct {
		name   string
		target *string
	}{
		{"LOG_LEVEL", &cfg.Process.LogLevel},
		{"LOG_FORMAT", &cfg.Process.LogFormat},
		{"METRICS_ADDR", &cfg.Process.MetricsAddr},
		{"TCP_BIND", &cfg.TCP.Bind},
	}
	for _, s := range texts {
		val, ok, err := lookup(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	if val, ok, err := lookup("TCP_PORT"); err != nil {
		return err
	} else if ok {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_TCP_PORT: %w", l.envPrefix, err)
		}
		cfg.TCP.Port = port
	}

	durations := []struct {
		name   string
		target *Duration
	}{
		{"DECISION_INTERVAL", &cfg.Decision.Interval},
		{"SHUTDOWN_TIMEOUT", &cfg.Process.ShutdownTimeout},
	}
	for _, d := range durations {
		val, ok, err := lookup(d.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, d.name, err)
		}
		*d.target = Duration(parsed)
	}
	return nil
}

// SaveToFile writes the configuration in the format its extension names.
func (c *Config) SaveToFile(path string) error {
	f, err := formatOf(path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "choose format")
	}

	var data []byte
	if f == formatYAML {
		data, err = yaml.Marshal(c)
	} else {
		data, err = c.MarshalIndentJSON()
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}
	return persistLayer(path, data)
}
