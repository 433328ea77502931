// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/log"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `ovs-nsh:` root key in YAML.
type GlobalConfig struct {
	Log      log.LoggerConfig `mapstructure:"log"`
	Buffer   BufferConfig     `mapstructure:"buffer"`
	Datapath DatapathConfig   `mapstructure:"datapath"`
	GSO      GSOConfig        `mapstructure:"gso"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Notify   NotifyConfig     `mapstructure:"notify"`
}

// BufferConfig sizes packet buffers.
type BufferConfig struct {
	Headroom int `mapstructure:"headroom"` // free bytes in front of received packets
	MaxSize  int `mapstructure:"max_size"` // largest single allocation; larger requests are out of memory
}

// DatapathConfig contains output path settings.
type DatapathConfig struct {
	MTU int `mapstructure:"mtu"`
}

// GSOConfig contains software segmentation settings.
type GSOConfig struct {
	SegmentSize int  `mapstructure:"segment_size"` // payload bytes per segment for packets read without GSO metadata
	MaxSegments int  `mapstructure:"max_segments"`
	HWChecksum  bool `mapstructure:"hw_checksum"` // advertise checksum offload to segmenters
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// NotifyConfig sizes the vport notification bus.
type NotifyConfig struct {
	Partitions int `mapstructure:"partitions"`
	QueueSize  int `mapstructure:"queue_size"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ovs-nsh: ...`.
type configRoot struct {
	OvsNSH GlobalConfig `mapstructure:"ovs-nsh"`
}

// Load loads configuration from file. An empty path yields the defaults.
// The YAML file uses `ovs-nsh:` as root key; env vars use the OVS_NSH_ prefix
// (e.g., OVS_NSH_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "ovs-nsh.log.level" → env "OVS_NSH_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.OvsNSH

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "ovs-nsh." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("ovs-nsh.log.level", log.DefaultLevel)
	v.SetDefault("ovs-nsh.log.pattern", log.DefaultPattern)
	v.SetDefault("ovs-nsh.log.time", log.DefaultTime)

	// Buffer defaults
	v.SetDefault("ovs-nsh.buffer.headroom", 128)
	v.SetDefault("ovs-nsh.buffer.max_size", 65536+4096)

	// Datapath defaults
	v.SetDefault("ovs-nsh.datapath.mtu", 1500)

	// GSO defaults
	v.SetDefault("ovs-nsh.gso.segment_size", 1460)
	v.SetDefault("ovs-nsh.gso.max_segments", 64)
	v.SetDefault("ovs-nsh.gso.hw_checksum", false)

	// Metrics defaults
	v.SetDefault("ovs-nsh.metrics.enabled", false)
	v.SetDefault("ovs-nsh.metrics.listen", ":9091")
	v.SetDefault("ovs-nsh.metrics.path", "/metrics")

	// Notify defaults
	v.SetDefault("ovs-nsh.notify.partitions", 4)
	v.SetDefault("ovs-nsh.notify.queue_size", 256)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrConfigInvalid)
}

// ValidateAndApplyDefaults validates configuration and fills in values that
// depend on other fields.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return invalid("invalid log level: %s", cfg.Log.Level)
	}
	if len(cfg.Log.Appenders) == 0 {
		cfg.Log.Appenders = []log.AppenderConfig{{Type: log.AppenderConsole}}
	}
	for i, a := range cfg.Log.Appenders {
		switch a.Type {
		case log.AppenderConsole:
		case log.AppenderFile:
			if a.File.Filename == "" {
				return invalid("log.appenders[%d]: file appender requires filename", i)
			}
		default:
			return invalid("log.appenders[%d]: unknown type %q (must be console/file)", i, a.Type)
		}
	}

	// ── Buffer ──
	if cfg.Buffer.Headroom < 0 {
		return invalid("buffer.headroom must not be negative")
	}
	if cfg.Buffer.MaxSize < 2048 {
		return invalid("buffer.max_size %d is below 2048", cfg.Buffer.MaxSize)
	}

	// ── Datapath ──
	if cfg.Datapath.MTU < 68 || cfg.Datapath.MTU > cfg.Buffer.MaxSize {
		return invalid("datapath.mtu %d out of range [68, %d]", cfg.Datapath.MTU, cfg.Buffer.MaxSize)
	}

	// ── GSO ──
	if cfg.GSO.SegmentSize <= 0 || cfg.GSO.SegmentSize > 65535 {
		return invalid("gso.segment_size %d out of range (0, 65535]", cfg.GSO.SegmentSize)
	}
	if cfg.GSO.MaxSegments <= 0 {
		return invalid("gso.max_segments must be positive")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return invalid("metrics.listen is required when metrics.enabled=true")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return invalid("metrics.path must start with '/'")
		}
	}

	// ── Notify ──
	if cfg.Notify.Partitions <= 0 {
		return invalid("notify.partitions must be positive")
	}
	if cfg.Notify.QueueSize <= 0 {
		return invalid("notify.queue_size must be positive")
	}
	return nil
}
