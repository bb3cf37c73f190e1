package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid re-exports cyncerrors.ErrConfigInvalid for callers that
// only import the config package.
var ErrConfigInvalid = cyncerrors.ErrConfigInvalid

// Config is the root configuration structure for cync-lan-core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	TCP        TCPConfig        `yaml:"tcp"`
	TLS        TLSConfig        `yaml:"tls"`
	CloudRelay CloudRelayConfig `yaml:"cloud_relay"`
	Roster     RosterConfig     `yaml:"roster"`
	Logging    LoggingConfig    `yaml:"log"`
	Perf       PerfConfig       `yaml:"perf"`
}

// MQTTConfig contains MQTT broker connection and topic settings.
type MQTTConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	User             string `yaml:"user"`
	Pass             string `yaml:"pass"`
	TopicPrefix      string `yaml:"topic_prefix"`
	DiscoveryPrefix  string `yaml:"discovery_prefix"`
	ClientID         string `yaml:"client_id"`
	RetryBufferSize  int    `yaml:"retry_buffer_size"`
}

// TCPConfig contains the device-facing TLS listener settings.
type TCPConfig struct {
	ListenHost      string `yaml:"listen_host"`
	ListenPort      int    `yaml:"listen_port"`
	MaxConnections  int    `yaml:"max_connections"`
}

// TLSConfig contains the server's own TLS identity.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CloudRelayConfig controls the optional transparent MITM relay mode.
type CloudRelayConfig struct {
	Enabled                bool   `yaml:"enabled"`
	ForwardToCloud         bool   `yaml:"forward_to_cloud"`
	CloudHost              string `yaml:"cloud_host"`
	CloudPort              int    `yaml:"cloud_port"`
	DebugPacketLogging     bool   `yaml:"debug_packet_logging"`
	DisableSSLVerification bool   `yaml:"disable_ssl_verification"`
}

// RosterConfig locates the YAML device/bridge/group roster file.
type RosterConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Debug           bool   `yaml:"debug"`
	Format          string `yaml:"format"` // json, human, both
	SlowThresholdMS int    `yaml:"-"`      // populated from Perf.ThresholdMS
}

// PerfConfig contains instrumentation thresholds.
type PerfConfig struct {
	ThresholdMS int `yaml:"threshold_ms"`
}

// Timeouts used throughout the protocol engine; not user-configurable per
// spec.md §5, but named here so every component shares one source of truth.
const (
	HandshakeTimeout  = 10 * time.Second
	AckTimeout        = 5 * time.Second
	WriteDrainTimeout = 2 * time.Second
	HeartbeatSilence  = 90 * time.Second
	MeshRefreshPeriod = 300 * time.Second
	BridgeSpacing     = 1 * time.Second
	PoolLogPeriod     = 30 * time.Second
)

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// Loading order: defaults -> YAML file -> environment variables.
// Environment variables follow the pattern CYNC_LAN_SECTION_KEY.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Logging.SlowThresholdMS = cfg.Perf.ThresholdMS

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults matching §6.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:            "localhost",
			Port:            1883,
			TopicPrefix:     "cync_lan",
			DiscoveryPrefix: "homeassistant",
			ClientID:        "cync-lan-core",
			RetryBufferSize: 256,
		},
		TCP: TCPConfig{
			ListenHost:     "0.0.0.0",
			ListenPort:     23779,
			MaxConnections: 256,
		},
		Roster: RosterConfig{
			Path: "./roster.yaml",
		},
		Logging: LoggingConfig{
			Format: "json",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern CYNC_LAN_*.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CYNC_LAN_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("CYNC_LAN_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Port = p
		}
	}
	if v := os.Getenv("CYNC_LAN_MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("CYNC_LAN_MQTT_PASS"); v != "" {
		cfg.MQTT.Pass = v
	}
	if v := os.Getenv("CYNC_LAN_TCP_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.TCP.ListenPort = p
		}
	}
	if v := os.Getenv("CYNC_LAN_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("CYNC_LAN_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("CYNC_LAN_ROSTER_PATH"); v != "" {
		cfg.Roster.Path = v
	}
	if v := os.Getenv("CYNC_LAN_CLOUD_RELAY_ENABLED"); v != "" {
		cfg.CloudRelay.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.TCP.ListenPort < 1 || c.TCP.ListenPort > 65535 {
		errs = append(errs, "tcp.listen_port must be between 1 and 65535")
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		errs = append(errs, "tls.cert_file and tls.key_file are required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.Roster.Path == "" {
		errs = append(errs, "roster.path is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "human", "both", "":
	default:
		errs = append(errs, "log.format must be one of json, human, both")
	}
	if c.CloudRelay.Enabled {
		if c.CloudRelay.CloudHost == "" {
			errs = append(errs, "cloud_relay.cloud_host is required when cloud_relay.enabled")
		}
		if c.CloudRelay.ForwardToCloud && c.CloudRelay.CloudPort < 1 {
			errs = append(errs, "cloud_relay.cloud_port must be set when forwarding to cloud")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
