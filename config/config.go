package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"camviewer/strutil"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config path when the flag is left at its default.
const EnvConfigPath = "CAMVIEWER_CONFIG"

// DefaultStreamNames is the fixed stream set an OAK camera service publishes.
var DefaultStreamNames = []string{"rgb", "disparity", "left", "right"}

// ErrServiceNotFound reports a camera service name with no configuration.
var ErrServiceNotFound = errors.New("service config not found")

// Config represents the complete viewer configuration
type Config struct {
	Services []ServiceConfig `yaml:"services"`
	Streams  StreamsConfig   `yaml:"streams"`
	UI       UIConfig        `yaml:"ui"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`

	LoadedFrom string `yaml:"-"`
}

// ServiceConfig describes how to reach one camera event service.
type ServiceConfig struct {
	Name                  string               `yaml:"name"`
	Host                  string               `yaml:"host"`
	Port                  int                  `yaml:"port"`
	TopicPrefix           string               `yaml:"topic_prefix"`
	ClientID              string               `yaml:"client_id"`
	Username              string               `yaml:"username"`
	Password              string               `yaml:"password"`
	QoS                   byte                 `yaml:"qos"`
	AutoReconnect         bool                 `yaml:"auto_reconnect"`
	ConnectTimeoutSeconds int                  `yaml:"connect_timeout_seconds"`
	Subscriptions         []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig is one default subscription entry of a service.
type SubscriptionConfig struct {
	Path   string `yaml:"path"`
	EveryN int    `yaml:"every_n"`
}

// StreamsConfig selects which streams are shown and how they are gated.
type StreamsConfig struct {
	Names              []string `yaml:"names"`
	Default            string   `yaml:"default"`
	SkipInactiveDecode bool     `yaml:"skip_inactive_decode"`
	ShutdownGraceMS    int      `yaml:"shutdown_grace_ms"`
	MaxFramePixels     int      `yaml:"max_frame_pixels"`
}

// UIConfig contains display settings
type UIConfig struct {
	Mode           string `yaml:"mode"`
	TargetFPS      int    `yaml:"target_fps"`
	FlipVertical   bool   `yaml:"flip_vertical"`
	FlipHorizontal bool   `yaml:"flip_horizontal"`
	LogLines       int    `yaml:"log_lines"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	cfg.LoadedFrom = filename
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Services {
		s := &c.Services[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Host == "" {
			s.Host = "localhost"
		}
		if s.Port <= 0 {
			s.Port = 1883
		}
		if s.TopicPrefix == "" {
			s.TopicPrefix = s.Name
		}
		if s.ClientID == "" {
			s.ClientID = "camviewer"
		}
		if s.ConnectTimeoutSeconds <= 0 {
			s.ConnectTimeoutSeconds = 10
		}
	}
	if len(c.Streams.Names) == 0 {
		c.Streams.Names = append([]string(nil), DefaultStreamNames...)
	}
	for i, name := range c.Streams.Names {
		c.Streams.Names[i] = strutil.NormalizeLower(name)
	}
	c.Streams.Default = strutil.NormalizeLower(c.Streams.Default)
	if c.Streams.Default == "" {
		c.Streams.Default = c.Streams.Names[0]
	}
	if c.Streams.ShutdownGraceMS <= 0 {
		c.Streams.ShutdownGraceMS = 2000
	}
	if c.Streams.MaxFramePixels <= 0 {
		c.Streams.MaxFramePixels = 4096 * 4096
	}
	c.UI.Mode = strutil.NormalizeLower(c.UI.Mode)
	if c.UI.Mode == "" {
		c.UI.Mode = "tview"
	}
	if c.UI.TargetFPS <= 0 {
		c.UI.TargetFPS = 30
	}
	if c.UI.LogLines <= 0 {
		c.UI.LogLines = 200
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Streams.Names))
	for _, name := range c.Streams.Names {
		if name == "" {
			return fmt.Errorf("streams.names: empty stream name")
		}
		if seen[name] {
			return fmt.Errorf("streams.names: duplicate stream %q", name)
		}
		seen[name] = true
	}
	if !seen[c.Streams.Default] {
		return fmt.Errorf("streams.default: %q is not a configured stream%s", c.Streams.Default, strutil.DidYouMean(c.Streams.Default, c.Streams.Names))
	}
	services := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if services[s.Name] {
			return fmt.Errorf("services: duplicate service %q", s.Name)
		}
		services[s.Name] = true
		if s.QoS > 2 {
			return fmt.Errorf("services[%s]: qos must be 0, 1 or 2", s.Name)
		}
		for _, sub := range s.Subscriptions {
			if sub.EveryN < 0 {
				return fmt.Errorf("services[%s]: every_n must not be negative", s.Name)
			}
		}
	}
	switch c.UI.Mode {
	case "tview", "headless":
	default:
		return fmt.Errorf("ui.mode: unknown mode %q (want tview or headless)", c.UI.Mode)
	}
	return nil
}

// Lookup resolves a service by name. Missing names wrap ErrServiceNotFound.
func (c *Config) Lookup(name string) (ServiceConfig, error) {
	name = strings.TrimSpace(name)
	names := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		if s.Name == name {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return ServiceConfig{}, fmt.Errorf("%w: no %q service in %s%s", ErrServiceNotFound, name, c.source(), strutil.DidYouMean(name, names))
}

func (c *Config) source() string {
	if c.LoadedFrom == "" {
		return "config"
	}
	return c.LoadedFrom
}

// BrokerURL returns the MQTT broker address of the service.
func (s ServiceConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", s.Host, s.Port)
}

// DefaultEveryN returns the sampling interval of the first configured
// subscription, or 1 when none is set.
func (s ServiceConfig) DefaultEveryN() int {
	if len(s.Subscriptions) > 0 && s.Subscriptions[0].EveryN > 0 {
		return s.Subscriptions[0].EveryN
	}
	return 1
}

// Topic joins the service prefix and a stream path into an MQTT topic.
func (s ServiceConfig) Topic(path string) string {
	prefix := strings.TrimRight(s.TopicPrefix, "/")
	path = "/" + strings.TrimLeft(path, "/")
	if prefix == "" {
		return strings.TrimLeft(path, "/")
	}
	return prefix + path
}

// Print displays the configuration
func (c *Config) Print() {
	for _, s := range c.Services {
		fmt.Printf("Service %s: %s (prefix %s, every_n=%d)\n", s.Name, s.BrokerURL(), s.TopicPrefix, s.DefaultEveryN())
	}
	fmt.Printf("Streams: %s (default %s)\n", strings.Join(c.Streams.Names, ", "), c.Streams.Default)
	fmt.Printf("UI: %s at %d fps\n", c.UI.Mode, c.UI.TargetFPS)
}
