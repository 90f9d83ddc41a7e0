package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the tracker's full configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Channel  ChannelConfig  `yaml:"channel"`
	Hub      HubConfig      `yaml:"hub"`
	Broker   BrokerConfig   `yaml:"broker"`
	Assets   AssetsConfig   `yaml:"assets"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Learning LearningConfig `yaml:"learning"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ChannelConfig is the source channel endpoint.
type ChannelConfig struct {
	Path            string        `yaml:"path"`
	Secret          string        `yaml:"secret"`
	MinVersion      string        `yaml:"min_version"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	DatabaseZipWait time.Duration `yaml:"database_zip_wait"`
}

// HubConfig tunes the hub's windows.
type HubConfig struct {
	DebounceWindow   time.Duration `yaml:"debounce_window"`
	RerequestWindow  time.Duration `yaml:"rerequest_window"`
	RecentLoadWindow time.Duration `yaml:"recent_load_window"`
}

// BrokerConfig tunes display fan-out.
type BrokerConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// AssetsConfig places the extracted asset tree.
type AssetsConfig struct {
	Root string `yaml:"root"`
}

// UpstreamConfig points the reverse proxy at the controller.
type UpstreamConfig struct {
	URL string `yaml:"url"`
}

// LearningConfig controls frame capture.
type LearningConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8096},
		Channel: ChannelConfig{
			Path:            "/ws",
			MinVersion:      "2.0.0",
			IdleTimeout:     120 * time.Second,
			DatabaseZipWait: 5 * time.Second,
		},
		Hub: HubConfig{
			DebounceWindow:   100 * time.Millisecond,
			RerequestWindow:  time.Second,
			RecentLoadWindow: 2 * time.Second,
		},
		Broker: BrokerConfig{QueueSize: 64, Heartbeat: 25 * time.Second},
		Assets: AssetsConfig{Root: "assets"},
		Learning: LearningConfig{Dir: "samples"},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the sensitive knobs without a
// config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRACKER_SECRET"); v != "" {
		c.Channel.Secret = v
	}
	if v := os.Getenv("TRACKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("TRACKER_UPSTREAM"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("TRACKER_LEARNING"); v != "" {
		c.Learning.Enabled = v == "1" || v == "true"
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Channel.Path == "" || c.Channel.Path[0] != '/' {
		return fmt.Errorf("channel path must start with /, got %q", c.Channel.Path)
	}
	if c.Hub.DebounceWindow < 0 || c.Hub.RerequestWindow < 0 {
		return fmt.Errorf("hub windows must not be negative")
	}
	if c.Broker.QueueSize < 0 {
		return fmt.Errorf("broker queue_size must not be negative")
	}
	if c.Assets.Root == "" {
		return fmt.Errorf("assets root cannot be empty")
	}
	return nil
}
