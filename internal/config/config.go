package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend    Backend    `mapstructure:"backend"`
	State      State      `mapstructure:"state"`
	Web        Web        `mapstructure:"web"`
	Monitoring Monitoring `mapstructure:"monitoring"`
	History    History    `mapstructure:"history"`
	Logging    Logging    `mapstructure:"logging"`
}

// Backend holds the remote flashing-backend endpoint settings
type Backend struct {
	URL        string `mapstructure:"url"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// State holds the store's buffer capacities
type State struct {
	LatencyCapacity int `mapstructure:"latency_capacity"`
	LogCapacity     int `mapstructure:"log_capacity"`
}

// Web holds local web interface settings
type Web struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Monitoring holds host metrics sampling settings
type Monitoring struct {
	UpdateInterval      time.Duration `mapstructure:"update_interval"`
	CPUSmoothingSamples int           `mapstructure:"cpu_smoothing_samples"`
}

// History holds the SQLite history sink settings
type History struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Logging holds logging settings
type Logging struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file or uses defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.flashdash")
		v.AddConfigPath("/etc/flashdash")
	}

	v.SetEnvPrefix("FLASHDASH")
	v.AutomaticEnv()

	// Config file is optional; defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.url", "ws://localhost:8765/ws")
	v.SetDefault("backend.max_retries", 5)

	// State buffer defaults
	v.SetDefault("state.latency_capacity", 100)
	v.SetDefault("state.log_capacity", 500)

	// Web defaults
	v.SetDefault("web.host", "localhost")
	v.SetDefault("web.port", 8090)

	// Monitoring defaults
	v.SetDefault("monitoring.update_interval", "2s")
	v.SetDefault("monitoring.cpu_smoothing_samples", 3)

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "flashdash.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL not configured")
	}

	if !strings.HasPrefix(c.Backend.URL, "ws://") && !strings.HasPrefix(c.Backend.URL, "wss://") {
		return fmt.Errorf("backend URL must use ws:// or wss://: %s", c.Backend.URL)
	}

	if c.Backend.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}

	if c.State.LatencyCapacity < 1 || c.State.LogCapacity < 1 {
		return fmt.Errorf("buffer capacities must be at least 1")
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Web.Port)
	}

	return nil
}
