package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Summary SummaryConfig `mapstructure:"summary"`
	Sensor  SensorConfig  `mapstructure:"sensor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress     string `mapstructure:"bind_address"`
	HTTPPort        int    `mapstructure:"http_port"`
	MetricsPort     int    `mapstructure:"metrics_port"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

// SessionConfig defines the run timer and state machine limits
type SessionConfig struct {
	Duration        string `mapstructure:"duration"`
	TickInterval    string `mapstructure:"tick_interval"` // Wall time of one counted second
	StepCap         int    `mapstructure:"step_cap"`
	DateLayout      string `mapstructure:"date_layout"`
	IdleEviction    string `mapstructure:"idle_eviction"`
	CleanupInterval string `mapstructure:"cleanup_interval"`
	EventBuffer     int    `mapstructure:"event_buffer"`
}

// SummaryConfig defines the summary handoff cache
type SummaryConfig struct {
	CacheSize int    `mapstructure:"cache_size"`
	CacheTTL  string `mapstructure:"cache_ttl"`
}

// SensorConfig defines step detector behavior
type SensorConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Required bool `mapstructure:"required"` // Refuse sessions when no detector is present
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. An empty
// path uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.shutdown_timeout", "10s")

	// Session defaults
	v.SetDefault("session.duration", "5m")
	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.step_cap", 99999)
	v.SetDefault("session.date_layout", "02/01/2006")
	v.SetDefault("session.idle_eviction", "1h")
	v.SetDefault("session.cleanup_interval", "5m")
	v.SetDefault("session.event_buffer", 64)

	// Summary defaults
	v.SetDefault("summary.cache_size", 256)
	v.SetDefault("summary.cache_ttl", "1h")

	// Sensor defaults
	v.SetDefault("sensor.enabled", true)
	v.SetDefault("sensor.required", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if err := validPort("server.http_port", cfg.Server.HTTPPort); err != nil {
		return err
	}
	if err := validPort("server.metrics_port", cfg.Server.MetricsPort); err != nil {
		return err
	}

	duration, err := time.ParseDuration(cfg.Session.Duration)
	if err != nil {
		return fmt.Errorf("session.duration: %w", err)
	}
	interval, err := time.ParseDuration(cfg.Session.TickInterval)
	if err != nil {
		return fmt.Errorf("session.tick_interval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("session.tick_interval must be positive")
	}
	if duration < time.Second {
		return fmt.Errorf("session.duration must be at least one second")
	}
	if duration%time.Second != 0 {
		return fmt.Errorf("session.duration must be a whole number of seconds, got %s", duration)
	}

	if cfg.Session.StepCap <= 0 {
		return fmt.Errorf("session.step_cap must be positive")
	}
	if cfg.Session.DateLayout == "" {
		return fmt.Errorf("session.date_layout must not be empty")
	}
	for _, key := range []struct{ name, value string }{
		{"session.idle_eviction", cfg.Session.IdleEviction},
		{"session.cleanup_interval", cfg.Session.CleanupInterval},
		{"summary.cache_ttl", cfg.Summary.CacheTTL},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
	} {
		if _, err := time.ParseDuration(key.value); err != nil {
			return fmt.Errorf("%s: %w", key.name, err)
		}
	}

	if cfg.Summary.CacheSize <= 0 {
		return fmt.Errorf("summary.cache_size must be positive")
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	return nil
}

func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
