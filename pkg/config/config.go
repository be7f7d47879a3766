// Package config loads and validates the infinityctl configuration file:
// account credentials, zone aliases, API tuning, and monitor settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Zones       map[string]string `mapstructure:"zones" yaml:"zones,omitempty"`
	API         APIConfig         `mapstructure:"api" yaml:"api"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// CredentialsConfig holds the Carrier/Bryant account credentials
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// APIConfig holds transport settings for the vendor cloud API
type APIConfig struct {
	// BaseURL overrides the production API host, mainly for testing
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	// Timeout bounds each HTTP request
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// SettleDelay is the pause between the two pushes of a hold
	// transition; the thermostat needs time to process the hold-off edge
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// MonitorConfig holds settings for the monitor and log commands
type MonitorConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	CSVPath    string        `mapstructure:"csv_path" yaml:"csv_path"`
	SQLitePath string        `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`
	HealthPort int           `mapstructure:"health_port" yaml:"health_port,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "infinityctl", "config.yaml")
}

// Load reads configuration from the given file (or the default location
// when path is empty), applies INFINITYCTL_* environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(DefaultPath())
	}

	v.SetEnvPrefix("INFINITYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine as long as the environment supplies the
		// credentials; anything else is a real error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so environment overrides bind even when
// the config file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.settle_delay", 3*time.Second)
	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.csv_path", "hvac_status.csv")
	v.SetDefault("monitor.sqlite_path", "")
	v.SetDefault("monitor.health_port", 0)
	v.SetDefault("log.level", "info")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Credentials.Username == "" {
		return fmt.Errorf("credentials.username is required")
	}
	if config.Credentials.Password == "" {
		return fmt.Errorf("credentials.password is required")
	}
	if config.Monitor.Interval < 5*time.Second {
		return fmt.Errorf("monitor.interval must be at least 5 seconds")
	}
	if config.API.SettleDelay < 0 {
		return fmt.Errorf("api.settle_delay must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.Log.Level] {
		return fmt.Errorf("invalid log.level: %s, must be one of: debug, info, warn, error", config.Log.Level)
	}

	return nil
}

// ResolveZone resolves a zone alias from the zones map to a zone ID. The
// lookup is case-insensitive; an argument with no alias is returned as-is.
func (c *Config) ResolveZone(arg string) string {
	for alias, id := range c.Zones {
		if strings.EqualFold(alias, arg) {
			return id
		}
	}
	return arg
}

// CreateExampleConfig creates an example configuration file
func CreateExampleConfig(path string) error {
	config := Config{
		Credentials: CredentialsConfig{
			Username: "${INFINITY_USERNAME}",
			Password: "${INFINITY_PASSWORD}",
		},
		Zones: map[string]string{
			"upstairs":   "1",
			"downstairs": "2",
		},
		API: APIConfig{
			Timeout:     30 * time.Second,
			SettleDelay: 3 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: 60 * time.Second,
			CSVPath:  "hvac_status.csv",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling example config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing example config: %w", err)
	}

	return nil
}
