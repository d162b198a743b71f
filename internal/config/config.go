// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/whaletop/whaletop/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Docker         DockerConfig         `mapstructure:"docker"`
	Poll           PollConfig           `mapstructure:"poll"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Logs           LogsConfig           `mapstructure:"logs"`
	Exec           ExecConfig           `mapstructure:"exec"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Journal        JournalConfig        `mapstructure:"journal"`

	// ConfigFilePath stores the path to the loaded config file (not marshaled from YAML)
	ConfigFilePath string `mapstructure:"-"`
}

// DockerConfig contains Docker-specific settings
type DockerConfig struct {
	SocketPath     string `mapstructure:"socket_path"`
	IncludeStopped bool   `mapstructure:"include_stopped"`
	SampleStats    bool   `mapstructure:"sample_stats"`
}

// PollConfig tunes the reconciliation loop.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ClassificationConfig controls label precedence when an object carries
// both swarm and compose ownership labels.
type ClassificationConfig struct {
	Prefer string `mapstructure:"prefer"` // "swarm" or "compose"
}

// LogsConfig contains log streaming settings
type LogsConfig struct {
	Tail string `mapstructure:"tail"` // backlog selector: "all" or a line count
}

// ExecConfig contains interactive session settings
type ExecConfig struct {
	Command []string `mapstructure:"command"`
}

// NotificationConfig contains notification settings
type NotificationConfig struct {
	ShoutrrURL string `mapstructure:"shoutrrr_url"` // Shoutrrr URL format
	Enabled    bool   `mapstructure:"enabled"`
}

// JournalConfig controls the on-disk topology event journal.
type JournalConfig struct {
	Dir     string `mapstructure:"dir"`
	Enabled bool   `mapstructure:"enabled"`
}

// autoDetectDockerSocket determines the Docker socket path based on environment and platform.
func autoDetectDockerSocket() string {
	if os.Getenv("DOCKER_HOST") != "" {
		return os.Getenv("DOCKER_HOST")
	}
	// Check for Unix socket
	if _, err := os.Stat("/var/run/docker.sock"); err == nil {
		return "unix:///var/run/docker.sock"
	}
	// Default to Windows named pipe if Unix socket not found
	return "npipe:////./pipe/docker_engine"
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/whaletop")
		v.AddConfigPath("/etc/whaletop")
	}

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			configFile := v.ConfigFileUsed()
			if configFile == "" {
				configFile = configPath
			}
			return nil, fmt.Errorf("error reading config file from %s: %w", configFile, err)
		}
		// Config file not found; using defaults and env vars
	}

	// Environment variable support
	v.SetEnvPrefix("WHALETOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		configFile := v.ConfigFileUsed()
		if configFile == "" {
			configFile = "(using defaults and environment variables)"
		}
		return nil, fmt.Errorf("error unmarshaling config from %s: %w", configFile, err)
	}

	// Store the config file path in the struct (DI approach, no global state)
	cfg.ConfigFilePath = v.ConfigFileUsed()

	// Auto-detect Docker socket if not specified
	if cfg.Docker.SocketPath == "" {
		cfg.Docker.SocketPath = autoDetectDockerSocket()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		configFile := v.ConfigFileUsed()
		if configFile == "" {
			configFile = "(using defaults and environment variables)"
		}
		return nil, &apperrors.ConfigurationError{ConfigPath: configFile, Err: err}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Docker defaults
	if os.Getenv("DOCKER_HOST") != "" {
		v.SetDefault("docker.socket_path", os.Getenv("DOCKER_HOST"))
	} else {
		// Default Docker socket paths by platform
		if _, err := os.Stat("/var/run/docker.sock"); err == nil {
			v.SetDefault("docker.socket_path", "unix:///var/run/docker.sock")
		} else {
			v.SetDefault("docker.socket_path", "npipe:////./pipe/docker_engine")
		}
	}
	v.SetDefault("docker.include_stopped", true)
	v.SetDefault("docker.sample_stats", false)

	// Poll defaults
	v.SetDefault("poll.interval", "2s")
	v.SetDefault("poll.timeout", "10s")

	// Classification defaults
	v.SetDefault("classification.prefer", "swarm")

	// Logs defaults
	v.SetDefault("logs.tail", "500")

	// Exec defaults
	v.SetDefault("exec.command", []string{"/bin/bash"})

	// Notification defaults
	v.SetDefault("notification.shoutrrr_url", "") // Required for AutomaticEnv to work
	v.SetDefault("notification.enabled", false)

	// Journal defaults
	v.SetDefault("journal.dir", "./journal")
	v.SetDefault("journal.enabled", false)
}

// Validate ensures all required fields are set and values are within valid ranges.
func (c *Config) Validate() error {
	configSource := c.ConfigFilePath
	if configSource == "" {
		configSource = "(defaults/environment)"
	}

	if c.Docker.SocketPath == "" {
		return fmt.Errorf("docker.socket_path is required in config %s", configSource)
	}

	if c.Poll.Interval < 250*time.Millisecond || c.Poll.Interval > time.Hour {
		return fmt.Errorf("poll.interval must be between 250ms and 1h, got %s in config %s",
			c.Poll.Interval, configSource)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.timeout must be positive, got %s in config %s",
			c.Poll.Timeout, configSource)
	}

	switch strings.ToLower(c.Classification.Prefer) {
	case "swarm", "compose":
	default:
		return fmt.Errorf("classification.prefer must be \"swarm\" or \"compose\", got %q in config %s",
			c.Classification.Prefer, configSource)
	}

	if len(c.Exec.Command) == 0 {
		return fmt.Errorf("exec.command must not be empty in config %s", configSource)
	}

	if c.Notification.Enabled && strings.TrimSpace(c.Notification.ShoutrrURL) == "" {
		return fmt.Errorf("notification.shoutrrr_url is required when notifications are enabled in config %s", configSource)
	}

	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required when the journal is enabled in config %s", configSource)
	}

	return nil
}
