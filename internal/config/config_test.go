package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// Check defaults
	assert.True(t, cfg.Docker.IncludeStopped)
	assert.False(t, cfg.Docker.SampleStats)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10*time.Second, cfg.Poll.Timeout)
	assert.Equal(t, "swarm", cfg.Classification.Prefer)
	assert.Equal(t, "500", cfg.Logs.Tail)
	assert.Equal(t, []string{"/bin/bash"}, cfg.Exec.Command)
	assert.False(t, cfg.Notification.Enabled)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "./journal", cfg.Journal.Dir)
	assert.NotEmpty(t, cfg.Docker.SocketPath)
}

func TestLoad_EnvVars(t *testing.T) {
	os.Setenv("WHALETOP_DOCKER_SOCKET_PATH", "unix:///env/docker.sock") // nolint:errcheck,gosec
	os.Setenv("WHALETOP_CLASSIFICATION_PREFER", "compose")              // nolint:errcheck,gosec
	defer os.Unsetenv("WHALETOP_DOCKER_SOCKET_PATH")                    // nolint:errcheck
	defer os.Unsetenv("WHALETOP_CLASSIFICATION_PREFER")                 // nolint:errcheck

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "unix:///env/docker.sock", cfg.Docker.SocketPath)
	assert.Equal(t, "compose", cfg.Classification.Prefer)
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `docker:
  socket_path: unix:///test/docker.sock
  include_stopped: false
  sample_stats: true
poll:
  interval: 5s
  timeout: 30s
classification:
  prefer: compose
logs:
  tail: all
exec:
  command: ["/bin/sh"]
notification:
  enabled: true
  shoutrrr_url: generic://test
journal:
  enabled: true
  dir: /test/journal
`
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	assert.NoError(t, err)

	cfg, err := Load(configPath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "unix:///test/docker.sock", cfg.Docker.SocketPath)
	assert.False(t, cfg.Docker.IncludeStopped)
	assert.True(t, cfg.Docker.SampleStats)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Poll.Timeout)
	assert.Equal(t, "compose", cfg.Classification.Prefer)
	assert.Equal(t, "all", cfg.Logs.Tail)
	assert.Equal(t, []string{"/bin/sh"}, cfg.Exec.Command)
	assert.True(t, cfg.Notification.Enabled)
	assert.Equal(t, "generic://test", cfg.Notification.ShoutrrURL)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/test/journal", cfg.Journal.Dir)
	assert.Equal(t, configPath, cfg.ConfigFilePath)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `docker:
  socket_path: test
  invalid yaml content [[[
`
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	assert.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestValidate_MissingSocketPath(t *testing.T) {
	cfg := validConfig()
	cfg.Docker.SocketPath = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "docker.socket_path")
}

func TestValidate_PollIntervalRange(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		wantErr  bool
	}{
		{name: "too small", interval: 100 * time.Millisecond, wantErr: true},
		{name: "minimum", interval: 250 * time.Millisecond, wantErr: false},
		{name: "typical", interval: 2 * time.Second, wantErr: false},
		{name: "maximum", interval: time.Hour, wantErr: false},
		{name: "too large", interval: 2 * time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Poll.Interval = tt.interval
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_InvalidPrecedence(t *testing.T) {
	cfg := validConfig()
	cfg.Classification.Prefer = "kubernetes"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "classification.prefer")
}

func TestValidate_EmptyExecCommand(t *testing.T) {
	cfg := validConfig()
	cfg.Exec.Command = nil

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exec.command")
}

func TestValidate_NotificationEnabledWithoutURL(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.Enabled = true
	cfg.Notification.ShoutrrURL = "  "

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "shoutrrr_url")
}

func TestValidate_JournalEnabledWithoutDir(t *testing.T) {
	cfg := validConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Dir = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "journal.dir")
}

func validConfig() *Config {
	return &Config{
		Docker: DockerConfig{
			SocketPath:     "unix:///var/run/docker.sock",
			IncludeStopped: true,
		},
		Poll: PollConfig{
			Interval: 2 * time.Second,
			Timeout:  10 * time.Second,
		},
		Classification: ClassificationConfig{Prefer: "swarm"},
		Logs:           LogsConfig{Tail: "500"},
		Exec:           ExecConfig{Command: []string{"/bin/bash"}},
		Journal:        JournalConfig{Dir: "./journal"},
	}
}
