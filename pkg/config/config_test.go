package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setDefaults()
	require.NoError(t, validate())

	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "sync", cfg.Transcription.Mode)
	assert.Equal(t, int64(5*1024*1024), cfg.Transcription.ChunkSize)
	assert.Equal(t, int64(200*1024*1024), cfg.Transcription.MaxFileSize)
	assert.Equal(t, 50, cfg.Transcription.MinTranscriptChars)
	assert.Equal(t, "verbose_json", cfg.Transcription.ResponseFormat)
	assert.Equal(t, time.Hour, cfg.Supabase.SignedURLExpiry)
	assert.InDelta(t, 0.2, cfg.AI.Temperature, 0.0001)
}

func TestEnvironmentOverride(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	os.Setenv("CALLMETRICS_TRANSCRIPTION_MODE", "async")
	defer os.Unsetenv("CALLMETRICS_TRANSCRIPTION_MODE")

	setDefaults()
	viper.SetEnvPrefix("CALLMETRICS")
	viper.SetEnvKeyReplacer(replacer())
	viper.AutomaticEnv()

	assert.Equal(t, "async", GetString("transcription.mode"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func()
		wantErr string
	}{
		{
			name:  "defaults are valid",
			setup: func() {},
		},
		{
			name:    "invalid port",
			setup:   func() { viper.Set("server.port", 70000) },
			wantErr: "invalid server port",
		},
		{
			name:    "unknown database driver",
			setup:   func() { viper.Set("database.driver", "mysql") },
			wantErr: "unsupported database driver",
		},
		{
			name:    "unknown transcription mode",
			setup:   func() { viper.Set("transcription.mode", "batch") },
			wantErr: "unsupported transcription mode",
		},
		{
			name:    "unknown response format",
			setup:   func() { viper.Set("transcription.response_format", "docx") },
			wantErr: "unsupported transcription response format",
		},
		{
			name:  "srt response format",
			setup: func() { viper.Set("transcription.response_format", "srt") },
		},
		{
			name: "placeholder secret in production",
			setup: func() {
				viper.Set("environment", "production")
				viper.Set("ai.api_key", "changeme")
			},
			wantErr: "ai.api_key",
		},
		{
			name: "dev auth in production",
			setup: func() {
				viper.Set("environment", "production")
				viper.Set("auth.dev_enabled", true)
			},
			wantErr: "auth.dev_enabled",
		},
		{
			name:    "automatic job retries",
			setup:   func() { viper.Set("processing.max_retries", 2) },
			wantErr: "processing.max_retries",
		},
		{
			name:    "zero sweep interval",
			setup:   func() { viper.Set("processing.sweep_interval", 0) },
			wantErr: "processing.sweep_interval",
		},
		{
			name:    "negative sweep interval",
			setup:   func() { viper.Set("processing.sweep_interval", "-1m") },
			wantErr: "processing.sweep_interval",
		},
		{
			name:    "zero stale timeout",
			setup:   func() { viper.Set("processing.stale_after", 0) },
			wantErr: "processing.stale_after",
		},
		{
			name: "placeholder secret outside production is tolerated",
			setup: func() {
				viper.Set("ai.api_key", "changeme")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			setDefaults()
			tt.setup()

			err := validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:        ServerConfig{Host: "localhost", Port: 8080},
			Database:      DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
			Transcription: TranscriptionConfig{Mode: "sync"},
			Processing:    ProcessingConfig{StaleAfter: 30 * time.Minute, SweepInterval: 5 * time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "supabase driver", mutate: func(c *Config) { c.Database.Driver = "supabase" }},
		{name: "bad mode", mutate: func(c *Config) { c.Transcription.Mode = "" }, wantErr: true},
		{name: "job retries", mutate: func(c *Config) { c.Processing.MaxRetries = 1 }, wantErr: true},
		{name: "negative job retries", mutate: func(c *Config) { c.Processing.MaxRetries = -1 }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Processing.SweepInterval = 0 }, wantErr: true},
		{name: "zero stale timeout", mutate: func(c *Config) { c.Processing.StaleAfter = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("auto-corrects chunk size", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, int64(5*1024*1024), cfg.Transcription.ChunkSize)
	})
}
