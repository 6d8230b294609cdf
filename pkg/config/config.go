package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/transcript"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	once        sync.Once
	initErr     error
	initialized bool
)

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		// A local .env is optional; real deployments inject the environment directly
		_ = godotenv.Load()

		setDefaults()

		viper.SetEnvPrefix("CALLMETRICS")
		viper.SetEnvKeyReplacer(replacer())
		viper.AutomaticEnv()

		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		if err := viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}

		initialized = true
	})

	return initErr
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// IsInitialized reports whether Init completed successfully
func IsInitialized() bool {
	return initialized
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	switch viper.GetString("database.driver") {
	case "sqlite", "postgres", "supabase":
	default:
		return fmt.Errorf("unsupported database driver: %q", viper.GetString("database.driver"))
	}

	switch viper.GetString("transcription.mode") {
	case "sync", "async":
	default:
		return fmt.Errorf("unsupported transcription mode: %q", viper.GetString("transcription.mode"))
	}

	if format := viper.GetString("transcription.response_format"); !transcript.Format(format).Valid() {
		return fmt.Errorf("unsupported transcription response format: %q", format)
	}

	if err := validateSecrets(); err != nil {
		return err
	}

	if viper.GetInt("processing.workers") < 0 {
		viper.Set("processing.workers", 0)
	}

	if err := validateProcessing(viper.GetInt("processing.max_retries"),
		viper.GetDuration("processing.stale_after"), viper.GetDuration("processing.sweep_interval")); err != nil {
		return err
	}

	if viper.GetInt64("transcription.chunk_size") <= 0 {
		viper.Set("transcription.chunk_size", 5*1024*1024)
	}

	return nil
}

// validateSecrets rejects placeholder credentials in production. Missing
// credentials are not fatal here: the stage that needs them reports
// "not configured" when it runs.
func validateSecrets() error {
	env := viper.GetString("environment")
	isProduction := env == "production" || env == "prod"
	if !isProduction {
		return nil
	}

	placeholders := []string{
		"YOUR_KEY_HERE",
		"YOUR_SECRET_HERE",
		"YOUR_API_KEY",
		"changeme",
		"CHANGEME",
	}

	keys := []string{
		"transcription.api_key",
		"transcription.async.api_key",
		"transcription.async.webhook_secret",
		"ai.api_key",
		"supabase.service_key",
		"auth.jwt_secret",
	}

	for _, key := range keys {
		value := viper.GetString(key)
		for _, placeholder := range placeholders {
			if value == placeholder {
				return fmt.Errorf("invalid %s: cannot use placeholder values in production", key)
			}
		}
	}

	if viper.GetBool("auth.dev_enabled") {
		return fmt.Errorf("auth.dev_enabled cannot be set in production")
	}

	return nil
}

// Validate validates a Config struct (for testing)
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "supabase":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database path is not configured")
	}

	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is not configured")
	}

	switch c.Transcription.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("unsupported transcription mode: %q", c.Transcription.Mode)
	}

	if c.Transcription.ResponseFormat != "" && !transcript.Format(c.Transcription.ResponseFormat).Valid() {
		return fmt.Errorf("unsupported transcription response format: %q", c.Transcription.ResponseFormat)
	}

	if c.Transcription.ChunkSize <= 0 {
		c.Transcription.ChunkSize = 5 * 1024 * 1024
	}

	if c.Processing.Workers < 0 {
		c.Processing.Workers = 0
	}

	return validateProcessing(c.Processing.MaxRetries, c.Processing.StaleAfter, c.Processing.SweepInterval)
}

// validateProcessing checks the background processing settings. A failed
// record is only reprocessed on request, so queued jobs are never retried.
func validateProcessing(maxRetries int, staleAfter, sweepInterval time.Duration) error {
	if maxRetries != 0 {
		return fmt.Errorf("invalid processing.max_retries: %d (failed records are not retried automatically, use 0)", maxRetries)
	}
	if staleAfter <= 0 {
		return fmt.Errorf("invalid processing.stale_after: %s (must be positive)", staleAfter)
	}
	if sweepInterval <= 0 {
		return fmt.Errorf("invalid processing.sweep_interval: %s (must be positive)", sweepInterval)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.public_url", "http://localhost:8080")
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/callmetrics.db")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.verbose", false)

	// Processing defaults
	viper.SetDefault("processing.workers", 2)
	viper.SetDefault("processing.poll_interval", 2*time.Second)
	viper.SetDefault("processing.job_timeout", 15*time.Minute)
	viper.SetDefault("processing.max_retries", 0)
	viper.SetDefault("processing.stale_after", 30*time.Minute)
	viper.SetDefault("processing.sweep_interval", 5*time.Minute)
	viper.SetDefault("processing.job_retention_days", 7)

	// Credentials default to empty so that environment overrides survive Unmarshal
	for _, key := range []string{
		"transcription.api_key",
		"transcription.async.api_key",
		"transcription.async.webhook_secret",
		"ai.api_key",
		"supabase.url",
		"supabase.service_key",
		"auth.jwks_url",
		"auth.jwt_secret",
		"auth.dev_token",
	} {
		viper.SetDefault(key, "")
	}

	// Transcription defaults
	viper.SetDefault("transcription.mode", "sync")
	viper.SetDefault("transcription.api_url", "https://api.openai.com/v1/audio/transcriptions")
	viper.SetDefault("transcription.model", "whisper-1")
	viper.SetDefault("transcription.language", "pt")
	viper.SetDefault("transcription.response_format", "verbose_json")
	viper.SetDefault("transcription.chunk_size", 5*1024*1024)
	viper.SetDefault("transcription.max_file_size", 200*1024*1024)
	viper.SetDefault("transcription.timeout", 5*time.Minute)
	viper.SetDefault("transcription.max_retries", 2)
	viper.SetDefault("transcription.min_transcript_chars", 50)
	viper.SetDefault("transcription.async.base_url", "https://api.assemblyai.com/v2")
	viper.SetDefault("transcription.async.speaker_labels", true)

	// AI scoring defaults
	viper.SetDefault("ai.api_url", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.temperature", 0.2)
	viper.SetDefault("ai.timeout", 3*time.Minute)
	viper.SetDefault("ai.max_retries", 2)

	// Supabase defaults
	viper.SetDefault("supabase.bucket", "call-recordings")
	viper.SetDefault("supabase.signed_url_expiry", time.Hour)

	// Auth defaults
	viper.SetDefault("auth.dev_enabled", false)

	// Rate limiting defaults
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.endpoints", map[string]int{
		"processing": 2,
		"webhooks":   20,
		"default":    10,
	})

	// Security defaults
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.cors_origins", []string{"*"})
	viper.SetDefault("security.max_request_bytes", 1048576)
	viper.SetDefault("security.enable_request_id", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
