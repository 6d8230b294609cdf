package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	AI            AIConfig            `mapstructure:"ai"`
	Supabase      SupabaseConfig      `mapstructure:"supabase"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimiting  RateLimitConfig     `mapstructure:"rate_limiting"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	PublicURL       string        `mapstructure:"public_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// DatabaseConfig contains database settings. Driver is one of sqlite,
// postgres or supabase.
type DatabaseConfig struct {
	Driver                string        `mapstructure:"driver"`
	Path                  string        `mapstructure:"path"`
	DSN                   string        `mapstructure:"dsn"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	Verbose               bool          `mapstructure:"verbose"`
}

// ProcessingConfig contains background processing settings
type ProcessingConfig struct {
	Workers          int           `mapstructure:"workers"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	JobRetentionDays int           `mapstructure:"job_retention_days"` // 0 keeps finished jobs
}

// TranscriptionConfig contains speech-to-text provider settings.
// Mode selects between the chunked synchronous provider and the
// webhook-driven asynchronous provider.
type TranscriptionConfig struct {
	Mode               string        `mapstructure:"mode"`
	APIKey             string        `mapstructure:"api_key"`
	APIURL             string        `mapstructure:"api_url"`
	Model              string        `mapstructure:"model"`
	Language           string        `mapstructure:"language"`
	ResponseFormat     string        `mapstructure:"response_format"`
	ChunkSize          int64         `mapstructure:"chunk_size"`
	MaxFileSize        int64         `mapstructure:"max_file_size"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	MinTranscriptChars int           `mapstructure:"min_transcript_chars"`
	Async              AsyncConfig   `mapstructure:"async"`
}

// AsyncConfig contains the asynchronous transcription provider settings
type AsyncConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SpeakerLabels bool   `mapstructure:"speaker_labels"`
}

// AIConfig contains the generative scoring model settings
type AIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	APIURL      string        `mapstructure:"api_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// SupabaseConfig contains the managed backend settings
type SupabaseConfig struct {
	URL             string        `mapstructure:"url"`
	ServiceKey      string        `mapstructure:"service_key"`
	Bucket          string        `mapstructure:"bucket"`
	SignedURLExpiry time.Duration `mapstructure:"signed_url_expiry"`
}

// AuthConfig contains bearer token validation settings
type AuthConfig struct {
	JWKSURL    string `mapstructure:"jwks_url"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	DevEnabled bool   `mapstructure:"dev_enabled"`
	DevToken   string `mapstructure:"dev_token"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Endpoints map[string]int `mapstructure:"endpoints"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	EnableCORS      bool     `mapstructure:"enable_cors"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	MaxRequestBytes int64    `mapstructure:"max_request_bytes"`
	EnableRequestID bool     `mapstructure:"enable_request_id"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
