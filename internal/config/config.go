package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Source resolution backend
	ResolverURL    string
	ResolverAPIKey string

	// Subtitle search service
	SubtitleSearchURL string

	// Telemetry (heartbeat, progress sync, bandwidth reports)
	TelemetryURL    string
	TelemetryAPIKey string

	// Acquisition polling
	PollInterval   time.Duration // Interval between job status polls (default: 2s)
	AcquireTimeout time.Duration // Ceiling on the whole polling phase (default: 5m)
	PromoteTimeout time.Duration // Bound on the prefetch promotion query (default: 5s)

	// Adaptation
	BufferWindow    time.Duration // Sliding window for buffering events (default: 60s)
	BufferThreshold int           // Events inside the window that trigger a fallback (default: 3)

	// Autoplay
	CountdownSeconds       int // Up-next countdown length (default: 5)
	PrefetchTriggerPercent int // Position percent that starts the prefetch (default: 75)

	// Skip markers
	MinSkipSpanSeconds float64 // Segments shorter than this get no affordance (default: 3)

	// Heartbeat / progress
	HeartbeatInterval     time.Duration // Liveness + progress flush interval (default: 30s)
	ProgressRetentionDays int           // Completed records older than this are pruned (default: 30)

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/binger.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("POLL_INTERVAL_SECONDS", 2)
	viper.SetDefault("ACQUIRE_TIMEOUT_MINUTES", 5)
	viper.SetDefault("PROMOTE_TIMEOUT_SECONDS", 5)
	viper.SetDefault("BUFFER_WINDOW_SECONDS", 60)
	viper.SetDefault("BUFFER_THRESHOLD", 3)
	viper.SetDefault("COUNTDOWN_SECONDS", 5)
	viper.SetDefault("PREFETCH_TRIGGER_PERCENT", 75)
	viper.SetDefault("MIN_SKIP_SPAN_SECONDS", 3)
	viper.SetDefault("HEARTBEAT_SECONDS", 30)
	viper.SetDefault("PROGRESS_RETENTION_DAYS", 30)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "binger")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		ResolverURL:    viper.GetString("RESOLVER_URL"),
		ResolverAPIKey: viper.GetString("RESOLVER_API_KEY"),

		SubtitleSearchURL: viper.GetString("SUBTITLE_SEARCH_URL"),

		TelemetryURL:    viper.GetString("TELEMETRY_URL"),
		TelemetryAPIKey: viper.GetString("TELEMETRY_API_KEY"),

		PollInterval:   time.Duration(viper.GetInt("POLL_INTERVAL_SECONDS")) * time.Second,
		AcquireTimeout: time.Duration(viper.GetInt("ACQUIRE_TIMEOUT_MINUTES")) * time.Minute,
		PromoteTimeout: time.Duration(viper.GetInt("PROMOTE_TIMEOUT_SECONDS")) * time.Second,

		BufferWindow:    time.Duration(viper.GetInt("BUFFER_WINDOW_SECONDS")) * time.Second,
		BufferThreshold: viper.GetInt("BUFFER_THRESHOLD"),

		CountdownSeconds:       viper.GetInt("COUNTDOWN_SECONDS"),
		PrefetchTriggerPercent: viper.GetInt("PREFETCH_TRIGGER_PERCENT"),

		MinSkipSpanSeconds: viper.GetFloat64("MIN_SKIP_SPAN_SECONDS"),

		HeartbeatInterval:     time.Duration(viper.GetInt("HEARTBEAT_SECONDS")) * time.Second,
		ProgressRetentionDays: viper.GetInt("PROGRESS_RETENTION_DAYS"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "binger.db"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.ResolverURL == "" {
		return nil, fmt.Errorf("RESOLVER_URL is required")
	}
	if config.ResolverAPIKey == "" {
		return nil, fmt.Errorf("RESOLVER_API_KEY is required")
	}

	return config, nil
}
