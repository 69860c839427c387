// Package config provides configuration loading and validation.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables (including a .env file). Each layer only
// overrides the keys it sets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the application.
// Durations in YAML use Go duration strings ("90m"); environment variables
// give the same durations in minutes.
type Config struct {
	// Server
	Port      string `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// CORS
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Turnstile
	TurnstileSecretKey string `yaml:"turnstile_secret_key"`
	TurnstileSkip      bool   `yaml:"turnstile_skip"`

	// Rate Limiting
	RateLimitRPM   int `yaml:"rate_limit_rpm"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// Worker Pool
	MaxWorkers   int `yaml:"max_workers"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// R2 Storage
	R2AccountID       string `yaml:"r2_account_id"`
	R2AccessKeyID     string `yaml:"r2_access_key_id"`
	R2SecretAccessKey string `yaml:"r2_secret_access_key"`
	R2BucketName      string `yaml:"r2_bucket_name"`
	R2PublicURL       string `yaml:"r2_public_url"`

	// File Settings
	MaxFileSize        int64         `yaml:"max_file_size"`
	MaxDuration        int           `yaml:"max_duration"`
	PresignedURLExpiry time.Duration `yaml:"presigned_url_expiry"`
	DownloadTimeout    time.Duration `yaml:"download_timeout"`
	ArtifactTTL        time.Duration `yaml:"artifact_ttl"`
	InfoCacheTTL       time.Duration `yaml:"info_cache_ttl"`

	// Cleanup
	LocalCleanupInterval time.Duration `yaml:"local_cleanup_interval"`
	LocalMaxFileAge      time.Duration `yaml:"local_max_file_age"`
	R2CleanupInterval    time.Duration `yaml:"r2_cleanup_interval"`
	R2MaxFileAge         time.Duration `yaml:"r2_max_file_age"`

	// Paths
	TempDir    string `yaml:"temp_dir"`
	YtDlpPath  string `yaml:"ytdlp_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:      "8080",
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "json",

		AllowedOrigins: []string{"http://localhost:3000"},

		RateLimitRPM:   5,
		RateLimitBurst: 2,

		MaxWorkers:   3,
		MaxQueueSize: 10,

		MaxFileSize:        524288000, // 500MB
		MaxDuration:        1800,      // 30 minutes
		PresignedURLExpiry: 15 * time.Minute,
		DownloadTimeout:    10 * time.Minute,
		ArtifactTTL:        60 * time.Minute,
		InfoCacheTTL:       60 * time.Minute,

		LocalCleanupInterval: 5 * time.Minute,
		LocalMaxFileAge:      120 * time.Minute,
		R2CleanupInterval:    30 * time.Minute,
		R2MaxFileAge:         60 * time.Minute,

		TempDir:   "./tmp",
		YtDlpPath: "yt-dlp",
	}
}

// Load loads configuration. path names an optional YAML file; when empty the
// CONFIG_FILE environment variable is consulted.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Server
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	// CORS
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)

	// Turnstile
	cfg.TurnstileSecretKey = getEnv("TURNSTILE_SECRET_KEY", cfg.TurnstileSecretKey)
	cfg.TurnstileSkip = getEnvBool("TURNSTILE_SKIP", cfg.TurnstileSkip)

	// Rate Limiting
	cfg.RateLimitRPM = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	// Worker Pool
	cfg.MaxWorkers = getEnvInt("MAX_WORKERS", cfg.MaxWorkers)
	cfg.MaxQueueSize = getEnvInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)

	// R2 Storage
	cfg.R2AccountID = getEnv("R2_ACCOUNT_ID", cfg.R2AccountID)
	cfg.R2AccessKeyID = getEnv("R2_ACCESS_KEY_ID", cfg.R2AccessKeyID)
	cfg.R2SecretAccessKey = getEnv("R2_SECRET_ACCESS_KEY", cfg.R2SecretAccessKey)
	cfg.R2BucketName = getEnv("R2_BUCKET_NAME", cfg.R2BucketName)
	cfg.R2PublicURL = getEnv("R2_PUBLIC_URL", cfg.R2PublicURL)

	// File Settings
	cfg.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.MaxDuration = getEnvInt("MAX_DURATION", cfg.MaxDuration)
	cfg.PresignedURLExpiry = getEnvMinutes("PRESIGNED_URL_EXPIRY", cfg.PresignedURLExpiry)
	cfg.DownloadTimeout = getEnvMinutes("DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	cfg.ArtifactTTL = getEnvMinutes("ARTIFACT_TTL", cfg.ArtifactTTL)
	cfg.InfoCacheTTL = getEnvMinutes("INFO_CACHE_TTL", cfg.InfoCacheTTL)

	// Cleanup
	cfg.LocalCleanupInterval = getEnvMinutes("LOCAL_CLEANUP_INTERVAL", cfg.LocalCleanupInterval)
	cfg.LocalMaxFileAge = getEnvMinutes("LOCAL_MAX_FILE_AGE", cfg.LocalMaxFileAge)
	cfg.R2CleanupInterval = getEnvMinutes("R2_CLEANUP_INTERVAL", cfg.R2CleanupInterval)
	cfg.R2MaxFileAge = getEnvMinutes("R2_MAX_FILE_AGE", cfg.R2MaxFileAge)

	// Paths
	cfg.TempDir = getEnv("TEMP_DIR", cfg.TempDir)
	cfg.YtDlpPath = getEnv("YTDLP_PATH", cfg.YtDlpPath)
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", cfg.FFmpegPath)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return errors.New("PORT must not be empty")
	case c.MaxWorkers < 1:
		return errors.New("MAX_WORKERS must be at least 1")
	case c.MaxQueueSize < 1:
		return errors.New("MAX_QUEUE_SIZE must be at least 1")
	case c.RateLimitRPM < 1 || c.RateLimitBurst < 1:
		return errors.New("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be at least 1")
	case c.ArtifactTTL <= 0:
		return errors.New("ARTIFACT_TTL must be positive")
	case c.LocalMaxFileAge > 0 && c.LocalMaxFileAge < c.ArtifactTTL:
		return fmt.Errorf("LOCAL_MAX_FILE_AGE (%s) must not be shorter than ARTIFACT_TTL (%s)", c.LocalMaxFileAge, c.ArtifactTTL)
	case c.TempDir == "":
		return errors.New("TEMP_DIR must not be empty")
	}
	return nil
}

// R2Enabled reports whether all R2 credentials are present.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
