// ABOUTME: Application configuration from the environment
// ABOUTME: Reads an optional .env file then STEMDECK_* and MINIO_* variables
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration
type Config struct {
	SampleRate  int
	Channels    int
	Tick        time.Duration
	CacheDir    string // raw downloads; empty disables the disk cache
	HTTPTimeout time.Duration
	LogLevel    string
	LogFile     string
	RemoteAddr  string // time stream listen address; empty disables it
	Advertise   bool   // announce the time stream over mDNS

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// DefaultCacheDir is the download cache under the user cache directory
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "stemdeck")
}

// Load reads envFile (if it exists) without overriding variables that
// are already set, then builds the configuration with defaults
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Config{
		SampleRate:  getEnvInt("STEMDECK_SAMPLE_RATE", 48000),
		Channels:    getEnvInt("STEMDECK_CHANNELS", 2),
		Tick:        time.Duration(getEnvInt("STEMDECK_TICK_MS", 16)) * time.Millisecond,
		CacheDir:    getEnv("STEMDECK_CACHE_DIR", DefaultCacheDir()),
		HTTPTimeout: getEnvDuration("STEMDECK_HTTP_TIMEOUT", 30*time.Second),
		LogLevel:    getEnv("STEMDECK_LOG_LEVEL", "info"),
		LogFile:     getEnv("STEMDECK_LOG_FILE", ""),
		RemoteAddr:  getEnv("STEMDECK_REMOTE_ADDR", ""),
		Advertise:   getEnvBool("STEMDECK_ADVERTISE", false),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
	}, nil
}

// HasMinio reports whether object storage is configured
func (c *Config) HasMinio() bool {
	return c.MinioEndpoint != ""
}
