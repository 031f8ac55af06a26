package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	API          APIConfig
	Storage      StorageConfig
	Connectivity ConnectivityConfig
	Upload       UploadConfig
	Media        MediaConfig
	Metrics      MetricsConfig
}

// APIConfig holds analysis backend configuration
type APIConfig struct {
	LocalBase  string        `mapstructure:"local_base"`
	HostedBase string        `mapstructure:"hosted_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `mapstructure:"burst"`
}

// StorageConfig holds image storage configuration
type StorageConfig struct {
	BlobBase          string `mapstructure:"blob_base"`           // used by hosted deployments
	MediaBaseOverride string `mapstructure:"media_base_override"` // optional, local deployments
	StrictBlob        bool   `mapstructure:"strict_blob"`
	CacheSize         int    `mapstructure:"cache_size"`
}

// ConnectivityConfig holds health probe timing
type ConnectivityConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Throttle     time.Duration `mapstructure:"throttle"`
	Interval     time.Duration `mapstructure:"interval"`
}

// UploadConfig holds upload limits
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// MediaConfig holds the local media server configuration
type MediaConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	DatasetDir     string   `mapstructure:"dataset_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marketlens/")

	// Environment variable settings
	v.SetEnvPrefix("MARKETLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(".env")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.local_base", "http://localhost:8000")
	v.SetDefault("api.hosted_base", "https://api.marketplace.vanshdeshwal.dev")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.burst", 5)

	// Storage defaults
	v.SetDefault("storage.blob_base", "https://marketplacestoragevd.blob.core.windows.net/catalog")
	v.SetDefault("storage.media_base_override", "")
	v.SetDefault("storage.strict_blob", false)
	v.SetDefault("storage.cache_size", 1024)

	// Connectivity defaults
	v.SetDefault("connectivity.probe_timeout", "3s")
	v.SetDefault("connectivity.throttle", "10s")
	v.SetDefault("connectivity.interval", "60s")

	// Upload defaults
	v.SetDefault("upload.max_bytes", 10*1024*1024)

	// Media server defaults
	v.SetDefault("media.port", "8001")
	v.SetDefault("media.environment", "development")
	v.SetDefault("media.dataset_dir", "./dataset/shopee-product-matching")
	v.SetDefault("media.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9102")
}

// validate validates the configuration
func validate(config *Config) error {
	if err := requireHTTPURL("api.local_base", config.API.LocalBase); err != nil {
		return err
	}
	if err := requireHTTPURL("api.hosted_base", config.API.HostedBase); err != nil {
		return err
	}
	if config.Storage.BlobBase != "" {
		if err := requireHTTPURL("storage.blob_base", config.Storage.BlobBase); err != nil {
			return err
		}
	}
	if config.Storage.MediaBaseOverride != "" {
		if err := requireHTTPURL("storage.media_base_override", config.Storage.MediaBaseOverride); err != nil {
			return err
		}
	}

	if config.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative, got: %v", config.API.RateLimit)
	}
	if config.Connectivity.ProbeTimeout <= 0 {
		return fmt.Errorf("connectivity.probe_timeout must be positive, got: %s", config.Connectivity.ProbeTimeout)
	}
	if config.Connectivity.Throttle < 0 {
		return fmt.Errorf("connectivity.throttle must not be negative, got: %s", config.Connectivity.Throttle)
	}
	if config.Connectivity.Interval <= 0 {
		return fmt.Errorf("connectivity.interval must be positive, got: %s", config.Connectivity.Interval)
	}
	if config.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got: %d", config.Upload.MaxBytes)
	}

	return nil
}

func requireHTTPURL(key, value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got: %q", key, value)
	}
	return nil
}
