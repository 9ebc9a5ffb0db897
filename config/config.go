package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Hyperflow     HyperflowConfig     `yaml:"hyperflow"`
	Venue         VenueConfig         `yaml:"venue"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Buffers       BuffersConfig       `yaml:"buffers"`
	Supervisor    SupervisorConfig    `yaml:"supervisor"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Notifier      NotifierConfig      `yaml:"notifier"`
}

type HyperflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type VenueConfig struct {
	WsURL        string          `yaml:"ws_url"`
	Account      string          `yaml:"account"`
	PingInterval time.Duration   `yaml:"ping_interval"`
	EventBuffer  int             `yaml:"event_buffer"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type SubscriptionsConfig struct {
	AllMids   bool           `yaml:"all_mids"`
	Trades    []string       `yaml:"trades"`
	L2Books   []string       `yaml:"l2_books"`
	Candles   []CandleSubCfg `yaml:"candles"`
	UserFills bool           `yaml:"user_fills"`
}

type CandleSubCfg struct {
	Coin     string `yaml:"coin"`
	Interval string `yaml:"interval"`
}

type BuffersConfig struct {
	MaxTrades  int `yaml:"max_trades"`
	MaxCandles int `yaml:"max_candles"`
	MaxFills   int `yaml:"max_fills"`
	MaxBooks   int `yaml:"max_books"`
}

type SupervisorConfig struct {
	LivenessWindow time.Duration `yaml:"liveness_window"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     int           `yaml:"backoff_cap"`
}

type StorageConfig struct {
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
	FillsDir string         `yaml:"fills_dir"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	Compression     string `yaml:"compression"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Venue: VenueConfig{
			PingInterval: 50 * time.Second,
			EventBuffer:  1024,
		},
		Buffers: BuffersConfig{
			MaxTrades:  10000,
			MaxCandles: 10000,
			MaxFills:   10000,
			MaxBooks:   100,
		},
		Supervisor: SupervisorConfig{
			LivenessWindow: 30 * time.Second,
			BackoffBase:    time.Second,
			BackoffCap:     10,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override sensitive settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		config.Storage.Postgres.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("VENUE_ACCOUNT"); v != "" {
		config.Venue.Account = strings.TrimSpace(v)
	}
	if v := os.Getenv("NOTIFIER_WEBHOOK_URL"); v != "" {
		config.Notifier.WebhookURL = strings.TrimSpace(v)
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Hyperflow.Name == "" {
		return fmt.Errorf("hyperflow.name is required")
	}

	if cfg.Hyperflow.Version == "" {
		return fmt.Errorf("hyperflow.version is required")
	}

	if cfg.Venue.WsURL == "" {
		return fmt.Errorf("venue.ws_url is required")
	}

	if cfg.Venue.EventBuffer <= 0 {
		return fmt.Errorf("venue.event_buffer must be greater than 0")
	}

	if cfg.Buffers.MaxTrades <= 0 {
		return fmt.Errorf("buffers.max_trades must be greater than 0")
	}
	if cfg.Buffers.MaxCandles <= 0 {
		return fmt.Errorf("buffers.max_candles must be greater than 0")
	}
	if cfg.Buffers.MaxFills <= 0 {
		return fmt.Errorf("buffers.max_fills must be greater than 0")
	}
	if cfg.Buffers.MaxBooks <= 0 {
		return fmt.Errorf("buffers.max_books must be greater than 0")
	}

	if cfg.Supervisor.LivenessWindow <= 0 {
		return fmt.Errorf("supervisor.liveness_window must be greater than 0")
	}
	if cfg.Supervisor.BackoffBase <= 0 {
		return fmt.Errorf("supervisor.backoff_base must be greater than 0")
	}
	if cfg.Supervisor.BackoffCap <= 0 {
		return fmt.Errorf("supervisor.backoff_cap must be greater than 0")
	}

	if cfg.Subscriptions.UserFills && cfg.Venue.Account == "" {
		return fmt.Errorf("venue.account is required when subscriptions.user_fills is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when postgres is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
