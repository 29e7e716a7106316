// Package config loads the accounts service configuration.
//
// Values come from defaults, an optional config file (CONFIG_FILE, any format
// viper understands) and environment variables, in increasing precedence.
// Nested keys map to environment variables by replacing dots with
// underscores:
//
//	TASK_EMAIL_CONFIRM_EXPIRY_TIME=15m
//	TASK_CAPTCHA_DELETION_BULK_COUNT=50
//	REDIS_URL=redis://localhost:6379/0
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Host            string `mapstructure:"HOST"`
	Port            int    `mapstructure:"PORT"`
	BaseURL         string `mapstructure:"BASE_URL"`
	TLSCertFile     string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile      string `mapstructure:"TLS_KEY_FILE"`
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	BcryptCost      int    `mapstructure:"BCRYPT_COST"`

	Redis           RedisSettings           `mapstructure:"REDIS"`
	Session         SessionSettings         `mapstructure:"SESSION"`
	RateLimit       RateLimitSettings       `mapstructure:"RATE_LIMIT"`
	AccountDeletion AccountDeletionSettings `mapstructure:"ACCOUNT_DELETION"`
	Telemetry       TelemetrySettings       `mapstructure:"TELEMETRY"`

	TaskEmailConfirm TaskSettings `mapstructure:"TASK_EMAIL_CONFIRM"`
	TaskCaptcha      TaskSettings `mapstructure:"TASK_CAPTCHA"`
}

type RedisSettings struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

type SessionSettings struct {
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
}

type RateLimitSettings struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type AccountDeletionSettings struct {
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

type TelemetrySettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// TaskSettings parametrizes the expiry reaper of one ephemeral dataset.
type TaskSettings struct {
	ExpiryTime        time.Duration `mapstructure:"expiry_time"`
	DeletionBulkCount int           `mapstructure:"deletion_bulk_count"`
}

var (
	ErrInvalidExpiry    = errors.New("config: expiry time must be at least one second")
	ErrInvalidBulkCount = errors.New("config: deletion bulk count must be at least 1")
)

// Validate checks the settings of one reaper.
func (t TaskSettings) Validate() error {
	if t.ExpiryTime < time.Second {
		return ErrInvalidExpiry
	}
	if t.DeletionBulkCount < 1 {
		return ErrInvalidBulkCount
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.TaskEmailConfirm.Validate(); err != nil {
		return fmt.Errorf("task_email_confirm: %w", err)
	}
	if err := c.TaskCaptcha.Validate(); err != nil {
		return fmt.Errorf("task_captcha: %w", err)
	}
	if c.Redis.URL == "" {
		return errors.New("config: redis url is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", 8443)
	v.SetDefault("BASE_URL", "https://127.0.0.1:8443")
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DSN", "accounts.db")
	v.SetDefault("SKIP_AUTO_MIGRATE", false)
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("REDIS.URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("REDIS.PASSWORD", "")

	v.SetDefault("SESSION.TTL", 24*time.Hour)
	v.SetDefault("SESSION.COOKIE_NAME", "id")

	v.SetDefault("RATE_LIMIT.PER_SECOND", 1)
	v.SetDefault("RATE_LIMIT.BURST", 20)

	v.SetDefault("ACCOUNT_DELETION.GRACE_PERIOD", 15*24*time.Hour)
	v.SetDefault("ACCOUNT_DELETION.SCAN_INTERVAL", time.Hour)

	v.SetDefault("TELEMETRY.ENABLED", false)
	v.SetDefault("TELEMETRY.OTLP_ENDPOINT", "")
	v.SetDefault("TELEMETRY.SAMPLING_RATE", 1.0)

	v.SetDefault("TASK_EMAIL_CONFIRM.EXPIRY_TIME", 15*time.Minute)
	v.SetDefault("TASK_EMAIL_CONFIRM.DELETION_BULK_COUNT", 100)
	v.SetDefault("TASK_CAPTCHA.EXPIRY_TIME", 5*time.Minute)
	v.SetDefault("TASK_CAPTCHA.DELETION_BULK_COUNT", 100)
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s failed: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
