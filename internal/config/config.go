// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // method cache ttl
}

type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"` // per call
	UserAgent string        `yaml:"user_agent"`
}

type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type PollerConfig struct {
	Tick       time.Duration `yaml:"tick"`        // how often due attempts are scanned
	Interval   time.Duration `yaml:"interval"`    // spacing between polls of one attempt
	SessionTTL time.Duration `yaml:"session_ttl"` // attempt horizon
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Batch      int           `yaml:"batch"`
	Workers    int           `yaml:"workers"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

type PaymentsConfig struct {
	StartLimit  int           `yaml:"start_limit"` // checkouts per member per window; 0 disables
	StartWindow time.Duration `yaml:"start_window"`
}

type SubscriptionsConfig struct {
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, e.g. "@every 5m"
	NoticeWindow  time.Duration `yaml:"notice_window"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
	Batch         int           `yaml:"batch"`
}

type EffectorConfig struct {
	Driver        string        `yaml:"driver"` // discord|telegram|noop
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

type DiscordConfig struct {
	Token   string `yaml:"token"`
	APIBase string `yaml:"api_base"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type Config struct {
	Log           LogConfig           `yaml:"log"`
	Admin         AdminConfig         `yaml:"admin"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Poller        PollerConfig        `yaml:"poller"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Effector      EffectorConfig      `yaml:"effector"`
	Discord       DiscordConfig       `yaml:"discord"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Locale        string              `yaml:"locale"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, applies .env and environment
// overrides, fills defaults and validates the minimum needed to start.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw yaml and runs the same defaults/overrides/validation as LoadConfig.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Discord.Token, "DISCORD_TOKEN")
	override(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	cfg.Admin.TokenTTL = orDuration(cfg.Admin.TokenTTL, 24*time.Hour)
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, time.Hour)

	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://trocador.app/anonpay"
	}
	cfg.Gateway.Timeout = orDuration(cfg.Gateway.Timeout, 30*time.Second)
	if cfg.Gateway.UserAgent == "" {
		cfg.Gateway.UserAgent = "CatPaymentBot/1.0"
	}
	cfg.Webhook.Timeout = orDuration(cfg.Webhook.Timeout, 10*time.Second)

	cfg.Poller.Tick = orDuration(cfg.Poller.Tick, 5*time.Second)
	cfg.Poller.Interval = orDuration(cfg.Poller.Interval, 60*time.Second)
	cfg.Poller.SessionTTL = orDuration(cfg.Poller.SessionTTL, 20*time.Minute)
	cfg.Poller.MaxBackoff = orDuration(cfg.Poller.MaxBackoff, 5*time.Minute)
	// covers a gateway timeout, a webhook and the grant retries of one poll
	cfg.Poller.LockTTL = orDuration(cfg.Poller.LockTTL, 2*time.Minute)
	if cfg.Poller.Batch <= 0 {
		cfg.Poller.Batch = 100
	}
	if cfg.Poller.Workers <= 0 {
		cfg.Poller.Workers = 8
	}

	if cfg.Payments.StartLimit < 0 {
		cfg.Payments.StartLimit = 0
	}
	cfg.Payments.StartWindow = orDuration(cfg.Payments.StartWindow, 10*time.Minute)

	if cfg.Subscriptions.SweepSchedule == "" {
		cfg.Subscriptions.SweepSchedule = "@every 5m"
	}
	cfg.Subscriptions.NoticeWindow = orDuration(cfg.Subscriptions.NoticeWindow, 24*time.Hour)
	cfg.Subscriptions.RunTimeout = orDuration(cfg.Subscriptions.RunTimeout, 2*time.Minute)
	if cfg.Subscriptions.Batch <= 0 {
		cfg.Subscriptions.Batch = 500
	}

	if cfg.Effector.Driver == "" {
		cfg.Effector.Driver = "discord"
	}
	cfg.Effector.Driver = strings.ToLower(cfg.Effector.Driver)
	if cfg.Effector.MaxAttempts <= 0 {
		cfg.Effector.MaxAttempts = 3
	}
	cfg.Effector.Backoff = orDuration(cfg.Effector.Backoff, 500*time.Millisecond)
	if cfg.Effector.RatePerSecond <= 0 {
		cfg.Effector.RatePerSecond = 5
	}
	if cfg.Discord.APIBase == "" {
		cfg.Discord.APIBase = "https://discord.com"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required")
	}
	switch cfg.Effector.Driver {
	case "discord":
		if cfg.Discord.Token == "" {
			return errors.New("discord.token is required")
		}
	case "telegram":
		if cfg.Telegram.Token == "" {
			return errors.New("telegram.token is required")
		}
	case "noop":
	default:
		return fmt.Errorf("effector.driver %q is not supported", cfg.Effector.Driver)
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
