package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Local  LocalConfig    `mapstructure:"local"`
	Remote DatabaseConfig `mapstructure:"remote"`
	Auth   AuthConfig     `mapstructure:"auth"`
	Sync   SyncConfig     `mapstructure:"sync"`
	Events EventsConfig   `mapstructure:"events"`
	Log    LogConfig      `mapstructure:"log"`
}

type LocalConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	CACertFile      string            `mapstructure:"ca_cert_file" validate:"omitempty,file"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

// Enabled reports whether a remote store is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != "" && c.Database != ""
}

type AuthConfig struct {
	// UserID of the signed-in user. Empty means anonymous.
	UserID string `mapstructure:"user_id"`
}

type SyncConfig struct {
	Interval                 time.Duration `mapstructure:"interval" validate:"gt=0"`
	RemoteTimeout            time.Duration `mapstructure:"remote_timeout" validate:"gt=0"`
	RetryAttempts            uint          `mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelay               time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	MaxRetryDelay            time.Duration `mapstructure:"max_retry_delay" validate:"gtefield=RetryDelay"`
	MaxItemAttempts          int           `mapstructure:"max_item_attempts" validate:"min=1"`
	DrainConcurrency         int           `mapstructure:"drain_concurrency" validate:"min=1"`
	ReviewHorizon            time.Duration `mapstructure:"review_horizon" validate:"gte=0"`
	ThroughputBytesPerSecond int64         `mapstructure:"throughput_bytes_per_second" validate:"gt=0"`
	PerItemOverhead          time.Duration `mapstructure:"per_item_overhead" validate:"gte=0"`
}

type EventsConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr" validate:"omitempty,hostport"`
	Channel string `mapstructure:"channel" validate:"required_with=Addr"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxFiles   int    `mapstructure:"max_files" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/learnsync")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("local.path", filepath.Join("data", "learnsync.db"))
	v.SetDefault("remote.port", 3306)
	v.SetDefault("remote.max_open_conns", 10)
	v.SetDefault("remote.max_idle_conns", 5)
	v.SetDefault("remote.conn_max_lifetime_seconds", 300)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.remote_timeout", 10*time.Second)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_delay", 200*time.Millisecond)
	v.SetDefault("sync.max_retry_delay", 5*time.Second)
	v.SetDefault("sync.max_item_attempts", 5)
	v.SetDefault("sync.drain_concurrency", 4)
	v.SetDefault("sync.review_horizon", 24*time.Hour)
	v.SetDefault("sync.throughput_bytes_per_second", 64*1024)
	v.SetDefault("sync.per_item_overhead", 50*time.Millisecond)
	v.SetDefault("events.redis.channel", "learnsync:events")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_files", 3)
	v.SetDefault("log.max_age_days", 28)
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper
	SetDefaults(v)

	// Secrets and identity come from the environment only
	if err := v.BindEnv("remote.password", "DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PASSWORD environment variable: %w", err)
	}
	if err := v.BindEnv("auth.user_id", "LEARNSYNC_USER_ID"); err != nil {
		return nil, fmt.Errorf("failed to bind LEARNSYNC_USER_ID environment variable: %w", err)
	}
	if err := v.BindEnv("events.redis.addr", "REDIS_ADDR"); err != nil {
		return nil, fmt.Errorf("failed to bind REDIS_ADDR environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}
