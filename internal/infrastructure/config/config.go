package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Fortnox    FortnoxConfig
	RateLimit  RateLimitConfig
	Retry      RetryConfig
	Credential CredentialConfig
	AutoPost   AutoPostConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty Host selects the in-process transmission store.
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// FortnoxConfig holds the accounting platform client settings
type FortnoxConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	TokenURL       string
	APIBaseURL     string
	TimeoutSeconds int
	VoucherSeries  string
}

// RateLimitConfig is the outbound quota towards the platform
type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
	Margin   time.Duration
}

// RetryConfig holds the retry schedule for platform calls
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         float64
	MaxElapsed     time.Duration
	AttemptTimeout time.Duration
}

// CredentialConfig holds token lifecycle settings
type CredentialConfig struct {
	RefreshSkew     time.Duration
	MinValidity     time.Duration
	ExchangeTimeout time.Duration
	// EncryptionKey is a base64 encoded 32 byte key sealing tokens at rest.
	EncryptionKey string
}

// AutoPostConfig holds the guardrail policy used when a company has none stored
type AutoPostConfig struct {
	Enabled                  bool
	MinConfidence            decimal.Decimal
	MaxAmount                decimal.Decimal
	RequireKnownCounterparty bool
	AllowVATDeviation        bool
	ClaimTTL                 time.Duration
}

// StorageConfig holds the SIE archive settings. An empty Bucket keeps archives in memory.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGERFLOW_ prefix (e.g., LEDGERFLOW_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("LEDGERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	minConfidence, err := decimalSetting(v, "autopost.min_confidence")
	if err != nil {
		return nil, err
	}
	maxAmount, err := decimalSetting(v, "autopost.max_amount")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Fortnox: FortnoxConfig{
			ClientID:       v.GetString("fortnox.client_id"),
			ClientSecret:   v.GetString("fortnox.client_secret"),
			RedirectURI:    v.GetString("fortnox.redirect_uri"),
			TokenURL:       v.GetString("fortnox.token_url"),
			APIBaseURL:     v.GetString("fortnox.api_base_url"),
			TimeoutSeconds: v.GetInt("fortnox.timeout_seconds"),
			VoucherSeries:  v.GetString("fortnox.voucher_series"),
		},
		RateLimit: RateLimitConfig{
			MaxCalls: v.GetInt("rate_limit.max_calls"),
			Window:   v.GetDuration("rate_limit.window"),
			Margin:   v.GetDuration("rate_limit.margin"),
		},
		Retry: RetryConfig{
			MaxAttempts:    v.GetInt("retry.max_attempts"),
			BaseDelay:      v.GetDuration("retry.base_delay"),
			MaxDelay:       v.GetDuration("retry.max_delay"),
			Jitter:         v.GetFloat64("retry.jitter"),
			MaxElapsed:     v.GetDuration("retry.max_elapsed"),
			AttemptTimeout: v.GetDuration("retry.attempt_timeout"),
		},
		Credential: CredentialConfig{
			RefreshSkew:     v.GetDuration("credential.refresh_skew"),
			MinValidity:     v.GetDuration("credential.min_validity"),
			ExchangeTimeout: v.GetDuration("credential.exchange_timeout"),
			EncryptionKey:   v.GetString("credential.encryption_key"),
		},
		AutoPost: AutoPostConfig{
			Enabled:                  boolSetting(v, "autopost.enabled", true),
			MinConfidence:            minConfidence,
			MaxAmount:                maxAmount,
			RequireKnownCounterparty: boolSetting(v, "autopost.require_known_counterparty", true),
			AllowVATDeviation:        v.GetBool("autopost.allow_vat_deviation"),
			ClaimTTL:                 v.GetDuration("autopost.claim_ttl"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			Prefix:          v.GetString("storage.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
	}

	// Retry jitter of 0 is meaningful, so only fill it when unset.
	if !v.IsSet("retry.jitter") {
		cfg.Retry.Jitter = 0.25
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := v.GetString(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolSetting(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	return v.GetBool(key)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledgerflow"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ledgerflow"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "ledgerflow:transmission:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.Fortnox.TimeoutSeconds == 0 {
		cfg.Fortnox.TimeoutSeconds = 30
	}
	if cfg.Fortnox.VoucherSeries == "" {
		cfg.Fortnox.VoucherSeries = "A"
	}
	// 4 calls per second is the platform quota
	if cfg.RateLimit.MaxCalls == 0 {
		cfg.RateLimit.MaxCalls = 4
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Second
	}
	if cfg.RateLimit.Margin == 0 {
		cfg.RateLimit.Margin = 50 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 8 * time.Second
	}
	if cfg.Retry.MaxElapsed == 0 {
		cfg.Retry.MaxElapsed = 60 * time.Second
	}
	if cfg.Credential.RefreshSkew == 0 {
		cfg.Credential.RefreshSkew = 5 * time.Minute
	}
	if cfg.Credential.MinValidity == 0 {
		cfg.Credential.MinValidity = 60 * time.Second
	}
	if cfg.Credential.ExchangeTimeout == 0 {
		cfg.Credential.ExchangeTimeout = 30 * time.Second
	}
	if cfg.AutoPost.MinConfidence.IsZero() {
		cfg.AutoPost.MinConfidence = decimal.RequireFromString("0.8")
	}
	if cfg.AutoPost.MaxAmount.IsZero() {
		cfg.AutoPost.MaxAmount = decimal.NewFromInt(10000)
	}
	if cfg.AutoPost.ClaimTTL == 0 {
		cfg.AutoPost.ClaimTTL = 10 * time.Minute
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "eu-north-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledgerflow"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.RateLimit.MaxCalls < 0 {
		return fmt.Errorf("rate_limit.max_calls cannot be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("retry.jitter must be in [0, 1), got %f", c.Retry.Jitter)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.AutoPost.MinConfidence.IsNegative() || c.AutoPost.MinConfidence.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("autopost.min_confidence must be between 0 and 1")
	}
	if c.AutoPost.MaxAmount.IsNegative() {
		return fmt.Errorf("autopost.max_amount cannot be negative")
	}
	if c.Credential.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Credential.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("credential.encryption_key must be 32 bytes, base64 encoded")
		}
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Fortnox.ClientID == "" || c.Fortnox.ClientSecret == "" {
			return fmt.Errorf("fortnox.client_id and fortnox.client_secret are required in production")
		}
		if c.Credential.EncryptionKey == "" {
			return fmt.Errorf("credential.encryption_key is required in production")
		}
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required in production to share transmission claims")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required in production to retain SIE exports")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns host:port of the Redis server
func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
