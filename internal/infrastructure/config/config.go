package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Vault     VaultConfig
	Dispatch  DispatchConfig
	Connect   ConnectConfig
	Audit     AuditConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Environment names recognized in app.env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
	// PublicURL is the externally reachable base URL, used when
	// registering webhook endpoints with platforms.
	PublicURL string
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the management API
type JWTConfig struct {
	Secret          string
	TokenExpiration time.Duration
	Issuer          string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// MaxBodySize bounds webhook payloads; platforms send at most a few
	// hundred KB per callback.
	MaxBodySize    int64
	TrustedProxies []string
	// CORSOrigins are the browser origins allowed on the management API.
	// Empty disables CORS entirely; webhook intake never needs it.
	CORSOrigins []string
}

// VaultConfig holds credential encryption settings
type VaultConfig struct {
	// Key is the master key the AES key is derived from. Empty outside
	// production means a generated throwaway key (connections do not
	// survive restarts); empty in production is a startup error.
	Key string
	// Salt feeds key derivation; fixed per deployment.
	Salt string
}

// DispatchConfig holds fan-out and retry settings for platform calls
type DispatchConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	// AdmissionTimeout bounds how long a dispatch waits on a saturated
	// rate limiter before giving up.
	AdmissionTimeout time.Duration
	RequestTimeout   time.Duration
	// FanoutConcurrency caps simultaneous per-platform syncs in one
	// dispatch-all run.
	FanoutConcurrency int
}

// ConnectConfig throttles repeated connect attempts per user
type ConnectConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// AuditConfig holds audit log retention settings
type AuditConfig struct {
	// Retention is how long entries stay queryable before archival.
	Retention    time.Duration
	ArchiveBatch int
}

// StorageConfig holds S3-compatible object storage settings for audit
// archives
type StorageConfig struct {
	Enabled         bool
	Endpoint        string // custom endpoint for MinIO or similar
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// SchedulerConfig holds maintenance loop configuration
type SchedulerConfig struct {
	Enabled bool
	// SweepInterval drives credential expiry checks and chat-limiter
	// eviction.
	SweepInterval   time.Duration
	ArchiveInterval time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0, 1.0 = 100%
	ServiceName       string
	Insecure          bool // non-TLS connection (development only)
}

// ProfilingConfig holds continuous profiling (Pyroscope) configuration
type ProfilingConfig struct {
	Enabled       bool
	ServerAddress string // Pyroscope server URL (e.g., "http://localhost:4040")
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with HUB_ prefix (e.g., HUB_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:      v.GetString("app.name"),
			Env:       v.GetString("app.env"),
			Port:      v.GetString("app.port"),
			PublicURL: v.GetString("app.public_url"),
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
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			TokenExpiration: v.GetDuration("jwt.token_expiration"),
			Issuer:          v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:    v.GetStringSlice("http.cors_origins"),
		},
		Vault: VaultConfig{
			Key:  v.GetString("vault.key"),
			Salt: v.GetString("vault.salt"),
		},
		Dispatch: DispatchConfig{
			MaxRetries:        v.GetInt("dispatch.max_retries"),
			RetryBaseDelay:    v.GetDuration("dispatch.retry_base_delay"),
			AdmissionTimeout:  v.GetDuration("dispatch.admission_timeout"),
			RequestTimeout:    v.GetDuration("dispatch.request_timeout"),
			FanoutConcurrency: v.GetInt("dispatch.fanout_concurrency"),
		},
		Connect: ConnectConfig{
			MaxAttempts: v.GetInt("connect.max_attempts"),
			Window:      v.GetDuration("connect.window"),
		},
		Audit: AuditConfig{
			Retention:    v.GetDuration("audit.retention"),
			ArchiveBatch: v.GetInt("audit.archive_batch"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			SweepInterval:   v.GetDuration("scheduler.sweep_interval"),
			ArchiveInterval: v.GetDuration("scheduler.archive_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
		Profiling: ProfilingConfig{
			Enabled:       v.GetBool("profiling.enabled"),
			ServerAddress: v.GetString("profiling.server_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "omnihub"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = EnvDevelopment
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
		cfg.Database.DBName = "omnihub"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.TokenExpiration == 0 {
		cfg.JWT.TokenExpiration = 24 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "omnihub"
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
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB, webhook payloads are small
	}
	if cfg.Vault.Salt == "" {
		cfg.Vault.Salt = "omnihub-vault-v1"
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.RetryBaseDelay == 0 {
		cfg.Dispatch.RetryBaseDelay = time.Second
	}
	if cfg.Dispatch.AdmissionTimeout == 0 {
		cfg.Dispatch.AdmissionTimeout = 30 * time.Second
	}
	if cfg.Dispatch.RequestTimeout == 0 {
		cfg.Dispatch.RequestTimeout = 30 * time.Second
	}
	if cfg.Dispatch.FanoutConcurrency == 0 {
		cfg.Dispatch.FanoutConcurrency = 8
	}
	if cfg.Connect.MaxAttempts == 0 {
		cfg.Connect.MaxAttempts = 5
	}
	if cfg.Connect.Window == 0 {
		cfg.Connect.Window = time.Hour
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 90 * 24 * time.Hour
	}
	if cfg.Audit.ArchiveBatch == 0 {
		cfg.Audit.ArchiveBatch = 1000
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = 5 * time.Minute
	}
	if cfg.Scheduler.ArchiveInterval == 0 {
		cfg.Scheduler.ArchiveInterval = 24 * time.Hour
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "omnihub"
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
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
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == EnvProduction {
		if c.Vault.Key == "" {
			return fmt.Errorf("vault.key is required in production")
		}
		if len(c.Vault.Key) < 32 {
			return fmt.Errorf("vault.key must be at least 32 characters in production")
		}
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.App.PublicURL == "" {
			return fmt.Errorf("app.public_url is required in production (platforms must reach webhook endpoints)")
		}
		if c.Storage.Enabled && c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage is enabled")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address for the Redis client.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
