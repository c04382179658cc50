package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Posting     PostingConfig
	Rulebook    RulebookConfig
	Sweep       SweepConfig
	Escalation  EscalationConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	// APIVersions lists the accepted X-API-Version header values
	APIVersions    []string
	TrustedProxies []string
}

// PostingConfig holds classification and batching tunables
type PostingConfig struct {
	ImmediateThreshold    decimal.Decimal
	BatchingThreshold     decimal.Decimal
	ConfidenceFloor       float64
	NeverRelevantPatterns []string
	CriticalPatterns      []string
	// OrganizationThresholds maps organization id to its own thresholds
	OrganizationThresholds map[string]ThresholdOverride
	WriteTimeout           time.Duration
	AuditTimeout           time.Duration
}

// ThresholdOverride is one organization's threshold pair. Empty values
// fall back to the global thresholds.
type ThresholdOverride struct {
	Immediate string `mapstructure:"immediate"`
	Batching  string `mapstructure:"batching"`
}

// RulebookConfig locates the account mapping file
type RulebookConfig struct {
	Path  string // empty uses the built-in mapping table
	Watch bool   // reload on file change
}

// SweepConfig controls the stale batch flush job
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	MaxAge   time.Duration
	Limit    int
}

// EscalationConfig configures the external journal proposer
type EscalationConfig struct {
	Provider      string // gemini or disabled
	APIKey        string
	Model         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// IdempotencyConfig configures duplicate detection for ingest
type IdempotencyConfig struct {
	Enabled bool
	Backend string // redis or memory
	TTL     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool // Export logs through the OTLP bridge
	// Database tracing options
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// ProfilingConfig holds Pyroscope settings
type ProfilingConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with HERA_ prefix (e.g., HERA_DATABASE_PASSWORD)
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
	}

	return fromViper(v)
}

// fromViper builds the configuration from an initialized viper instance
func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("HERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
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
			APIVersions:    v.GetStringSlice("http.api_versions"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Posting: PostingConfig{
			ConfidenceFloor:       v.GetFloat64("posting.confidence_floor"),
			NeverRelevantPatterns: v.GetStringSlice("posting.never_relevant_patterns"),
			CriticalPatterns:      v.GetStringSlice("posting.critical_patterns"),
			WriteTimeout:          v.GetDuration("posting.write_timeout"),
			AuditTimeout:          v.GetDuration("posting.audit_timeout"),
		},
		Rulebook: RulebookConfig{
			Path:  v.GetString("rulebook.path"),
			Watch: v.GetBool("rulebook.watch"),
		},
		Sweep: SweepConfig{
			Enabled:  v.GetBool("sweep.enabled"),
			Interval: v.GetDuration("sweep.interval"),
			MaxAge:   v.GetDuration("sweep.max_age"),
			Limit:    v.GetInt("sweep.limit"),
		},
		Escalation: EscalationConfig{
			Provider:      v.GetString("escalation.provider"),
			APIKey:        v.GetString("escalation.api_key"),
			Model:         v.GetString("escalation.model"),
			Timeout:       v.GetDuration("escalation.timeout"),
			RatePerSecond: v.GetFloat64("escalation.rate_per_second"),
			Burst:         v.GetInt("escalation.burst"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			Backend: v.GetString("idempotency.backend"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:         v.GetBool("profiling.enabled"),
			ServerAddress:   v.GetString("profiling.server_address"),
			ApplicationName: v.GetString("profiling.application_name"),
		},
	}

	var err error
	if cfg.Posting.ImmediateThreshold, err = decimalSetting(v, "posting.immediate_threshold"); err != nil {
		return nil, err
	}
	if cfg.Posting.BatchingThreshold, err = decimalSetting(v, "posting.batching_threshold"); err != nil {
		return nil, err
	}
	if err := v.UnmarshalKey("posting.organization_thresholds", &cfg.Posting.OrganizationThresholds); err != nil {
		return nil, fmt.Errorf("error reading posting.organization_thresholds: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decimalSetting reads an amount kept as a string so no float rounding occurs
func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal amount: %w", key, err)
	}
	return d, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "hera-autojournal"
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
		cfg.Database.DBName = "hera"
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
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "hera"
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
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.APIVersions) == 0 {
		cfg.HTTP.APIVersions = []string{"2024-12-01"}
	}

	if cfg.Posting.ImmediateThreshold.IsZero() {
		cfg.Posting.ImmediateThreshold = decimal.NewFromInt(1000)
	}
	if cfg.Posting.BatchingThreshold.IsZero() {
		cfg.Posting.BatchingThreshold = decimal.NewFromInt(500)
	}
	if cfg.Posting.ConfidenceFloor == 0 {
		cfg.Posting.ConfidenceFloor = 0.5
	}
	if len(cfg.Posting.NeverRelevantPatterns) == 0 {
		cfg.Posting.NeverRelevantPatterns = []string{"QUOTE", "DRAFT", "ESTIMATE", "RESERVATION"}
	}
	if len(cfg.Posting.CriticalPatterns) == 0 {
		cfg.Posting.CriticalPatterns = []string{"CRITICAL"}
	}
	if cfg.Posting.WriteTimeout == 0 {
		cfg.Posting.WriteTimeout = 5 * time.Second
	}
	if cfg.Posting.AuditTimeout == 0 {
		cfg.Posting.AuditTimeout = 2 * time.Second
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 15 * time.Minute
	}
	if cfg.Sweep.MaxAge == 0 {
		cfg.Sweep.MaxAge = 24 * time.Hour
	}
	if cfg.Sweep.Limit == 0 {
		cfg.Sweep.Limit = 100
	}

	if cfg.Escalation.Provider == "" {
		cfg.Escalation.Provider = "disabled"
	}
	if cfg.Escalation.Model == "" {
		cfg.Escalation.Model = "gemini-2.5-flash"
	}
	if cfg.Escalation.Timeout == 0 {
		cfg.Escalation.Timeout = 3 * time.Second
	}
	if cfg.Escalation.RatePerSecond == 0 {
		cfg.Escalation.RatePerSecond = 5
	}
	if cfg.Escalation.Burst == 0 {
		cfg.Escalation.Burst = 10
	}

	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
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

	if !c.Posting.ImmediateThreshold.IsPositive() || !c.Posting.BatchingThreshold.IsPositive() {
		return fmt.Errorf("posting thresholds must be positive")
	}
	if c.Posting.ConfidenceFloor < 0 || c.Posting.ConfidenceFloor > 1 {
		return fmt.Errorf("posting.confidence_floor must be between 0.0 and 1.0, got %f", c.Posting.ConfidenceFloor)
	}
	for org, o := range c.Posting.OrganizationThresholds {
		for _, raw := range []string{o.Immediate, o.Batching} {
			if raw == "" {
				continue
			}
			if d, err := decimal.NewFromString(raw); err != nil || !d.IsPositive() {
				return fmt.Errorf("posting.organization_thresholds.%s: %q is not a positive amount", org, raw)
			}
		}
	}

	switch c.Escalation.Provider {
	case "disabled":
	case "gemini":
		if c.Escalation.APIKey == "" {
			return fmt.Errorf("escalation.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("escalation.provider must be gemini or disabled, got %q", c.Escalation.Provider)
	}

	switch c.Idempotency.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("idempotency.backend must be memory or redis, got %q", c.Idempotency.Backend)
	}

	if c.App.Env == "production" {
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
		if c.Idempotency.Enabled && c.Idempotency.Backend == "memory" {
			return fmt.Errorf("idempotency.backend must be redis in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
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

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
