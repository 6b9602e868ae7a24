package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RetentionDays   int     `mapstructure:"retention_days"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	FlushIntervalMs int     `mapstructure:"flush_interval_ms"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Operations      OperationsConfig      `mapstructure:"operations"`
	Grid            GridConfig            `mapstructure:"grid"`
	Resolver        ResolverConfig        `mapstructure:"resolver"`
	Expressions     ExpressionsConfig     `mapstructure:"expressions"`
	Pages           PagesConfig           `mapstructure:"pages"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
	Auth            AuthConfig            `mapstructure:"auth"`
	JWTSecret       string                `mapstructure:"jwt_secret"`
}

// AuthConfig seeds the first operator account on startup when both are set,
// and controls the operator tokens the login route issues.
type AuthConfig struct {
	AdminEmail      string `mapstructure:"admin_email"`
	AdminPassword   string `mapstructure:"admin_password"`
	Issuer          string `mapstructure:"issuer"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// TokenTTL returns how long an issued operator token stays valid.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// OperationsConfig points at the backend that serves named page operations.
type OperationsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	// TaskPath is where report downloads are queued when a page routes reports through tasks.
	TaskPath string `mapstructure:"task_path"`
}

// Timeout returns the per-call timeout.
func (o OperationsConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

type GridConfig struct {
	OverflowThreshold int `mapstructure:"overflow_threshold"`
	DefaultPageSize   int `mapstructure:"default_page_size"`
}

type ResolverConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type ExpressionsConfig struct {
	// DisableOnError decides whether a button whose disableExpression fails
	// to evaluate is rendered disabled (true) or enabled (false).
	DisableOnError bool `mapstructure:"disable_on_error"`
}

type PagesConfig struct {
	Dir string `mapstructure:"dir"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		if d.Name == ":memory:" {
			return d.Name
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "panel")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("operations.base_url", "http://localhost:9000/api")
	v.SetDefault("operations.timeout_ms", 30000)
	v.SetDefault("operations.task_path", "/tasks")
	v.SetDefault("grid.overflow_threshold", 4)
	v.SetDefault("grid.default_page_size", 10)
	v.SetDefault("resolver.max_concurrency", 8)
	v.SetDefault("expressions.disable_on_error", true)
	v.SetDefault("pages.dir", "")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.issuer", "panel-runtime")
	v.SetDefault("auth.token_ttl_minutes", 480)
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.retention_days", 7)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.flush_interval_ms", 100)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "panel")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	SetDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	SetDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
