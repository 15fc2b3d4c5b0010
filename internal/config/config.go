package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the partner portal.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Provider  ProviderConfig  `yaml:"provider"`
	Queue     QueueConfig     `yaml:"queue"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Seed      SeedConfig      `yaml:"seed"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	DBName         string        `yaml:"name"`
	SSLMode        string        `yaml:"sslmode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`

	// KeyPrefix namespaces every portal key so instances can share a Redis.
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// ProviderConfig configures the external email-sending provider API.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// QueueConfig configures the AMQP broker used for report jobs. An empty URL
// means reports are generated inline.
type QueueConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// WebhookConfig configures report event delivery to tenant webhook URLs.
type WebhookConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	LoginRPS   float64 `yaml:"login_rps"`
	LoginBurst int     `yaml:"login_burst"`
	// TrustedProxies lists the IPs or CIDRs of reverse proxies whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// socket peer is always the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TrustedPrefixes parses TrustedProxies. Bare addresses become single-host
// prefixes.
func (c RateLimitConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, s := range c.TrustedProxies {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SeedConfig controls demo data on an empty store.
type SeedConfig struct {
	Demo bool `yaml:"demo"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           5432,
			User:           "portal",
			Password:       "portal_secret",
			DBName:         "partner_portal",
			SSLMode:        "disable",
			MaxConns:       25,
			MinConns:       5,
			ConnectTimeout: 10 * time.Second,
			AutoMigrate:    true,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			PoolSize:  20,
			KeyPrefix: "portal:",
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
			CookieName: "portal_session",
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.instantly.ai/api/v2",
			Timeout: 15 * time.Second,
		},
		Queue: QueueConfig{
			Exchange: "events",
			Queue:    "portal.reports",
		},
		Webhook: WebhookConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			RPS:        50,
			Burst:      100,
			LoginRPS:   0.2,
			LoginBurst: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Seed: SeedConfig{
			Demo: true,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file named by
// PORTAL_CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := getEnv("PORTAL_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("PORTAL_HTTP_ADDR", c.Server.Addr)
	c.Server.Env = getEnv("PORTAL_ENV", c.Server.Env)
	c.Server.ShutdownTimeout = getDurationEnv("PORTAL_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.AllowedOrigins = getSliceEnv("PORTAL_CORS_ORIGINS", c.Server.AllowedOrigins)

	c.Database.Enabled = getBoolEnv("PORTAL_DB_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnv("PORTAL_DB_HOST", c.Database.Host)
	c.Database.Port = getIntEnv("PORTAL_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("PORTAL_DB_USER", c.Database.User)
	c.Database.Password = getEnv("PORTAL_DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("PORTAL_DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("PORTAL_DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxConns = getIntEnv("PORTAL_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getIntEnv("PORTAL_DB_MIN_CONNS", c.Database.MinConns)
	c.Database.ConnectTimeout = getDurationEnv("PORTAL_DB_CONNECT_TIMEOUT", c.Database.ConnectTimeout)
	c.Database.AutoMigrate = getBoolEnv("PORTAL_DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.Enabled = getBoolEnv("PORTAL_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("PORTAL_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("PORTAL_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("PORTAL_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getIntEnv("PORTAL_REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.KeyPrefix = getEnv("PORTAL_REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Auth.JWTSecret = getEnv("PORTAL_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.SessionTTL = getDurationEnv("PORTAL_SESSION_TTL", c.Auth.SessionTTL)
	c.Auth.CookieName = getEnv("PORTAL_COOKIE_NAME", c.Auth.CookieName)
	c.Auth.CookieSecure = getBoolEnv("PORTAL_COOKIE_SECURE", c.Auth.CookieSecure)

	c.Provider.BaseURL = getEnv("PORTAL_PROVIDER_BASE_URL", c.Provider.BaseURL)
	c.Provider.Timeout = getDurationEnv("PORTAL_PROVIDER_TIMEOUT", c.Provider.Timeout)

	c.Queue.URL = getEnv("PORTAL_AMQP_URL", c.Queue.URL)
	c.Queue.Exchange = getEnv("PORTAL_AMQP_EXCHANGE", c.Queue.Exchange)
	c.Queue.Queue = getEnv("PORTAL_AMQP_QUEUE", c.Queue.Queue)

	c.Webhook.Enabled = getBoolEnv("PORTAL_WEBHOOK_ENABLED", c.Webhook.Enabled)
	c.Webhook.Timeout = getDurationEnv("PORTAL_WEBHOOK_TIMEOUT", c.Webhook.Timeout)

	c.RateLimit.Enabled = getBoolEnv("PORTAL_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RPS = getFloatEnv("PORTAL_RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getIntEnv("PORTAL_RATE_LIMIT_BURST", c.RateLimit.Burst)
	c.RateLimit.LoginRPS = getFloatEnv("PORTAL_RATE_LIMIT_LOGIN_RPS", c.RateLimit.LoginRPS)
	c.RateLimit.LoginBurst = getIntEnv("PORTAL_RATE_LIMIT_LOGIN_BURST", c.RateLimit.LoginBurst)
	c.RateLimit.TrustedProxies = getSliceEnv("PORTAL_TRUSTED_PROXIES", c.RateLimit.TrustedProxies)

	c.Log.Level = getEnv("PORTAL_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("PORTAL_LOG_FORMAT", c.Log.Format)

	c.Metrics.Enabled = getBoolEnv("PORTAL_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("PORTAL_METRICS_PATH", c.Metrics.Path)

	c.Seed.Demo = getBoolEnv("PORTAL_SEED_DEMO", c.Seed.Demo)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("PORTAL_JWT_SECRET is required outside development")
		}
		c.Auth.JWTSecret = "dev-only-insecure-secret"
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("cookie name is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base url is required")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if c.Database.Enabled && c.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("database connect timeout must be positive")
	}
	if _, err := c.RateLimit.TrustedPrefixes(); err != nil {
		return err
	}
	if c.Queue.URL != "" && !c.Database.Enabled {
		return fmt.Errorf("PORTAL_AMQP_URL requires PORTAL_DB_ENABLED: queued reports are processed by a worker that shares the database")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getSliceEnv reads a comma-separated list.
func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
