package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Webhooks   WebhookConfig    `mapstructure:"webhooks"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig covers the distributed counter store. An empty URL is a
// supported configuration: rate limiting and counter operations degrade to
// no-ops instead of erroring.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Audit string `mapstructure:"audit"`
	} `mapstructure:"topics"`
}

// AuthConfig selects the validator mode. When JWKSURL is set the validator
// verifies against the Dynamic.xyz key set; otherwise it falls back to HMAC
// with AppSecret.
type AuthConfig struct {
	JWKSURL       string          `mapstructure:"jwks_url"`
	EnvironmentID string          `mapstructure:"environment_id"`
	AppSecret     string          `mapstructure:"app_secret"`
	Issuer        string          `mapstructure:"issuer"`
	TokenTTL      time.Duration   `mapstructure:"token_ttl"`
	JWKSTimeout   time.Duration   `mapstructure:"jwks_timeout"`
	JWKSCacheTTL  time.Duration   `mapstructure:"jwks_cache_ttl"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	PerMinute int           `mapstructure:"per_minute"`
	Window    time.Duration `mapstructure:"window"`
}

type WebhookConfig struct {
	HeliusSecret  string `mapstructure:"helius_secret"`
	DynamicSecret string `mapstructure:"dynamic_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.audit", "auth-audit")

	// Auth defaults
	viper.SetDefault("auth.jwks_url", "https://app.dynamic.xyz/api/v0/environments/{ENVIRONMENT_ID}/keys")
	viper.SetDefault("auth.environment_id", "")
	viper.SetDefault("auth.app_secret", "")
	viper.SetDefault("auth.issuer", "")
	viper.SetDefault("auth.token_ttl", "1h")
	viper.SetDefault("auth.jwks_timeout", "10s")
	viper.SetDefault("auth.jwks_cache_ttl", "1h")
	viper.SetDefault("auth.rate_limit.per_minute", 60)
	viper.SetDefault("auth.rate_limit.window", "1m")

	// Webhook defaults
	viper.SetDefault("webhooks.helius_secret", "")
	viper.SetDefault("webhooks.dynamic_secret", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization"})
}
