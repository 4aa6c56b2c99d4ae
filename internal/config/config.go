// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required for server, migrate, seed, and worker.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis connection URL for endpoint rate limiting; empty disables rate limiting.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "storyhub-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "storyhub-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTL is the refresh token / session lifetime (e.g. "720h").
	RefreshTTL string `mapstructure:"REFRESH_TTL"`
	// RefreshTTLRememberMe is the extended session lifetime for remember-me logins (e.g. "1440h").
	RefreshTTLRememberMe string `mapstructure:"REFRESH_TTL_REMEMBER_ME"`
	// RefreshTokenBytes is the number of random bytes in an opaque refresh token (32-64).
	RefreshTokenBytes int `mapstructure:"REFRESH_TOKEN_BYTES"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PasswordChangePolicy selects which sessions a password change invalidates: "all" or "others".
	PasswordChangePolicy string `mapstructure:"PASSWORD_CHANGE_POLICY"`
	// RateLimitWindow is the fixed window for per-IP rate limiting on auth endpoints (e.g. "1m").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitMax is the number of requests allowed per window per key.
	RateLimitMax int `mapstructure:"RATE_LIMIT_MAX"`
	// LogoutRateWindowMinutes is the lookback window for counting recent logouts per user.
	LogoutRateWindowMinutes int `mapstructure:"LOGOUT_RATE_WINDOW_MINUTES"`
	// LogoutRateMax is the number of logouts per window before further logout calls are throttled.
	LogoutRateMax int `mapstructure:"LOGOUT_RATE_MAX"`
	// SessionReapInterval is how often the worker deletes expired session rows (e.g. "10m").
	SessionReapInterval string `mapstructure:"SESSION_REAP_INTERVAL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When the OTLP endpoint is set, the server exports traces, metrics, and logs.
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, the server also emits auth events to Kafka.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for auth events (default storyhub-auth-events).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_ISSUER", "storyhub-auth")
	v.SetDefault("JWT_AUDIENCE", "storyhub-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h")              // 30d
	v.SetDefault("REFRESH_TTL_REMEMBER_ME", "1440h") // 60d
	v.SetDefault("REFRESH_TOKEN_BYTES", 32)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PASSWORD_CHANGE_POLICY", "others")
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_MAX", 30)
	v.SetDefault("LOGOUT_RATE_WINDOW_MINUTES", 10)
	v.SetDefault("LOGOUT_RATE_MAX", 20)
	v.SetDefault("SESSION_REAP_INTERVAL", "10m")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "storyhub-auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "storyhub-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RefreshTokenBytes < 32 || cfg.RefreshTokenBytes > 64 {
		return nil, errors.New("config: REFRESH_TOKEN_BYTES must be between 32 and 64")
	}

	switch cfg.PasswordChangePolicy {
	case "all", "others":
	default:
		return nil, errors.New(`config: PASSWORD_CHANGE_POLICY must be "all" or "others"`)
	}

	// Remember-me sessions must not be shorter than regular ones.
	if cfg.RefreshTTLRememberMeDuration() < cfg.RefreshTTLDuration() {
		return nil, errors.New("config: REFRESH_TTL_REMEMBER_ME must not be shorter than REFRESH_TTL")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTLDuration parses RefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// RefreshTTLRememberMeDuration parses RefreshTTLRememberMe as a time.Duration. Returns 1440h if unset or invalid.
func (c *Config) RefreshTTLRememberMeDuration() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTLRememberMe)
	if err != nil || d <= 0 {
		return 1440 * time.Hour
	}
	return d
}

// RateLimitWindowDuration parses RateLimitWindow as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) RateLimitWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ReapInterval parses SessionReapInterval as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) ReapInterval() time.Duration {
	d, err := time.ParseDuration(c.SessionReapInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// LogoutRateWindow returns the recent-logout lookback window as a duration.
func (c *Config) LogoutRateWindow() time.Duration {
	if c.LogoutRateWindowMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.LogoutRateWindowMinutes) * time.Minute
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
