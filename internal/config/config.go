// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sessiondomain "auth-session-service/internal/session/domain"
)

// minProductionHMACKeyBytes is the shortest REFRESH_TOKEN_HMAC_KEY accepted when APP_ENV=production.
const minProductionHMACKeyBytes = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR" validate:"required"`
	// GRPCHealthAddr is the address of the grpc.health.v1 server.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR" validate:"required"`

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBMaxConns caps the pgx pool size; 0 keeps the pgx default.
	DBMaxConns int32 `mapstructure:"DB_MAX_CONNS" validate:"gte=0"`
	// StoreTimeout bounds every session store call. Exceeding it surfaces as a retryable failure.
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT" validate:"gt=0s"`

	// SessionSlideWindow is added to expires_at on each issuance and rotation.
	SessionSlideWindow time.Duration `mapstructure:"SESSION_SLIDE_WINDOW" validate:"gt=0s"`
	// SessionMaxLifetime caps absolute_expiry from the first issuance of a lineage.
	SessionMaxLifetime time.Duration `mapstructure:"SESSION_MAX_LIFETIME" validate:"gt=0s"`
	// RefreshTokenHMACKey keys the refresh secret digest. Empty falls back to plain SHA-256 (development only).
	RefreshTokenHMACKey string `mapstructure:"REFRESH_TOKEN_HMAC_KEY"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER" validate:"required"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE" validate:"required"`
	// JWTAccessTTL is the access token lifetime.
	JWTAccessTTL time.Duration `mapstructure:"JWT_ACCESS_TTL" validate:"gt=0s"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// CookieSecure sets the Secure attribute on the refresh cookie. Only disable for local plain-HTTP development.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
	// AuthRateLimitRPS and AuthRateLimitBurst configure the per-IP token bucket on /api/v1/auth.
	AuthRateLimitRPS   float64 `mapstructure:"AUTH_RATE_LIMIT_RPS" validate:"gt=0"`
	AuthRateLimitBurst int     `mapstructure:"AUTH_RATE_LIMIT_BURST" validate:"gt=0"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty trusts no proxy: the rate limiter and request log use the peer address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// SecurityEventsKafkaBrokers is a comma-separated list of Kafka brokers. Empty disables the Kafka sink.
	SecurityEventsKafkaBrokers string `mapstructure:"SECURITY_EVENTS_KAFKA_BROKERS"`
	SecurityEventsKafkaTopic   string `mapstructure:"SECURITY_EVENTS_KAFKA_TOPIC"`
	// SecurityEventsKafkaGroupID is the consumer group the worker's watch command joins.
	SecurityEventsKafkaGroupID string `mapstructure:"SECURITY_EVENTS_KAFKA_GROUP_ID"`

	// PruneSchedule is the cron spec the worker uses to delete stale sessions.
	PruneSchedule string `mapstructure:"PRUNE_SCHEDULE" validate:"required"`
	// PruneRetention is how long expired or revoked sessions are kept for replay detection.
	PruneRetention time.Duration `mapstructure:"PRUNE_RETENTION" validate:"gte=0s"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                      ":8080",
	"GRPC_HEALTH_ADDR":               ":8081",
	"DATABASE_URL":                   "",
	"DB_MAX_CONNS":                   0,
	"STORE_TIMEOUT":                  "3s",
	"SESSION_SLIDE_WINDOW":           "168h", // 7d
	"SESSION_MAX_LIFETIME":           "720h", // 30d
	"REFRESH_TOKEN_HMAC_KEY":         "",
	"JWT_PRIVATE_KEY":                "",
	"JWT_PUBLIC_KEY":                 "",
	"JWT_ISSUER":                     "auth-session-service",
	"JWT_AUDIENCE":                   "auth-session-api",
	"JWT_ACCESS_TTL":                 "15m",
	"BCRYPT_COST":                    12,
	"COOKIE_SECURE":                  true,
	"AUTH_RATE_LIMIT_RPS":            5,
	"AUTH_RATE_LIMIT_BURST":          10,
	"LOG_LEVEL":                      "info",
	"LOG_FORMAT":                     "text",
	"APP_ENV":                        "",
	"OTEL_EXPORTER_OTLP_ENDPOINT":    "",
	"OTEL_EXPORTER_OTLP_INSECURE":    false,
	"SECURITY_EVENTS_KAFKA_BROKERS":  "",
	"SECURITY_EVENTS_KAFKA_TOPIC":    "session-security-events",
	"SECURITY_EVENTS_KAFKA_GROUP_ID": "session-security-watch",
	"PRUNE_SCHEDULE":                 "@hourly",
	"PRUNE_RETENTION":                "720h",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if any field is invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if err := c.Session().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.IsProduction() {
		if len(strings.TrimSpace(c.RefreshTokenHMACKey)) < minProductionHMACKeyBytes {
			return fmt.Errorf("config: REFRESH_TOKEN_HMAC_KEY must be at least %d bytes when APP_ENV=production", minProductionHMACKeyBytes)
		}
		if !c.CookieSecure {
			return errors.New("config: COOKIE_SECURE must be true when APP_ENV=production")
		}
	}
	for _, p := range c.TrustedProxiesList() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}
	if c.SecurityEventsKafkaBrokers != "" && strings.TrimSpace(c.SecurityEventsKafkaTopic) == "" {
		return errors.New("config: SECURITY_EVENTS_KAFKA_TOPIC must be set when SECURITY_EVENTS_KAFKA_BROKERS is set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Session returns the session lifetime settings consumed by the rotation engine.
func (c *Config) Session() sessiondomain.Config {
	return sessiondomain.Config{
		SlideWindow: c.SessionSlideWindow,
		MaxLifetime: c.SessionMaxLifetime,
	}
}

// HMACKey returns the refresh secret digest key, or nil when unset.
func (c *Config) HMACKey() []byte {
	key := strings.TrimSpace(c.RefreshTokenHMACKey)
	if key == "" {
		return nil
	}
	return []byte(key)
}

// TrustedProxiesList returns the trusted proxy entries; empty means none.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

// SecurityEventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the Kafka security-event sink is disabled.
func (c *Config) SecurityEventsKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.SecurityEventsKafkaBrokers)
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
