package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	SIWE      SIWEConfig      `envPrefix:"SIWE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	CSRF      CSRFConfig      `envPrefix:"CSRF_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	Admin     AdminConfig     `envPrefix:"ADMIN_"`
	OpenAPI   OpenAPIConfig   `envPrefix:"OPENAPI_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"walletauth.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// JWTConfig configures the signed session token. SecretKey is checked by the
// secret strength gate before anything is served.
type JWTConfig struct {
	SecretKey string        `env:"SECRET_KEY"`
	Issuer    string        `env:"ISSUER" envDefault:"walletauth"`
	Expiry    time.Duration `env:"EXPIRY" envDefault:"24h"`
}

type SessionConfig struct {
	Store             string        `env:"STORE" envDefault:"memory"`
	MaxPerIdentity    int           `env:"MAX_PER_IDENTITY" envDefault:"5"`
	ActiveTTL         time.Duration `env:"ACTIVE_TTL" envDefault:"24h"`
	InactiveRetention time.Duration `env:"INACTIVE_RETENTION" envDefault:"720h"`
	Version           int           `env:"VERSION" envDefault:"1"`
	CleanupPeriod     time.Duration `env:"CLEANUP_PERIOD" envDefault:"10m"`
	CookieName        string        `env:"COOKIE_NAME" envDefault:"walletauth_session"`
	CookieDomain      string        `env:"COOKIE_DOMAIN"`
	CookieSecure      bool          `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite    string        `env:"COOKIE_SAME_SITE" envDefault:"strict"`
}

// SIWEConfig describes the sign-in messages this service accepts. Domain must
// match the domain line of every signed message exactly.
type SIWEConfig struct {
	Domain      string        `env:"DOMAIN" envDefault:"localhost:8080"`
	URI         string        `env:"URI" envDefault:"http://localhost:8080"`
	Statement   string        `env:"STATEMENT" envDefault:"Sign in with your wallet."`
	NonceStore  string        `env:"NONCE_STORE" envDefault:"memory"`
	NonceWindow time.Duration `env:"NONCE_WINDOW" envDefault:"10m"`
	NonceBytes  int           `env:"NONCE_BYTES" envDefault:"16"`
	ClockSkew   time.Duration `env:"CLOCK_SKEW" envDefault:"1m"`
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

// RateLimitConfig limits the sign-in routes. Key is "ip", or "device" to also
// separate clients behind one address by their fingerprint.
type RateLimitConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Store     string        `env:"STORE" envDefault:"memory"`
	Rate      int           `env:"RATE" envDefault:"10"`
	Period    time.Duration `env:"PERIOD" envDefault:"1m"`
	CountMode CountingMode  `env:"COUNT_MODE" envDefault:"all"`
	Key       string        `env:"KEY" envDefault:"ip"`
}

type CSRFConfig struct {
	Enabled        bool   `env:"ENABLED" envDefault:"true"`
	TokenLength    uint8  `env:"TOKEN_LENGTH" envDefault:"32"`
	TokenLookup    string `env:"TOKEN_LOOKUP" envDefault:"header:X-CSRF-Token"`
	ContextKey     string `env:"CONTEXT_KEY" envDefault:"csrf"`
	CookieName     string `env:"COOKIE_NAME" envDefault:"_csrf"`
	CookieDomain   string `env:"COOKIE_DOMAIN"`
	CookiePath     string `env:"COOKIE_PATH" envDefault:"/"`
	CookieMaxAge   int    `env:"COOKIE_MAX_AGE" envDefault:"86400"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieHTTPOnly bool   `env:"COOKIE_HTTP_ONLY" envDefault:"false"`
	CookieSameSite string `env:"COOKIE_SAME_SITE" envDefault:"strict"`
}

type MailConfig struct {
	Enabled         bool     `env:"ENABLED" envDefault:"false"`
	Host            string   `env:"HOST" envDefault:"localhost"`
	Port            int      `env:"PORT" envDefault:"587"`
	Username        string   `env:"USERNAME"`
	Password        string   `env:"PASSWORD"`
	Encryption      string   `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress     string   `env:"FROM_ADDRESS"`
	FromName        string   `env:"FROM_NAME" envDefault:"walletauth"`
	AlertRecipients []string `env:"ALERT_RECIPIENTS" envSeparator:","`
}

type AdminConfig struct {
	Addresses []string `env:"ADDRESSES" envSeparator:","`
}

type OpenAPIConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Title   string `env:"TITLE" envDefault:"walletauth"`
	Version string `env:"VERSION" envDefault:"1.0.0"`
}

type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}
	return nil
}

// Validate checks the structural settings. The signing secret is judged
// separately by the secret strength gate at startup.
func (c *Config) Validate() error {
	if err := validateSessionConfig(&c.Session); err != nil {
		return err
	}
	if err := validateRateLimitConfig(&c.RateLimit); err != nil {
		return err
	}
	return validateSIWEConfig(&c.SIWE)
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Key {
	case "ip", "device":
	default:
		return fmt.Errorf("rate limit key must be: ip or device")
	}
	return nil
}

func validateSessionConfig(cfg *SessionConfig) error {
	if cfg.MaxPerIdentity < 1 {
		return fmt.Errorf("session max per identity must be at least 1")
	}
	if cfg.ActiveTTL <= 0 {
		return fmt.Errorf("session active TTL must be positive")
	}
	if cfg.InactiveRetention <= 0 {
		return fmt.Errorf("session inactive retention must be positive")
	}
	switch cfg.Store {
	case "memory", "database":
	default:
		return fmt.Errorf("session store must be: memory or database")
	}
	return nil
}

func validateSIWEConfig(cfg *SIWEConfig) error {
	if cfg.Domain == "" {
		return fmt.Errorf("SIWE domain is required")
	}
	if cfg.NonceWindow <= 0 {
		return fmt.Errorf("SIWE nonce window must be positive")
	}
	if cfg.NonceBytes < 16 {
		return fmt.Errorf("SIWE nonce must be at least 16 bytes")
	}
	switch cfg.NonceStore {
	case "memory", "database":
	default:
		return fmt.Errorf("SIWE nonce store must be: memory or database")
	}
	return nil
}
