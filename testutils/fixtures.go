package testutils

import (
	"time"

	"github.com/tech-arch1tect/walletauth/config"
)

// StrongSecret passes every secret strength check at the very-strong tier.
const StrongSecret = "Zq3vN8wLr5Tj2XkP9mHc4Ya7Ub1Ge6Sd0Fo3Ri8Wl5Ex2Ct7Vn4Bh9Kj1Mp6Qs0Yd"

func GetTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		JWT: config.JWTConfig{
			SecretKey: StrongSecret,
			Issuer:    "test-issuer",
			Expiry:    24 * time.Hour,
		},
		Session: config.SessionConfig{
			Store:             "memory",
			MaxPerIdentity:    5,
			ActiveTTL:         24 * time.Hour,
			InactiveRetention: 30 * 24 * time.Hour,
			Version:           1,
			CleanupPeriod:     time.Minute,
			CookieName:        "walletauth_session",
			CookieSecure:      true,
			CookieSameSite:    "strict",
		},
		SIWE: config.SIWEConfig{
			Domain:      "app.example.com",
			URI:         "https://app.example.com",
			Statement:   "Sign in with your wallet.",
			NonceStore:  "memory",
			NonceWindow: 10 * time.Minute,
			NonceBytes:  16,
			ClockSkew:   time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:   false,
			Store:     "memory",
			Rate:      10,
			Period:    time.Minute,
			CountMode: config.CountAll,
			Key:       "ip",
		},
		CSRF: config.CSRFConfig{
			Enabled:        false,
			TokenLength:    32,
			TokenLookup:    "header:X-CSRF-Token",
			ContextKey:     "csrf",
			CookieName:     "_csrf",
			CookiePath:     "/",
			CookieMaxAge:   86400,
			CookieSameSite: "strict",
		},
		Mail: config.MailConfig{
			Enabled:     false,
			Host:        "localhost",
			Port:        587,
			Encryption:  "none",
			FromAddress: "alerts@example.com",
			FromName:    "walletauth",
		},
		OpenAPI: config.OpenAPIConfig{
			Enabled: true,
			Title:   "walletauth",
			Version: "test",
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var TestSecrets = struct {
	Empty         string
	TooShort      string
	AllLowercase  string
	WeakPrefix    string
	RepeatedChars string
	Strong        string
}{
	Empty:         "",
	TooShort:      "Xk9#mP2$vL",
	AllLowercase:  "qwmnbvcxzlkjhgfdsapoiuytrewqazxsw",
	WeakPrefix:    "changeme-Zq3vN8wLr5Tj2XkP9mHc4Ya7Ub1Ge6Sd0Fo",
	RepeatedChars: "Zq3vN8wLr5Tj2Xkaaaaaaaa9mHc4Ya7Ub1Ge6Sd0Fo3Ri8",
	Strong:        StrongSecret,
}
