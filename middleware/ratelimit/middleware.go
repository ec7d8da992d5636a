package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/fingerprint"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/zap"
)

type Config struct {
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Logger         *logging.Service
	now            func() time.Time
}

// Middleware limits requests per key. A store failure lets the request
// through; it is logged.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}

	if cfg.now == nil {
		cfg.now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := cfg.KeyGenerator(c)
			now := cfg.now()

			count, resetAt, err := cfg.Store.Get(ctx, key, now)
			if err != nil {
				cfg.Logger.Error("rate limit store unavailable", zap.Error(err))
				return next(c)
			}
			if resetAt.IsZero() {
				resetAt = now.Add(cfg.Period)
			}

			if count >= cfg.Rate {
				setHeaders(c, cfg.Rate, 0, resetAt)
				cfg.Logger.Warn("rate limit reached",
					zap.String("path", c.Request().URL.Path),
					zap.String("ip", c.RealIP()))
				return cfg.OnLimitReached(c)
			}

			if cfg.CountMode == config.CountAll {
				count, resetAt, err = cfg.Store.Increment(ctx, key, now, cfg.Period)
				if err != nil {
					cfg.Logger.Error("rate limit store unavailable", zap.Error(err))
					return next(c)
				}
				setHeaders(c, cfg.Rate, cfg.Rate-count, resetAt)
				return next(c)
			}

			setHeaders(c, cfg.Rate, cfg.Rate-count-1, resetAt)

			err = next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			if shouldCount(cfg.CountMode, status) {
				if _, _, incErr := cfg.Store.Increment(ctx, key, now, cfg.Period); incErr != nil {
					cfg.Logger.Error("rate limit store unavailable", zap.Error(incErr))
				}
			}

			return err
		}
	}
}

func shouldCount(mode config.CountingMode, status int) bool {
	switch mode {
	case config.CountFailures:
		return status >= http.StatusBadRequest
	case config.CountSuccess:
		return status < http.StatusBadRequest
	default:
		return true
	}
}

func setHeaders(c echo.Context, rate, remaining int, resetAt time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// DefaultKeyGenerator keys on the client address echo resolved through the
// server's trusted proxy settings.
func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + c.Path() + ":" + realIP
}

// DeviceKeyGenerator additionally separates clients behind one address by
// their device fingerprint.
func DeviceKeyGenerator(c echo.Context) string {
	deviceID := fingerprint.FromRequest(c.Request()).DeviceID()
	return DefaultKeyGenerator(c) + ":" + deviceID[:8]
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
}
