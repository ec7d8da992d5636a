package ratelimit

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type OptionalDB struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func ProvideRateLimitStore(cfg *config.Config, optDB OptionalDB) (Store, error) {
	switch cfg.RateLimit.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "database":
		if optDB.DB == nil {
			return nil, fmt.Errorf("rate limit store %q requires a database connection", cfg.RateLimit.Store)
		}
		return NewGormStore(optDB.DB), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", cfg.RateLimit.Store)
	}
}

// FromConfig builds the middleware for the auth routes, or a pass-through if
// rate limiting is disabled.
func FromConfig(cfg *config.RateLimitConfig, store Store, logger *logging.Service) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	keyGenerator := DefaultKeyGenerator
	if cfg.Key == "device" {
		keyGenerator = DeviceKeyGenerator
	}

	return Middleware(&Config{
		Store:        store,
		Rate:         cfg.Rate,
		Period:       cfg.Period,
		CountMode:    cfg.CountMode,
		KeyGenerator: keyGenerator,
		Logger:       logger.Named("ratelimit"),
	})
}
