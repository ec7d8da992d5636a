package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/middleware/csrf"
	"github.com/tech-arch1tect/walletauth/middleware/ratelimit"
	"github.com/tech-arch1tect/walletauth/openapi"
	authservice "github.com/tech-arch1tect/walletauth/services/auth"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/fx"
)

func ProvideHandler(cfg *config.Config, auth *authservice.Service, logger *logging.Service) *Handler {
	return NewHandler(cfg, auth, logger.Named("handlers"))
}

type RouteParams struct {
	fx.In
	Echo      *echo.Echo
	Config    *config.Config
	Handler   *Handler
	RateLimit ratelimit.Store
	Logger    *logging.Service
	Spec      *openapi.Spec `optional:"true"`
}

func RegisterRoutes(p RouteParams) {
	p.Handler.Register(p.Echo, Routes{
		RateLimit: ratelimit.FromConfig(&p.Config.RateLimit, p.RateLimit, p.Logger),
		CSRF:      csrf.Middleware(&p.Config.CSRF),
		Spec:      p.Spec,
	})
}

var Module = fx.Options(
	fx.Provide(ProvideHandler),
	fx.Invoke(RegisterRoutes),
)
