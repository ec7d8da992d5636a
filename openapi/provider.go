package openapi

import (
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"go.uber.org/fx"
)

func ProvideSpec(cfg *config.Config) *Spec {
	return New(cfg.OpenAPI.Title, cfg.OpenAPI.Version).
		Description("Wallet sign-in (EIP-4361) and session management")
}

var Module = fx.Options(
	fx.Provide(ProvideSpec),
	fx.Invoke(func(e *echo.Echo, spec *Spec) { spec.Register(e) }),
)
