package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"go.uber.org/fx"
)

// Optional lets consumers run with metrics disabled.
type Optional struct {
	fx.In
	Metrics *Metrics `optional:"true"`
}

func ProvideMetrics() *Metrics {
	return New()
}

func RegisterRoute(e *echo.Echo, cfg *config.Config, m *Metrics) {
	e.GET(cfg.Metrics.Path, m.Handler())
}

var Module = fx.Options(
	fx.Provide(ProvideMetrics),
	fx.Invoke(RegisterRoute),
)
