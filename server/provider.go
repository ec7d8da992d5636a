package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideEcho(srv *Server) *echo.Echo {
	return srv.Echo()
}

func RegisterLifecycle(lc fx.Lifecycle, srv *Server, shutdowner fx.Shutdowner, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			srv.LogRoutes()
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server stopped unexpectedly", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(ProvideEcho),
	fx.Invoke(RegisterLifecycle),
)
