package mail

import (
	"context"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Mail, logger.Named("mail"))
}

func ProvideAlerter(lc fx.Lifecycle, cfg *config.Config, svc *Service, logger *logging.Service) session.Alerter {
	alerter := NewSecurityAlerter(svc, cfg.Mail.AlertRecipients, logger.Named("alerts"))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return alerter.Wait(ctx)
		},
	})
	return alerter
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
	fx.Provide(ProvideAlerter),
)
