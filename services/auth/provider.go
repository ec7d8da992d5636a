package auth

import (
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/metrics"
	"github.com/tech-arch1tect/walletauth/services/siwe"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/fx"
)

func ProvideAuthService(cfg *config.Config, issuer *siwe.Issuer, verifier *siwe.Verifier, sessions *session.Manager, logger *logging.Service, optMetrics metrics.Optional) *Service {
	service := NewService(cfg, issuer, verifier, sessions, logger.Named("auth"))
	service.SetMetrics(optMetrics.Metrics)
	return service
}

var Module = fx.Options(
	fx.Provide(ProvideAuthService),
)
