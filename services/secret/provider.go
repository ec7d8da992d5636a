package secret

import (
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
)

// EnforceConfiguredSecret is the startup gate for JWT_SECRET_KEY.
func EnforceConfiguredSecret(cfg *config.Config, logger *logging.Service) error {
	return Enforce(cfg.JWT.SecretKey, logger.Named("secret"))
}
