package siwe

import (
	"fmt"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionalDB struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func ProvideNonceStore(cfg *config.Config, logger *logging.Service, optDB OptionalDB) (NonceStore, error) {
	switch cfg.SIWE.NonceStore {
	case "memory":
		logger.Info("using in-memory nonce store; nonces are not shared between instances")
		return NewMemoryNonceStore(), nil
	case "database":
		if optDB.DB == nil {
			return nil, fmt.Errorf("nonce store %q requires a database connection", cfg.SIWE.NonceStore)
		}
		logger.Info("using database nonce store", zap.String("table", Nonce{}.TableName()))
		return NewGormNonceStore(optDB.DB), nil
	default:
		return nil, fmt.Errorf("unsupported nonce store type: %s", cfg.SIWE.NonceStore)
	}
}

func ProvideIssuer(cfg *config.Config, store NonceStore, logger *logging.Service) *Issuer {
	return NewIssuer(store, cfg.SIWE.NonceBytes, cfg.SIWE.NonceWindow, logger.Named("siwe"))
}

func ProvideVerifier(cfg *config.Config, store NonceStore, logger *logging.Service) *Verifier {
	return NewVerifier(cfg.SIWE, store, logger.Named("siwe"))
}

var Module = fx.Options(
	fx.Provide(ProvideNonceStore),
	fx.Provide(ProvideIssuer),
	fx.Provide(ProvideVerifier),
)
