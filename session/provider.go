package session

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/jwt"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionalDB struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func ProvideStore(cfg *config.Config, logger *logging.Service, optDB OptionalDB) (Store, error) {
	retention := Retention{
		ActiveTTL:         cfg.Session.ActiveTTL,
		InactiveRetention: cfg.Session.InactiveRetention,
	}

	switch cfg.Session.Store {
	case "memory":
		logger.Info("using in-memory session store; sessions are lost on restart")
		return NewMemoryStore(retention), nil
	case "database":
		if optDB.DB == nil {
			return nil, fmt.Errorf("session store %q requires a database connection", cfg.Session.Store)
		}
		logger.Info("using database session store", zap.String("table", Record{}.TableName()))
		return NewGormStore(optDB.DB, retention), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}
}

type OptionalAlerter struct {
	fx.In
	Alerter Alerter `optional:"true"`
}

func ProvideManager(cfg *config.Config, store Store, tokens *jwt.Service, logger *logging.Service, optAlerter OptionalAlerter) *Manager {
	manager := NewManager(cfg.Session, store, tokens, logger.Named("session"))
	if optAlerter.Alerter != nil {
		manager.SetAlerter(optAlerter.Alerter)
	}
	return manager
}

type JanitorParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Store     Store
	Logger    *logging.Service
	Metrics   *metrics.Metrics `optional:"true"`
	Targets   []PurgeTarget    `group:"purge_targets"`
}

func RegisterJanitor(p JanitorParams) *Janitor {
	janitor := NewJanitor(p.Config.Session.CleanupPeriod, p.Logger.Named("janitor"))
	janitor.SetMetrics(p.Metrics)
	janitor.Add("sessions", p.Store)
	for _, target := range p.Targets {
		if target.Purger != nil {
			janitor.Add(target.Name, target.Purger)
		}
	}

	lc := p.Lifecycle

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return janitor.Stop(ctx)
		},
	})

	return janitor
}

var Module = fx.Module("session",
	fx.Provide(ProvideStore),
	fx.Provide(ProvideManager),
	fx.Provide(RegisterJanitor),
	fx.Invoke(func(*Janitor) {}),
)
