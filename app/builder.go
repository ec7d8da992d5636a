package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/database"
	authhandlers "github.com/tech-arch1tect/walletauth/handlers/auth"
	"github.com/tech-arch1tect/walletauth/middleware/ratelimit"
	"github.com/tech-arch1tect/walletauth/openapi"
	"github.com/tech-arch1tect/walletauth/server"
	"github.com/tech-arch1tect/walletauth/services/auth"
	"github.com/tech-arch1tect/walletauth/services/jwt"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/mail"
	"github.com/tech-arch1tect/walletauth/services/metrics"
	"github.com/tech-arch1tect/walletauth/services/secret"
	"github.com/tech-arch1tect/walletauth/services/siwe"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const purgeTargets = `group:"purge_targets"`

type AppBuilder struct {
	config    *config.Config
	logger    *logging.Service
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithLogger replaces the logger built from the log config.
func (b *AppBuilder) WithLogger(logger *logging.Service) *AppBuilder {
	b.logger = logger
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

// Build assembles the application. The signing secret is checked before any
// component is constructed; a weak secret returns secret.ErrWeakSecret.
func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		var err error
		if logger, err = logging.NewLoggingService(b.config); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	if err := secret.EnforceConfiguredSecret(b.config, logger); err != nil {
		return nil, err
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	options := b.buildFxOptions(logger)
	options = append(options, fx.Invoke(func(p populated) {
		app.server = p.Server
		app.db = p.DB
		app.sessions = p.Sessions
	}))

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to assemble application: %w", err)
	}

	return app, nil
}

type populated struct {
	fx.In
	Server   *server.Server
	Sessions *session.Manager
	DB       *gorm.DB `optional:"true"`
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}
	if b.config == nil {
		return fmt.Errorf("config is required")
	}
	return b.config.Validate()
}

// needsDatabase reports whether any store is configured to live in the
// database.
func (b *AppBuilder) needsDatabase() bool {
	return b.config.Session.Store == "database" ||
		b.config.SIWE.NonceStore == "database" ||
		(b.config.RateLimit.Enabled && b.config.RateLimit.Store == "database")
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	options := []fx.Option{
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	}

	if b.needsDatabase() {
		options = append(options,
			fx.Supply(database.WithModels(&session.Record{}, &siwe.Nonce{}, &ratelimit.Window{})),
			database.Module,
		)
	}

	options = append(options,
		server.Module,
		jwt.Module,
		siwe.Module,
		session.Module,
		auth.Module,
		fx.Provide(ratelimit.ProvideRateLimitStore),
		fx.Provide(
			fx.Annotate(noncePurgeTarget, fx.ResultTags(purgeTargets)),
			fx.Annotate(rateLimitPurgeTarget, fx.ResultTags(purgeTargets)),
		),
	)

	if b.config.Mail.Enabled {
		options = append(options, mail.Module)
	}
	if b.config.OpenAPI.Enabled {
		options = append(options, openapi.Module)
	}
	if b.config.Metrics.Enabled {
		options = append(options, metrics.Module)
	}

	options = append(options, authhandlers.Module)
	options = append(options, b.fxOptions...)

	return options
}

func noncePurgeTarget(store siwe.NonceStore) session.PurgeTarget {
	return session.PurgeTarget{Name: "nonces", Purger: store}
}

func rateLimitPurgeTarget(store ratelimit.Store) session.PurgeTarget {
	return session.PurgeTarget{Name: "rate_limits", Purger: store}
}
