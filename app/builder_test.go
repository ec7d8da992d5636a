package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/walletauth/config"
	authhandlers "github.com/tech-arch1tect/walletauth/handlers/auth"
	"github.com/tech-arch1tect/walletauth/middleware/ratelimit"
	authservice "github.com/tech-arch1tect/walletauth/services/auth"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/secret"
	"github.com/tech-arch1tect/walletauth/services/siwe"
	"github.com/tech-arch1tect/walletauth/session"
	"github.com/tech-arch1tect/walletauth/testutils"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := testutils.GetTestConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	return cfg
}

func build(t *testing.T, cfg *config.Config, opts ...fx.Option) *App {
	t.Helper()

	app, err := NewApp().
		WithConfig(cfg).
		WithLogger(logging.NewFromZap(zap.NewNop())).
		WithFxOptions(opts...).
		Build()
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
	})
	return app
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo().ServeHTTP(rec, req)
	return rec
}

func TestNewApp(t *testing.T) {
	builder := NewApp()

	assert.Nil(t, builder.config)
	assert.Empty(t, builder.fxOptions)
	assert.Empty(t, builder.errors)
}

func TestAppBuilder_RejectsBadConfiguration(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewApp().WithConfig(nil).Build()
		assert.ErrorContains(t, err, "config cannot be nil")
	})

	t.Run("invalid session settings", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.MaxPerIdentity = 0

		_, err := NewApp().WithConfig(cfg).Build()
		assert.ErrorContains(t, err, "max per identity")
	})

	t.Run("weak secret is fatal", func(t *testing.T) {
		for name, weak := range map[string]string{
			"empty":         testutils.TestSecrets.Empty,
			"too short":     testutils.TestSecrets.TooShort,
			"all lowercase": testutils.TestSecrets.AllLowercase,
		} {
			t.Run(name, func(t *testing.T) {
				cfg := testConfig()
				cfg.JWT.SecretKey = weak

				app, err := NewApp().WithConfig(cfg).WithLogger(nil).Build()

				assert.Nil(t, app)
				assert.ErrorIs(t, err, secret.ErrWeakSecret)
			})
		}
	})

	t.Run("database store without usable database", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.Store = "database"
		cfg.Database.Driver = "oracle"

		_, err := NewApp().WithConfig(cfg).WithLogger(nil).Build()
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestApp_SignInEndToEnd(t *testing.T) {
	app := build(t, testConfig())
	require.NotNil(t, app.Server())
	require.NotNil(t, app.Sessions())
	assert.Nil(t, app.DB(), "memory stores need no database")

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/auth/nonce?address="+testutils.WalletAddressA, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var challenge authhandlers.NonceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))

	payload, err := json.Marshal(authservice.SignInRequest{
		Message:   challenge.Message,
		Signature: testutils.NewWallet(t, testutils.WalletKeyA).Sign(challenge.Message),
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/verify?delivery=bearer", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = serve(app, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified authhandlers.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))

	req = httptest.NewRequest(http.MethodGet, "/auth/check", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+verified.Token)
	assert.Equal(t, http.StatusOK, serve(app, req).Code)

	sessions, err := app.Sessions().ListActiveSessions(context.Background(), testutils.WalletAddressA)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestApp_OpenAPI(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		app := build(t, testConfig())

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "/auth/verify")

		rec = serve(app, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.OpenAPI.Enabled = false
		app := build(t, cfg)

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestApp_Metrics(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		app := build(t, testConfig())

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "walletauth_nonces_issued_total 1")
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics.Enabled = false
		app := build(t, cfg)

		rec := serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestApp_DatabaseStores(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Store = "database"
	cfg.SIWE.NonceStore = "database"
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Store = "database"

	var sessionStore session.Store
	var nonceStore siwe.NonceStore
	var limiterStore ratelimit.Store
	app := build(t, cfg, fx.Populate(&sessionStore, &nonceStore, &limiterStore))

	require.NotNil(t, app.DB())
	assert.True(t, app.DB().Migrator().HasTable(&session.Record{}))
	assert.True(t, app.DB().Migrator().HasTable(&siwe.Nonce{}))
	assert.True(t, app.DB().Migrator().HasTable(&ratelimit.Window{}))

	assert.IsType(t, &session.GormStore{}, sessionStore)
	assert.IsType(t, &siwe.GormNonceStore{}, nonceStore)
	assert.IsType(t, &ratelimit.GormStore{}, limiterStore)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_MailAlerts(t *testing.T) {
	cfg := testConfig()
	cfg.Mail.Enabled = true
	cfg.Mail.AlertRecipients = []string{"security@example.com"}

	var alerter session.Alerter
	build(t, cfg, fx.Populate(&alerter))

	assert.NotNil(t, alerter)
}
