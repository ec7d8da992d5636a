package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/middleware/csrf"
	"github.com/tech-arch1tect/walletauth/middleware/ratelimit"
	"github.com/tech-arch1tect/walletauth/openapi"
	authservice "github.com/tech-arch1tect/walletauth/services/auth"
	"github.com/tech-arch1tect/walletauth/services/jwt"
	"github.com/tech-arch1tect/walletauth/services/siwe"
	"github.com/tech-arch1tect/walletauth/session"
	"github.com/tech-arch1tect/walletauth/testutils"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type handlerFixture struct {
	t     *testing.T
	cfg   *config.Config
	echo  *echo.Echo
	spec  *openapi.Spec
	store *session.MemoryStore
}

func newHandlerFixture(t *testing.T, mutate ...func(*config.Config)) *handlerFixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	cfg.Admin.Addresses = []string{testutils.WalletAddressB}
	for _, m := range mutate {
		m(cfg)
	}

	nonces := siwe.NewMemoryNonceStore()
	store := session.NewMemoryStore(session.Retention{
		ActiveTTL:         cfg.Session.ActiveTTL,
		InactiveRetention: cfg.Session.InactiveRetention,
	})
	manager := session.NewManager(cfg.Session, store, jwt.NewService(cfg, nil), nil)
	service := authservice.NewService(cfg,
		siwe.NewIssuer(nonces, cfg.SIWE.NonceBytes, cfg.SIWE.NonceWindow, nil),
		siwe.NewVerifier(cfg.SIWE, nonces, nil),
		manager, nil)

	e := echo.New()
	spec := openapi.New("walletauth", "test")
	NewHandler(cfg, service, nil).Register(e, Routes{
		RateLimit: ratelimit.FromConfig(&cfg.RateLimit, ratelimit.NewMemoryStore(), nil),
		CSRF:      csrf.Middleware(&cfg.CSRF),
		Spec:      spec,
	})

	return &handlerFixture{t: t, cfg: cfg, echo: e, spec: spec, store: store}
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("User-Agent", userAgent)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) nonce(address string) NonceResponse {
	f.t.Helper()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/nonce?address="+address, nil))
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp NonceResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *handlerFixture) verify(body authservice.SignInRequest, query string) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(f.t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/verify"+query, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return f.do(req)
}

func (f *handlerFixture) signedBody(key, address string) authservice.SignInRequest {
	f.t.Helper()

	challenge := f.nonce(address)
	require.NotEmpty(f.t, challenge.Message)
	return authservice.SignInRequest{
		Message:   challenge.Message,
		Signature: testutils.NewWallet(f.t, key).Sign(challenge.Message),
	}
}

// signInBearer signs in and returns the bearer token.
func (f *handlerFixture) signInBearer(key, address string) string {
	f.t.Helper()

	rec := f.verify(f.signedBody(key, address), "?delivery=bearer")
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp VerifyResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(f.t, resp.Token)
	return resp.Token
}

func (f *handlerFixture) bearer(method, target, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return f.do(req)
}

func sessionIDs(t *testing.T, rec *httptest.ResponseRecorder) (ids []string, current string) {
	t.Helper()

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, s := range resp.Sessions {
		ids = append(ids, s.SessionID)
		if s.Current {
			current = s.SessionID
		}
	}
	return ids, current
}

func TestNonce(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("bare challenge", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp NonceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Nonce)
		assert.Empty(t, resp.Message)
		assert.False(t, resp.ExpiresAt.IsZero())
	})

	t.Run("rendered message", func(t *testing.T) {
		resp := f.nonce(testutils.WalletAddressA)

		assert.True(t, strings.HasPrefix(resp.Message, "app.example.com wants you to sign in with your Ethereum account:\n"+testutils.WalletAddressA))
		assert.Contains(t, resp.Message, "Nonce: "+resp.Nonce)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
		}{
			{"bad address", "?address=not-an-address"},
			{"bad chain id", "?address=" + testutils.WalletAddressA + "&chain_id=abc"},
			{"zero chain id", "?address=" + testutils.WalletAddressA + "&chain_id=0"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/nonce"+tt.query, nil))
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestCookieSignInFlow(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.verify(f.signedBody(testutils.WalletKeyA, testutils.WalletAddressA), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var verified VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.Success)
	assert.Empty(t, verified.Token, "cookie clients never see the token")

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cfg.Session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	withCookie := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		return f.do(req)
	}

	rec = withCookie(http.MethodGet, "/auth/check")
	require.Equal(t, http.StatusOK, rec.Code)
	var check CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.True(t, check.Authenticated)
	assert.Equal(t, strings.ToLower(testutils.WalletAddressA), check.Identity)

	rec = withCookie(http.MethodPost, "/auth/logout")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, cookie.Name, cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)

	rec = withCookie(http.MethodGet, "/auth/check")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify_Failures(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("wrong signer", func(t *testing.T) {
		body := f.signedBody(testutils.WalletKeyB, testutils.WalletAddressA)

		rec := f.verify(body, "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"verification failed"}`, rec.Body.String())
	})

	t.Run("replayed message", func(t *testing.T) {
		body := f.signedBody(testutils.WalletKeyA, testutils.WalletAddressA)
		require.Equal(t, http.StatusOK, f.verify(body, "").Code)

		rec := f.verify(body, "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"verification failed"}`, rec.Body.String())
	})

	t.Run("empty body", func(t *testing.T) {
		rec := f.verify(authservice.SignInRequest{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

		rec := f.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		body := f.signedBody(testutils.WalletKeyA, testutils.WalletAddressA)
		body.Message += strings.Repeat(" ", 16*1024)

		rec := f.verify(body, "")

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	f := newHandlerFixture(t)

	routes := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/auth/check"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodPost, "/auth/logout-all"},
		{http.MethodGet, "/auth/sessions"},
		{http.MethodDelete, "/auth/sessions/abc"},
		{http.MethodPost, "/admin/sessions/" + testutils.WalletAddressA + "/abc/suspend"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.target, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(r.method, r.target, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = f.bearer(r.method, r.target, "garbage", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestSessionManagement(t *testing.T) {
	f := newHandlerFixture(t)

	first := f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA)
	second := f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA)

	ids, current := sessionIDs(t, f.bearer(http.MethodGet, "/auth/sessions", second, nil))
	require.Len(t, ids, 2)
	require.NotEmpty(t, current)

	var other string
	for _, id := range ids {
		if id != current {
			other = id
		}
	}

	rec := f.bearer(http.MethodDelete, "/auth/sessions/"+url.PathEscape(other), second, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ids, _ = sessionIDs(t, f.bearer(http.MethodGet, "/auth/sessions", second, nil))
	assert.Equal(t, []string{current}, ids)
	assert.Equal(t, http.StatusUnauthorized, f.bearer(http.MethodGet, "/auth/check", first, nil).Code)

	rec = f.bearer(http.MethodDelete, "/auth/sessions/unknown", second, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	f := newHandlerFixture(t)

	tokens := []string{
		f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA),
		f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA),
		f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA),
	}

	rec := f.bearer(http.MethodPost, "/auth/logout-all", tokens[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LogoutAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Revoked)

	for _, token := range tokens {
		assert.Equal(t, http.StatusUnauthorized, f.bearer(http.MethodGet, "/auth/check", token, nil).Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	f := newHandlerFixture(t)

	user := f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA)
	admin := f.signInBearer(testutils.WalletKeyB, testutils.WalletAddressB)

	_, userSession := sessionIDs(t, f.bearer(http.MethodGet, "/auth/sessions", user, nil))
	base := "/admin/sessions/" + testutils.WalletAddressA + "/" + url.PathEscape(userSession)

	t.Run("non-admin is forbidden", func(t *testing.T) {
		rec := f.bearer(http.MethodPost, base+"/suspend", user, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := f.bearer(http.MethodPost, "/admin/sessions/"+testutils.WalletAddressA+"/missing/suspend", admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("blacklist", func(t *testing.T) {
		rec := f.bearer(http.MethodPost, base+"/blacklist", admin, BlacklistRequest{Reason: "stolen device"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Equal(t, http.StatusUnauthorized, f.bearer(http.MethodGet, "/auth/check", user, nil).Code)

		rec = f.bearer(http.MethodPost, base+"/suspend", admin, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, "blacklisted sessions cannot be suspended")
	})
}

func TestSuspend(t *testing.T) {
	f := newHandlerFixture(t)

	user := f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA)
	admin := f.signInBearer(testutils.WalletKeyB, testutils.WalletAddressB)
	_, userSession := sessionIDs(t, f.bearer(http.MethodGet, "/auth/sessions", user, nil))

	rec := f.bearer(http.MethodPost, "/admin/sessions/"+testutils.WalletAddressA+"/"+url.PathEscape(userSession)+"/suspend", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, f.bearer(http.MethodGet, "/auth/check", user, nil).Code)
}

func TestRateLimitedSignIn(t *testing.T) {
	f := newHandlerFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Rate = 2
	})

	for i := 0; i < 2; i++ {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = f.verify(authservice.SignInRequest{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "verify has its own window")
}

func TestCSRFOnCookieRoutes(t *testing.T) {
	f := newHandlerFixture(t, func(cfg *config.Config) {
		cfg.CSRF.Enabled = true
	})

	rec := f.verify(f.signedBody(testutils.WalletKeyA, testutils.WalletAddressA), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cfg.Session.CookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	rec = f.do(req)
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var token CSRFResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	require.NotEmpty(t, token.Token)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	req.AddCookie(&http.Cookie{Name: f.cfg.CSRF.CookieName, Value: token.Token})
	req.Header.Set("X-CSRF-Token", token.Token)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	bearerToken := f.signInBearer(testutils.WalletKeyA, testutils.WalletAddressA)
	rec = f.bearer(http.MethodPost, "/auth/logout", bearerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "bearer requests skip the csrf check")
}

func TestRoutesAreDocumented(t *testing.T) {
	f := newHandlerFixture(t)
	doc := f.spec.Document()

	for _, path := range []string{
		"/auth/nonce",
		"/auth/verify",
		"/auth/check",
		"/auth/csrf",
		"/auth/logout",
		"/auth/logout-all",
		"/auth/sessions",
		"/auth/sessions/{id}",
		"/admin/sessions/{identity}/{id}/blacklist",
		"/admin/sessions/{identity}/{id}/suspend",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	assert.Contains(t, doc.Components.SecuritySchemes, securityBearer)
	assert.Contains(t, doc.Components.SecuritySchemes, securityCookie)
	assert.Contains(t, doc.Components.Schemas, "Record")
}
