package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/walletauth/middleware/sessionauth"
	"github.com/tech-arch1tect/walletauth/openapi"
	authservice "github.com/tech-arch1tect/walletauth/services/auth"
)

const (
	securityBearer = "bearerAuth"
	securityCookie = "cookieAuth"

	// a signed sign-in message is well under 1K
	maxBodySize = "16K"
)

// Routes holds the middlewares the auth surface is mounted with.
type Routes struct {
	RateLimit echo.MiddlewareFunc
	CSRF      echo.MiddlewareFunc
	// Spec is optional; when set every route is documented in it.
	Spec *openapi.Spec
}

func (h *Handler) Register(e *echo.Echo, routes Routes) {
	routes.RateLimit = orPassThrough(routes.RateLimit)
	routes.CSRF = orPassThrough(routes.CSRF)

	requireSession := sessionauth.RequireSession(h.auth, h.config.Session.CookieName)
	requireAdmin := sessionauth.RequireAdmin(h.auth)

	g := e.Group("/auth", middleware.BodyLimit(maxBodySize))
	g.GET("/nonce", h.Nonce, routes.RateLimit)
	g.POST("/verify", h.Verify, routes.RateLimit)
	g.GET("/check", h.Check, requireSession)
	g.GET("/csrf", h.CSRFToken, routes.CSRF)
	g.POST("/logout", h.Logout, routes.CSRF, requireSession)
	g.POST("/logout-all", h.LogoutAll, routes.CSRF, requireSession)
	g.GET("/sessions", h.Sessions, requireSession)
	g.DELETE("/sessions/:id", h.RevokeSession, routes.CSRF, requireSession)

	admin := e.Group("/admin", middleware.BodyLimit(maxBodySize), routes.CSRF, requireSession, requireAdmin)
	admin.POST("/sessions/:identity/:id/blacklist", h.Blacklist)
	admin.POST("/sessions/:identity/:id/suspend", h.Suspend)

	if routes.Spec != nil {
		h.document(routes.Spec)
	}
}

func orPassThrough(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw != nil {
		return mw
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}

func (h *Handler) document(spec *openapi.Spec) {
	spec.Tag("auth", "Wallet sign-in and session management").
		Tag("admin", "Session administration").
		BearerAuth(securityBearer, "Session token from /auth/verify?delivery=bearer").
		CookieAuth(securityCookie, h.config.Session.CookieName, "Session cookie set by /auth/verify")

	unauthorized := ErrorResponse{Message: authservice.ErrUnauthenticated.Error()}
	unavailable := ErrorResponse{Message: authservice.ErrUnavailable.Error()}

	spec.Route(http.MethodGet, "/auth/nonce").
		Summary("Issue a single-use sign-in nonce").
		Tags("auth").
		QueryParam("address", "wallet address to render the sign-in message for", false).
		QueryParam("chain_id", "EIP-155 chain id for the rendered message, default 1", false).
		Response(http.StatusOK, NonceResponse{}, "challenge issued").
		Response(http.StatusBadRequest, ErrorResponse{}, "invalid address or chain id").
		Response(http.StatusTooManyRequests, ErrorResponse{}, "rate limited").
		Response(http.StatusServiceUnavailable, unavailable, "nonce store unavailable").
		NoSecurity().
		Build()

	spec.Route(http.MethodPost, "/auth/verify").
		Summary("Verify a signed EIP-4361 message and open a session").
		Tags("auth").
		QueryParam("delivery", "set to bearer to receive the token in the body instead of a cookie", false).
		Body(authservice.SignInRequest{}, "signed sign-in message").
		Response(http.StatusOK, VerifyResponse{}, "session opened").
		Response(http.StatusUnauthorized, ErrorResponse{}, "verification failed").
		Response(http.StatusRequestEntityTooLarge, ErrorResponse{}, "body over 16K").
		Response(http.StatusTooManyRequests, ErrorResponse{}, "rate limited").
		Response(http.StatusServiceUnavailable, unavailable, "authentication temporarily unavailable").
		NoSecurity().
		Build()

	spec.Route(http.MethodGet, "/auth/check").
		Summary("Check the presented session").
		Tags("auth").
		Response(http.StatusOK, CheckResponse{}, "session valid").
		Response(http.StatusUnauthorized, unauthorized, "re-authentication required").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodGet, "/auth/csrf").
		Summary("Fetch a CSRF token for cookie-authenticated requests").
		Tags("auth").
		Response(http.StatusOK, CSRFResponse{}, "token issued").
		NoSecurity().
		Build()

	spec.Route(http.MethodPost, "/auth/logout").
		Summary("End the current session").
		Tags("auth").
		Response(http.StatusOK, SuccessResponse{}, "logged out").
		Response(http.StatusUnauthorized, unauthorized, "re-authentication required").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodPost, "/auth/logout-all").
		Summary("End every session of the signed-in wallet").
		Tags("auth").
		Response(http.StatusOK, LogoutAllResponse{}, "logged out everywhere").
		Response(http.StatusUnauthorized, unauthorized, "re-authentication required").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodGet, "/auth/sessions").
		Summary("List active sessions of the signed-in wallet").
		Tags("auth").
		Response(http.StatusOK, SessionsResponse{}, "active sessions, current one flagged").
		Response(http.StatusUnauthorized, unauthorized, "re-authentication required").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodDelete, "/auth/sessions/:id").
		Summary("Revoke one of the signed-in wallet's sessions").
		Tags("auth").
		PathParam("id", "session id").
		Response(http.StatusNoContent, nil, "revoked").
		Response(http.StatusUnauthorized, unauthorized, "re-authentication required").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodPost, "/admin/sessions/:identity/:id/blacklist").
		Summary("Permanently block a session").
		Tags("admin").
		PathParam("identity", "wallet address owning the session").
		PathParam("id", "session id").
		Body(BlacklistRequest{}, "optional reason").
		Response(http.StatusOK, SuccessResponse{}, "blacklisted").
		Response(http.StatusForbidden, ErrorResponse{}, "caller is not an administrator").
		Response(http.StatusNotFound, ErrorResponse{}, "session not found").
		Security(securityBearer, securityCookie).
		Build()

	spec.Route(http.MethodPost, "/admin/sessions/:identity/:id/suspend").
		Summary("Suspend an active session").
		Tags("admin").
		PathParam("identity", "wallet address owning the session").
		PathParam("id", "session id").
		Response(http.StatusOK, SuccessResponse{}, "suspended").
		Response(http.StatusForbidden, ErrorResponse{}, "caller is not an administrator").
		Response(http.StatusNotFound, ErrorResponse{}, "session not found").
		Response(http.StatusConflict, ErrorResponse{}, "session is not active").
		Security(securityBearer, securityCookie).
		Build()
}
