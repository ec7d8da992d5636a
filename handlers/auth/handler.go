package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/middleware/csrf"
	"github.com/tech-arch1tect/walletauth/middleware/sessionauth"
	authservice "github.com/tech-arch1tect/walletauth/services/auth"
	"github.com/tech-arch1tect/walletauth/services/fingerprint"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/zap"
)

// DeliveryBearer asks /auth/verify to return the token in the body instead
// of setting the session cookie.
const DeliveryBearer = "bearer"

type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message,omitempty" doc:"message to sign, rendered when address is given"`
}

type VerifyResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty" doc:"only returned for delivery=bearer"`
}

type CheckResponse struct {
	Authenticated bool      `json:"authenticated"`
	Identity      string    `json:"identity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type CSRFResponse struct {
	Token string `json:"csrf_token"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type LogoutAllResponse struct {
	Success bool `json:"success"`
	Revoked int  `json:"revoked"`
}

type SessionsResponse struct {
	Sessions []session.Record `json:"sessions"`
}

type BlacklistRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	config *config.Config
	auth   *authservice.Service
	logger *logging.Service
}

func NewHandler(cfg *config.Config, auth *authservice.Service, logger *logging.Service) *Handler {
	return &Handler{
		config: cfg,
		auth:   auth,
		logger: logger,
	}
}

// Nonce issues a challenge. With ?address= it also renders the exact message
// the wallet should sign.
func (h *Handler) Nonce(c echo.Context) error {
	challenge, err := h.auth.IssueNonce(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, authservice.ErrUnavailable.Error())
	}

	resp := NonceResponse{Nonce: challenge.Nonce, ExpiresAt: challenge.ExpiresAt}

	if address := c.QueryParam("address"); address != "" {
		chainID := int64(1)
		if raw := c.QueryParam("chain_id"); raw != "" {
			chainID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || chainID < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid chain id")
			}
		}

		resp.Message, err = h.auth.MessageFor(address, chainID, challenge)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, authservice.ErrInvalidAddress.Error())
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Verify(c echo.Context) error {
	var req authservice.SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	created, err := h.auth.SignIn(c.Request().Context(), req, fingerprint.FromRequest(c.Request()))
	if err != nil {
		if errors.Is(err, authservice.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, authservice.ErrUnavailable.Error())
		}
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrVerificationFailed.Error())
	}

	resp := VerifyResponse{Success: true, ExpiresAt: created.ExpiresAt}
	if c.QueryParam("delivery") == DeliveryBearer {
		resp.Token = created.Token
	} else {
		c.SetCookie(h.sessionCookie(created.Token, created.ExpiresAt))
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Check(c echo.Context) error {
	validation := sessionauth.GetValidation(c)
	if validation == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrUnauthenticated.Error())
	}

	return c.JSON(http.StatusOK, CheckResponse{
		Authenticated: true,
		Identity:      validation.Identity,
		ExpiresAt:     validation.Record.ExpiresAt,
	})
}

func (h *Handler) CSRFToken(c echo.Context) error {
	return c.JSON(http.StatusOK, CSRFResponse{Token: csrf.GetToken(c, h.config.CSRF.ContextKey)})
}

func (h *Handler) Logout(c echo.Context) error {
	validation := sessionauth.GetValidation(c)
	if validation == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrUnauthenticated.Error())
	}

	if err := h.auth.Logout(c.Request().Context(), validation.Identity, validation.SessionID); err != nil {
		return h.storeFailure(c, "logout failed", err)
	}

	c.SetCookie(h.expiredCookie())
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) LogoutAll(c echo.Context) error {
	identity := sessionauth.GetIdentity(c)
	if identity == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrUnauthenticated.Error())
	}

	revoked, err := h.auth.LogoutAll(c.Request().Context(), identity)
	if err != nil {
		return h.storeFailure(c, "logout everywhere failed", err)
	}

	c.SetCookie(h.expiredCookie())
	return c.JSON(http.StatusOK, LogoutAllResponse{Success: true, Revoked: revoked})
}

func (h *Handler) Sessions(c echo.Context) error {
	validation := sessionauth.GetValidation(c)
	if validation == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrUnauthenticated.Error())
	}

	records, err := h.auth.Sessions(c.Request().Context(), validation.Identity, validation.SessionID)
	if err != nil {
		return h.storeFailure(c, "listing sessions failed", err)
	}

	return c.JSON(http.StatusOK, SessionsResponse{Sessions: records})
}

// RevokeSession ends one of the caller's own sessions. Unknown ids are not an
// error so the response says nothing about other sessions.
func (h *Handler) RevokeSession(c echo.Context) error {
	validation := sessionauth.GetValidation(c)
	if validation == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, authservice.ErrUnauthenticated.Error())
	}

	sessionID := c.Param("id")
	if err := h.auth.Logout(c.Request().Context(), validation.Identity, sessionID); err != nil {
		return h.storeFailure(c, "revoking session failed", err)
	}

	if sessionID == validation.SessionID {
		c.SetCookie(h.expiredCookie())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Blacklist(c echo.Context) error {
	var req BlacklistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.Reason == "" {
		req.Reason = "blacklisted by administrator"
	}

	err := h.auth.Blacklist(c.Request().Context(), sessionauth.GetIdentity(c), c.Param("identity"), c.Param("id"), req.Reason)
	if err != nil {
		return h.adminFailure(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) Suspend(c echo.Context) error {
	err := h.auth.Suspend(c.Request().Context(), sessionauth.GetIdentity(c), c.Param("identity"), c.Param("id"))
	if err != nil {
		return h.adminFailure(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) adminFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "session cannot change to that status")
	default:
		return h.storeFailure(c, "admin session action failed", err)
	}
}

func (h *Handler) storeFailure(c echo.Context, msg string, err error) error {
	h.logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return echo.NewHTTPError(http.StatusServiceUnavailable, authservice.ErrUnavailable.Error())
}

func (h *Handler) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.Session.CookieDomain,
		Expires:  expiresAt,
		Secure:   h.config.Session.CookieSecure,
		HttpOnly: true,
		SameSite: csrf.SameSite(h.config.Session.CookieSameSite),
	}
}

func (h *Handler) expiredCookie() *http.Cookie {
	cookie := h.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	return cookie
}
