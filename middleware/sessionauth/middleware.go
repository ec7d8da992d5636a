package sessionauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/walletauth/services/fingerprint"
	"github.com/tech-arch1tect/walletauth/session"
)

const (
	ValidationKey = "_session_validation"
	IdentityKey   = "_session_identity"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string, attrs fingerprint.Attributes) (*session.Validation, error)
	IsAdmin(identity string) bool
}

// TokenFromRequest returns the bearer token if an Authorization header is
// present, otherwise the session cookie.
func TokenFromRequest(c echo.Context, cookieName string) string {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}

	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// UsesBearer reports whether the request authenticates with a header rather
// than the ambient cookie.
func UsesBearer(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAuthorization) != ""
}

// RequireSession validates the session on every request. All failures are a
// bare 401 so the client restarts sign-in without learning why.
func RequireSession(auth Authenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c, cookieName)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			validation, err := auth.Authenticate(c.Request().Context(), token, fingerprint.FromRequest(c.Request()))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			c.Set(ValidationKey, validation)
			c.Set(IdentityKey, validation.Identity)

			return next(c)
		}
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := GetIdentity(c)
			if identity == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			if !auth.IsAdmin(identity) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

func GetValidation(c echo.Context) *session.Validation {
	if validation, ok := c.Get(ValidationKey).(*session.Validation); ok {
		return validation
	}
	return nil
}

func GetIdentity(c echo.Context) string {
	if identity, ok := c.Get(IdentityKey).(string); ok {
		return identity
	}
	return ""
}
