package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// TokenVerifier turns a raw access token into an identity.
// service.SessionManager implements it.
type TokenVerifier interface {
	VerifyAccessToken(raw string) (access.Identity, error)
}

func bearer(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}

// JWTAuth requires a valid Bearer access token and attaches the caller's
// identity.  Expired and invalid tokens are logged apart but answered with
// the same 401.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
			}
			id, err := v.VerifyAccessToken(raw)
			if err != nil {
				if errors.Is(err, utils.ErrTokenExpired) {
					c.Logger().Debugf("auth: expired access token from %s", c.RealIP())
				} else {
					c.Logger().Debugf("auth: invalid access token from %s", c.RealIP())
				}
				return abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "token invalid or expired")
			}
			SetIdentity(c, id)
			return next(c)
		}
	}
}

// OptionalAuth attaches an identity when a valid token is presented and op
// is granted to its role.  A missing or invalid token, or a role lacking op,
// leaves the request anonymous instead of rejecting it.
func OptionalAuth(v TokenVerifier, op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return next(c)
			}
			id, err := v.VerifyAccessToken(raw)
			if err == nil && access.Permits(id.Role, op) {
				SetIdentity(c, id)
			}
			return next(c)
		}
	}
}

// Authorize rejects callers whose role has no grant for op.  Ownership is
// checked later by the service once the resource is loaded.  It must run
// after JWTAuth.
func Authorize(op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			}
			if !access.Permits(id.Role, op) {
				return abort(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			}
			return next(c)
		}
	}
}
