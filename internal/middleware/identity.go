package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
)

// identityKey is the echo context key holding the verified access.Identity.
const identityKey = "identity"

// SetIdentity attaches id to the request.
func SetIdentity(c echo.Context, id access.Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the identity attached by JWTAuth or OptionalAuth.
func IdentityFrom(c echo.Context) (access.Identity, bool) {
	id, ok := c.Get(identityKey).(access.Identity)
	return id, ok && id.ID != ""
}

// userKey identifies the caller for rate limiting; "anon" when there is
// no identity.
func userKey(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.ID
	}
	return "anon"
}

// abort writes the common error envelope.
func abort(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": echo.Map{"code": code, "message": message}})
}
