package middleware

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// Roles carried in the JWT "role" claim.
const (
	RoleStudent   = "STUDENT"
	RoleOrganizer = "ORGANIZER"
)

var errNoUser = errors.New("invalid user_id in context")

// UserID returns the authenticated holder id stored by JWTAuth.
func UserID(c echo.Context) (uint64, error) {
	return parseUserID(c.Get(userIDKey))
}

// parseUserID accepts the shapes a "sub" claim or a context value can
// take.  JSON numbers decode as float64.
func parseUserID(v any) (uint64, error) {
	switch t := v.(type) {
	case uint64:
		if t > 0 {
			return t, nil
		}
	case int:
		if t > 0 {
			return uint64(t), nil
		}
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t >= 1 && t == float64(uint64(t)) {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errNoUser
}

// Role returns the role claim stored by JWTAuth, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(roleKey).(string)
	return r
}
