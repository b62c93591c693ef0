package utils // package utils provides token helpers shared by the server and tooling

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewAccessToken builds and signs an HS256 JWT for a user.  The subject
// carries the user id as a decimal string, role the caller's role.  The
// token expires ttl from now.  The service itself only verifies tokens;
// tests and the load tool mint them.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
