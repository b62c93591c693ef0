package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	raw, err := NewAccessToken("s3cret", 42, "STUDENT", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil || !tok.Valid {
		t.Fatalf("parse: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != "42" {
		t.Fatalf("sub = %q", sub)
	}
	if claims["role"] != "STUDENT" {
		t.Fatalf("role = %v", claims["role"])
	}
	exp, _ := claims.GetExpirationTime()
	if exp == nil || time.Until(exp.Time) > time.Minute+time.Second {
		t.Fatalf("unexpected exp %v", exp)
	}
}
