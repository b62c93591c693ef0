package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/config"
	"github.com/iliyamo/campus-ticket-claim/internal/handler"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
	"github.com/iliyamo/campus-ticket-claim/internal/service"
	"github.com/iliyamo/campus-ticket-claim/internal/testutil"
	"github.com/iliyamo/campus-ticket-claim/internal/utils"
)

const secret = "router-secret"

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer(store *testutil.MemStore) *echo.Echo {
	e := echo.New()
	coord := reservation.NewCoordinator(store, zerolog.Nop())
	svc := service.NewClaimService(coord, nil, config.ClaimConfig{MaxAttempts: 1}, zerolog.Nop())
	RegisterRoutes(e, nil)
	RegisterClaims(e, handler.NewClaimHandler(svc), secret, passthrough)
	return e
}

func token(t *testing.T, sub uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, role, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func TestClaimRoute(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedEvent(1, 2, 2, 0)
	e := newServer(store)

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"unknown role", "Bearer " + token(t, 5, "ADMIN"), http.StatusForbidden},
		{"student", "Bearer " + token(t, 5, "STUDENT"), http.StatusCreated},
		{"student again", "Bearer " + token(t, 5, "STUDENT"), http.StatusConflict},
		{"organizer", "Bearer " + token(t, 6, "ORGANIZER"), http.StatusCreated},
		{"after sell out", "Bearer " + token(t, 7, "STUDENT"), http.StatusConflict},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/events/1/claim", nil)
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
	}
}

func TestHealthRoute(t *testing.T) {
	e := newServer(testutil.NewMemStore())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	e := newServer(testutil.NewMemStore())
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "5", "role": "STUDENT", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("not-the-secret"))
	req := httptest.NewRequest(http.MethodPost, "/v1/events/1/claim", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
