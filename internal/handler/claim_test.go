package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/config"
	"github.com/iliyamo/campus-ticket-claim/internal/handler"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
	"github.com/iliyamo/campus-ticket-claim/internal/service"
	"github.com/iliyamo/campus-ticket-claim/internal/testutil"
)

func newClaimHandler(store *testutil.MemStore) *handler.ClaimHandler {
	coord := reservation.NewCoordinator(store, zerolog.Nop())
	svc := service.NewClaimService(coord, nil, config.ClaimConfig{
		MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond,
	}, zerolog.Nop())
	return handler.NewClaimHandler(svc)
}

func doClaim(t *testing.T, h *handler.ClaimHandler, eventParam string, holder any) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/"+eventParam+"/claim", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(eventParam)
	if holder != nil {
		c.Set("user_id", holder)
	}
	if err := h.Claim(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	s, _ := body["error"].(string)
	return s
}

func TestClaimHandler(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedEvent(1, 1, 1, 0)     // last seat
	store.SeedEvent(2, 50, 0, 0)    // sold out
	store.SeedEvent(3, 10, 10, 900) // paid
	h := newClaimHandler(store)

	tests := []struct {
		name   string
		event  string
		holder any
		status int
		code   string
	}{
		{"unauthenticated", "1", nil, http.StatusUnauthorized, "unauthorized"},
		{"non numeric id", "abc", uint64(5), http.StatusBadRequest, "invalid_input"},
		{"zero id", "0", uint64(5), http.StatusBadRequest, "invalid_input"},
		{"missing event", "999999", uint64(5), http.StatusNotFound, "event_not_found"},
		{"sold out", "2", uint64(5), http.StatusConflict, "sold_out"},
		{"last seat", "1", uint64(5), http.StatusCreated, ""},
		{"last seat gone", "1", uint64(6), http.StatusConflict, "sold_out"},
		{"paid event", "3", uint64(5), http.StatusCreated, ""},
		{"repeat claim", "3", uint64(5), http.StatusConflict, "already_claimed"},
	}
	for _, tt := range tests {
		rec := doClaim(t, h, tt.event, tt.holder)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		if tt.code != "" {
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("%s: error = %q, want %q", tt.name, got, tt.code)
			}
		}
	}
	if store.TicketCount() != 2 {
		t.Fatalf("expected 2 tickets, got %d", store.TicketCount())
	}
}

func TestClaimHandler_CreatedBody(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedEvent(8, 3, 3, 1200)
	rec := doClaim(t, newClaimHandler(store), "8", uint64(44))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		TicketID string `json:"ticket_id"`
		EventID  uint64 `json:"event_id"`
		Kind     string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.TicketID) != 36 || body.EventID != 8 || body.Kind != "PAID" {
		t.Fatalf("unexpected body %+v", body)
	}
	if strings.Contains(rec.Body.String(), "holder_id") {
		t.Fatalf("response should not echo the holder: %s", rec.Body.String())
	}
}

func TestClaimHandler_InfraFailureIsOpaque(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedEvent(9, 3, 3, 0)
	store.BeforeCommit = func() error { return errInjected }
	rec := doClaim(t, newClaimHandler(store), "9", uint64(1))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), errInjected.Error()) {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
	if store.TicketCount() != 0 {
		t.Fatalf("ticket left behind after failed commit")
	}
}
