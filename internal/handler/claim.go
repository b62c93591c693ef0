package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-ticket-claim/internal/middleware"
	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/service"
)

// ClaimRunner is implemented by service.ClaimService.
type ClaimRunner interface {
	Claim(ctx context.Context, in service.ClaimInput) (model.Ticket, error)
}

// ClaimHandler exposes the claim gateway over HTTP.
type ClaimHandler struct {
	svc ClaimRunner
}

func NewClaimHandler(svc ClaimRunner) *ClaimHandler {
	if svc == nil {
		panic("nil claim service passed to NewClaimHandler")
	}
	return &ClaimHandler{svc: svc}
}

type claimResponse struct {
	TicketID string           `json:"ticket_id"`
	EventID  uint64           `json:"event_id"`
	Kind     model.TicketKind `json:"kind"`
}

// Claim handles POST /v1/events/:id/claim.  The holder is the
// authenticated user; the request carries no body.
//
//	201 {ticket_id, event_id, kind}
//	400 invalid_input   malformed event id
//	404 event_not_found
//	409 sold_out | already_claimed
//	500 internal        retries exhausted or invariant violation
func (h *ClaimHandler) Claim(c echo.Context) error {
	holderID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticket, err := h.svc.Claim(c.Request().Context(), service.ClaimInput{
		EventID:  c.Param("id"),
		HolderID: holderID,
	})
	if err != nil {
		return claimFailure(c, err)
	}
	return c.JSON(http.StatusCreated, claimResponse{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		Kind:     ticket.Kind,
	})
}

func claimFailure(c echo.Context, err error) error {
	switch kind := service.KindOf(err); kind {
	case service.InvalidInput:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": kind.String(), "message": "invalid event id"})
	case service.EventNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": kind.String()})
	case service.SoldOut:
		return c.JSON(http.StatusConflict, echo.Map{"error": kind.String(), "message": "no tickets left"})
	case service.AlreadyClaimed:
		return c.JSON(http.StatusConflict, echo.Map{"error": kind.String(), "message": "you already hold a ticket for this event"})
	}
	// never leak driver errors to the client
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": service.Internal.String()})
}
