package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-ticket-claim/internal/middleware"
	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
)

// TicketStore is implemented by repository.TicketRepo.
type TicketStore interface {
	GetByID(ctx context.Context, ticketID string) (model.Ticket, error)
	ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error)
	CheckIn(ctx context.Context, ticketID string, at time.Time) (model.Ticket, error)
}

// TicketHandler serves a holder's tickets and the organizer check-in flip.
type TicketHandler struct {
	Tickets TicketStore
	Now     func() time.Time
}

func NewTicketHandler(tickets TicketStore) *TicketHandler {
	if tickets == nil {
		panic("nil ticket store passed to NewTicketHandler")
	}
	return &TicketHandler{Tickets: tickets, Now: time.Now}
}

// MyTickets handles GET /v1/my-tickets.
func (h *TicketHandler) MyTickets(c echo.Context) error {
	holderID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tickets, err := h.Tickets.ListByHolder(c.Request().Context(), holderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tickets, "count": len(tickets)})
}

// GetTicket handles GET /v1/tickets/:id.  Holders only see their own
// tickets; organizers may look up any ticket.
func (h *TicketHandler) GetTicket(c echo.Context) error {
	holderID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := ticketIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	t, err := h.Tickets.GetByID(c.Request().Context(), id)
	if err == nil && t.HolderID != holderID && middleware.Role(c) != middleware.RoleOrganizer {
		err = repository.ErrForbidden
	}
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, t)
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

// CheckIn handles POST /v1/tickets/:id/check-in.  It only flips the
// ticket's flag; inventory is never touched.
func (h *TicketHandler) CheckIn(c echo.Context) error {
	id, ok := ticketIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	t, err := h.Tickets.CheckIn(c.Request().Context(), id, h.Now())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, t)
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, repository.ErrAlreadyCheckedIn):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_checked_in"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

// ticketIDParam returns the canonical form of the :id UUID.
func ticketIDParam(c echo.Context) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
