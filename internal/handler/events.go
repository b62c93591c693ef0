package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
)

// InventoryReader is implemented by repository.InventoryRepo.
type InventoryReader interface {
	Snapshot(ctx context.Context, eventID uint64) (model.EventInventory, error)
}

// EventHandler serves the public availability read model.
type EventHandler struct {
	Inventory InventoryReader
}

func NewEventHandler(inv InventoryReader) *EventHandler {
	if inv == nil {
		panic("nil inventory passed to NewEventHandler")
	}
	return &EventHandler{Inventory: inv}
}

// Availability handles GET /v1/events/:id/availability.  The numbers are
// a snapshot and may already be stale when the client reads them; only a
// claim decides whether a seat is actually left.
func (h *EventHandler) Availability(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	inv, err := h.Inventory.Snapshot(c.Request().Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=2")
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":          inv.EventID,
		"capacity":          inv.Capacity,
		"tickets_available": inv.TicketsAvailable,
		"tickets_issued":    inv.Issued(),
		"sold_out":          inv.TicketsAvailable == 0,
	})
}
