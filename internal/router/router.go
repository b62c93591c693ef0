package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-ticket-claim/internal/handler"
	"github.com/iliyamo/campus-ticket-claim/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterClaims registers the claim endpoint.  Any authenticated student
// or organizer may claim; limiter runs after authentication so buckets are
// keyed by holder.
func RegisterClaims(e *echo.Echo, h *handler.ClaimHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStudent, middleware.RoleOrganizer),
	)
	g.POST("/events/:id/claim", h.Claim, limiter)
}

// RegisterPublic registers unauthenticated read endpoints.  cache fronts
// the availability snapshot.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/availability", h.Availability, cache)
}

// RegisterTickets registers holder ticket reads and the organizer
// check-in flip.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStudent, middleware.RoleOrganizer),
	)
	g.GET("/my-tickets", h.MyTickets)
	g.GET("/tickets/:id", h.GetTicket)
	g.POST("/tickets/:id/check-in", h.CheckIn, middleware.RequireRole(middleware.RoleOrganizer))
}
