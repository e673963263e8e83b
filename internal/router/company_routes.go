package router

import (
	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/handler"
	"github.com/IstFranco/utn-events/internal/middleware"
)

// RegisterCompany registers COMPANY-scoped event management.  Ownership
// of the event is checked by the service.
func RegisterCompany(g *echo.Group, h *handler.EventHandler, o Options) {
	mw := o.with(middleware.JWTAuth(o.JWTSecret), middleware.RequireRole(middleware.RoleCompany), o.RateLimit)
	g.POST("/events", h.CreateEvent, mw...)
	g.PATCH("/events/:id", h.UpdateEvent, mw...)
	g.DELETE("/events/:id", h.DeactivateEvent, mw...)
}
