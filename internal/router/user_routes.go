package router

import (
	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/middleware"
)

// RegisterUser registers USER-scoped endpoints: registrations, profile
// and song suggestions.  Writes are rate limited.
func RegisterUser(g *echo.Group, h Handlers, o Options) {
	read := o.with(middleware.JWTAuth(o.JWTSecret), middleware.RequireRole(middleware.RoleUser))
	write := append(read[:len(read):len(read)], o.with(o.RateLimit)...)

	g.POST("/events/:id/registrations", h.Registrations.Register, write...)
	g.DELETE("/events/:id/registrations", h.Registrations.Unregister, write...)
	g.GET("/me/events", h.Registrations.MyEvents, read...)

	g.GET("/me/profile", h.Profiles.GetProfile, read...)
	g.PATCH("/me/profile", h.Profiles.UpdateProfile, read...)

	g.POST("/events/:id/songs", h.Voting.CreateSong, write...)
	g.PATCH("/songs/:id", h.Voting.UpdateSong, write...)
}
