package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/handler"
	"github.com/IstFranco/utn-events/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Events        *handler.EventHandler
	Registrations *handler.RegistrationHandler
	Profiles      *handler.ProfileHandler
	Voting        *handler.VotingHandler
	DB            handler.Pinger // nil skips the readiness ping
}

// Options carries the cross-cutting middleware built in main.  RateLimit
// guards the write and voting routes; Cache fronts the catalog lookup.
// Nil middlewares are skipped.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (o Options) with(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RegisterRoutes wires every route onto e.  Auth middleware is attached
// per route rather than per group so that the public and protected
// routes can share the /v1 prefix.
func RegisterRoutes(e *echo.Echo, h Handlers, o Options) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(h.DB))

	v1 := e.Group("/v1")
	RegisterPublic(v1, h, o)
	RegisterVoting(v1, h.Voting, o)
	RegisterUser(v1, h, o)
	RegisterCompany(v1, h.Events, o)
}

// RegisterPublic registers unauthenticated browse endpoints.  The songs
// listing accepts an optional token so a logged-in caller sees its own
// votes.
func RegisterPublic(g *echo.Group, h Handlers, o Options) {
	g.GET("/events", h.Events.ListEvents)
	g.GET("/events/:id", h.Events.GetEvent)
	g.GET("/events/:id/occupancy", h.Events.GetOccupancy)
	g.GET("/events/:id/songs", h.Voting.ListSongs, middleware.OptionalJWT(o.JWTSecret))
	g.GET("/catalog/tracks/:externalId", h.Voting.LookupTrack, o.with(o.Cache)...)
}
