package router

import (
	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/handler"
	"github.com/IstFranco/utn-events/internal/middleware"
)

// RegisterVoting registers the vote endpoints.  Both authenticated users
// and anonymous voters (X-Voter-ID) may vote, so the token is optional.
// OptionalJWT runs before the limiter so users are bucketed by id.
func RegisterVoting(g *echo.Group, v *handler.VotingHandler, o Options) {
	mw := o.with(middleware.OptionalJWT(o.JWTSecret), o.RateLimit)
	g.POST("/songs/:id/votes", v.CastVote, mw...)
	g.DELETE("/votes/:id", v.RemoveVote, mw...)
}
