package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func noVoter(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error":   "unauthorized",
		"message": "a bearer token or an X-Voter-ID header is required to vote",
	})
}

// CastVote handles POST /v1/songs/:id/votes with {"kind": "up"|"down"}.
// Voting again replaces the caller's previous vote on the song.
func (h *VotingHandler) CastVote(c echo.Context) error {
	songID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	voter, ok, err := voterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return noVoter(c)
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := c.Bind(&body); err != nil {
		return badBody(c)
	}
	res, err := h.Voting.CastVote(c.Request().Context(), songID, voter, body.Kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// RemoveVote handles DELETE /v1/votes/:id.
func (h *VotingHandler) RemoveVote(c echo.Context) error {
	voteID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	voter, ok, err := voterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return noVoter(c)
	}
	res, err := h.Voting.RemoveVote(c.Request().Context(), voteID, voter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
