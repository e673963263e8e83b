package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/service"
)

// VotingHandler serves the event playlists, song suggestions, votes and
// the catalog lookup.
type VotingHandler struct {
	Voting *service.VotingService
}

func NewVotingHandler(v *service.VotingService) *VotingHandler {
	if v == nil {
		panic("nil service passed to NewVotingHandler")
	}
	return &VotingHandler{Voting: v}
}

// songRequest adds a song by hand, or from the catalog when Resolve is
// set, in which case only ExternalID (and optionally Genre) is read.
type songRequest struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Genre      *string `json:"genre"`
	ExternalID *string `json:"external_id"`
	Resolve    bool    `json:"resolve"`
}

type songPatchRequest struct {
	Title   *string `json:"title"`
	Artist  *string `json:"artist"`
	Genre   *string `json:"genre"`
	EventID *uint64 `json:"event_id"`
}

// ListSongs handles GET /v1/events/:id/songs?genre=&q=.  Songs come back
// ranked; a caller identified by token or X-Voter-ID also sees its own
// vote on each song.
func (h *VotingHandler) ListSongs(c echo.Context) error {
	eventID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	voter, ok, err := voterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	var vp *service.Voter
	if ok {
		vp = &voter
	}
	filter := model.SongFilter{Genre: c.QueryParam("genre"), Query: c.QueryParam("q")}
	list, err := h.Voting.ListSongs(c.Request().Context(), eventID, filter, vp)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// CreateSong handles POST /v1/events/:id/songs.
func (h *VotingHandler) CreateSong(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return unauthorized(c)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req songRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	ctx := c.Request().Context()
	var song *model.Song
	if req.Resolve {
		if req.ExternalID == nil || strings.TrimSpace(*req.ExternalID) == "" {
			return respondError(c, apperr.Validation(apperr.CodeInvalidInput, "external_id is required to resolve a track"))
		}
		song, err = h.Voting.CreateSongFromCatalog(ctx, eventID, *req.ExternalID, req.Genre)
	} else {
		song, err = h.Voting.CreateSong(ctx, eventID, service.SongInput{
			Title:      req.Title,
			Artist:     req.Artist,
			Genre:      req.Genre,
			ExternalID: req.ExternalID,
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, song)
}

// UpdateSong handles PATCH /v1/songs/:id.
func (h *VotingHandler) UpdateSong(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req songPatchRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	song, err := h.Voting.UpdateSong(c.Request().Context(), id, service.SongPatch{
		Title:   req.Title,
		Artist:  req.Artist,
		Genre:   req.Genre,
		EventID: req.EventID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, song)
}

// LookupTrack handles GET /v1/catalog/tracks/:externalId.  The router
// puts the Redis response cache in front of it.
func (h *VotingHandler) LookupTrack(c echo.Context) error {
	id := strings.TrimSpace(c.Param("externalId"))
	if id == "" {
		return respondError(c, apperr.Validation(apperr.CodeInvalidInput, "invalid externalId"))
	}
	track, err := h.Voting.ResolveTrack(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, track)
}
