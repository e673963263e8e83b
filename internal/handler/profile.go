package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/service"
)

type ProfileHandler struct {
	Profiles *service.ProfileService
}

func NewProfileHandler(p *service.ProfileService) *ProfileHandler {
	if p == nil {
		panic("nil service passed to NewProfileHandler")
	}
	return &ProfileHandler{Profiles: p}
}

// GetProfile handles GET /v1/me/profile.
func (h *ProfileHandler) GetProfile(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	u, err := h.Profiles.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// UpdateProfile handles PATCH /v1/me/profile with {"age"}.
func (h *ProfileHandler) UpdateProfile(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Age *int64 `json:"age"`
	}
	if err := c.Bind(&body); err != nil || body.Age == nil {
		return badBody(c)
	}
	u, err := h.Profiles.UpdateAge(c.Request().Context(), userID, *body.Age)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
