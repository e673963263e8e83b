package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/service"
)

// RegistrationHandler exposes ticket registration for USER tokens.
type RegistrationHandler struct {
	Registrations *service.RegistrationService
}

func NewRegistrationHandler(regs *service.RegistrationService) *RegistrationHandler {
	if regs == nil {
		panic("nil service passed to NewRegistrationHandler")
	}
	return &RegistrationHandler{Registrations: regs}
}

// Register handles POST /v1/events/:id/registrations with {"tier"}.  A
// new registration answers 201, a reactivated one 200.
func (h *RegistrationHandler) Register(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var body struct {
		Tier string `json:"tier"`
	}
	if err := c.Bind(&body); err != nil {
		return badBody(c)
	}
	res, err := h.Registrations.Register(c.Request().Context(), eventID, userID, body.Tier)
	if err != nil {
		return respondError(c, err)
	}
	status := http.StatusOK
	if res.Outcome == service.OutcomeCreated {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// Unregister handles DELETE /v1/events/:id/registrations.
func (h *RegistrationHandler) Unregister(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.Registrations.Unregister(c.Request().Context(), eventID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// MyEvents handles GET /v1/me/events.
func (h *RegistrationHandler) MyEvents(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.Registrations.ListRegisteredEvents(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items(list))
}
