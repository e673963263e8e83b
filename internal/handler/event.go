package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/service"
)

// EventHandler serves event listings, occupancy and the company-side
// event management.  For COMPANY tokens the subject is the company id.
type EventHandler struct {
	Events        *service.EventService
	Registrations *service.RegistrationService
}

func NewEventHandler(events *service.EventService, regs *service.RegistrationService) *EventHandler {
	if events == nil || regs == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Registrations: regs}
}

type eventRequest struct {
	Name            string `json:"name"`
	Genre           string `json:"genre"`
	CapacityGeneral int64  `json:"capacity_general"`
	CapacityVIP     int64  `json:"capacity_vip"`
	MinimumAge      *int64 `json:"minimum_age"`
}

type eventPatchRequest struct {
	Name            *string `json:"name"`
	Genre           *string `json:"genre"`
	CapacityGeneral *int64  `json:"capacity_general"`
	CapacityVIP     *int64  `json:"capacity_vip"`
	MinimumAge      *int64  `json:"minimum_age"`
	ClearMinimumAge bool    `json:"clear_minimum_age"`
}

// ListEvents handles GET /v1/events?genre=.
func (h *EventHandler) ListEvents(c echo.Context) error {
	list, err := h.Events.ListEvents(c.Request().Context(), c.QueryParam("genre"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// GetEvent handles GET /v1/events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ev, err := h.Events.GetEvent(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// GetOccupancy handles GET /v1/events/:id/occupancy.  Counts are read
// live on every call.
func (h *EventHandler) GetOccupancy(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	stats, err := h.Registrations.GetOccupancyStats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// CreateEvent handles POST /v1/events.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	companyID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ev, err := h.Events.CreateEvent(c.Request().Context(), companyID, service.EventInput{
		Name:            req.Name,
		Genre:           req.Genre,
		CapacityGeneral: req.CapacityGeneral,
		CapacityVIP:     req.CapacityVIP,
		MinimumAge:      req.MinimumAge,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// UpdateEvent handles PATCH /v1/events/:id.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	companyID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req eventPatchRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ev, err := h.Events.UpdateEvent(c.Request().Context(), companyID, id, service.EventPatch{
		Name:            req.Name,
		Genre:           req.Genre,
		CapacityGeneral: req.CapacityGeneral,
		CapacityVIP:     req.CapacityVIP,
		MinimumAge:      req.MinimumAge,
		ClearMinimumAge: req.ClearMinimumAge,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// DeactivateEvent handles DELETE /v1/events/:id.  The event is hidden,
// never removed, so its registrations and songs stay readable.
func (h *EventHandler) DeactivateEvent(c echo.Context) error {
	companyID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Events.DeactivateEvent(c.Request().Context(), companyID, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
