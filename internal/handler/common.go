package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/middleware"
	"github.com/IstFranco/utn-events/internal/service"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID extracts the authenticated user id set by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if v, ok := c.Get(middleware.ContextUserID).(uint64); ok && v > 0 {
		return v, nil
	}
	return 0, errNoUser
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(apperr.CodeInvalidInput, "invalid "+name)
	}
	return id, nil
}

// voterFrom resolves who is voting: the authenticated user when a token
// was accepted, otherwise the anonymous id from the X-Voter-ID header.
// ok is false when the request carries neither.
func voterFrom(c echo.Context) (v service.Voter, ok bool, err error) {
	if uid, err := getUserID(c); err == nil {
		return service.UserVoter(uid), true, nil
	}
	raw := strings.TrimSpace(c.Request().Header.Get(middleware.VoterHeader))
	if raw == "" {
		return service.Voter{}, false, nil
	}
	v, err = service.AnonymousVoter(raw)
	if err != nil {
		return service.Voter{}, false, err
	}
	return v, true, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "authentication required"})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": apperr.CodeInvalidInput, "message": "invalid request body"})
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindValidation: http.StatusUnprocessableEntity,
	apperr.KindCapacity:   http.StatusConflict,
	apperr.KindUpstream:   http.StatusBadGateway,
	apperr.KindForbidden:  http.StatusForbidden,
	apperr.KindInternal:   http.StatusInternalServerError,
}

// respondError writes err as {"error": code, "message", "details"}.
// Errors that are not business errors are logged and reported as 500
// without their cause.
func respondError(c echo.Context, err error) error {
	e, ok := apperr.As(err)
	if !ok {
		slog.Default().ErrorContext(c.Request().Context(), "unhandled error",
			"path", c.Path(), "err", err)
		e = apperr.Internal("request", err)
	}
	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := echo.Map{"error": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return c.JSON(status, body)
}

// items wraps list responses so they can grow fields later.
func items[T any](list []T) echo.Map {
	if list == nil {
		list = []T{}
	}
	return echo.Map{"items": list}
}
