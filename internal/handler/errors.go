package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transport-reservation/internal/repository"
)

// writeError translates engine errors into the JSON error body
// {"error": kind, "message": text}.
func writeError(c echo.Context, err error) error {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, repository.ErrInvalid):
		status, kind = http.StatusBadRequest, "invalid"
	case errors.Is(err, repository.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrNoCapacity):
		status, kind = http.StatusConflict, "no_capacity"
	case errors.Is(err, repository.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrExpired):
		status, kind = http.StatusGone, "expired"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": kind, "message": msg})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "reservation belongs to another client"})
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, invalidf("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, repository.ErrInvalid)...)
}
