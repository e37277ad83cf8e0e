package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

var kindStatus = map[service.Kind]int{
	service.KindValidation:   http.StatusBadRequest,
	service.KindNotFound:     http.StatusNotFound,
	service.KindUnauthorized: http.StatusUnauthorized,
	service.KindForbidden:    http.StatusForbidden,
	service.KindConflict:     http.StatusConflict,
	service.KindInvalidState: http.StatusBadRequest,
}

// errorBody writes the common envelope {"error":{"code","message"}}.
func errorBody(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": echo.Map{"code": code, "message": message}})
}

func badRequest(c echo.Context, message string) error {
	return errorBody(c, http.StatusBadRequest, "VALIDATION", message)
}

// respondError translates a service failure into its HTTP form.  Anything
// unclassified is logged and answered with a generic 500.
func respondError(c echo.Context, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		if status, ok := kindStatus[se.Kind]; ok {
			return errorBody(c, status, se.Code, se.Message)
		}
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return errorBody(c, http.StatusInternalServerError, "SERVER_ERROR", "internal server error")
}
