package handler

import (
	"errors"
	"net/http"

	apperrors "subscription-bridge/internal/errors"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler maps categorized errors onto HTTP statuses before falling
// back to echo's default rendering.
func ErrorHandler(e *echo.Echo, logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			switch apperrors.TypeOf(err) {
			case apperrors.ErrorTypeValidation:
				he = echo.NewHTTPError(http.StatusBadRequest, err.Error())
			default:
				logger.Error().Err(err).
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Msg("request failed")
				he = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
			}
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}
