package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware reuses an inbound correlation header when present.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ErrorHandlingMiddleware turns handler errors into a JSON 500. Echo's own
// HTTP errors pass through untouched.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			slog.ErrorContext(c.Request().Context(), "Internal error",
				"path", c.Request().URL.Path,
				"method", c.Request().Method,
				"error", err)

			if err := c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"}); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}
