package api

import (
	"errors"
	"net/http"

	"github.com/getkayan/accounts/internal/flow"
	"github.com/getkayan/accounts/internal/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// respondError renders err as {"<category>": "<kind>"}. Domain errors are
// client errors; anything else is logged and reported as {"unknown": null}.
func respondError(c echo.Context, err error) error {
	if errors.Is(err, flow.ErrDeletionPending) {
		return c.NoContent(http.StatusConflict)
	}

	var domainErr flow.Categorized
	if errors.As(err, &domainErr) {
		return c.JSON(http.StatusBadRequest, map[string]string{domainErr.Category(): domainErr.Kind()})
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	logger.Log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]any{"unknown": nil})
}

// bind decodes the request form into dst. A body that cannot be decoded is
// reported as an invalid form.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return flow.ErrInvalidForm
	}
	return nil
}
