package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
)

// GetSettings returns the settings with the registry credential masked.
func (c *Controller) GetSettings(ctx echo.Context) error {
	settings, err := c.DS.GetSettings(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load settings", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, settings.Masked())
}

// UpdateSettings replaces the settings and reloads the push target. An
// empty or masked credential keeps the stored one.
func (c *Controller) UpdateSettings(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	current, err := c.DS.GetSettings(reqCtx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load settings", statusFor(err))
	}

	var next evaluation.AppSettings
	if err := ctx.Bind(&next); err != nil {
		return c.HandleError(ctx, err, "Invalid settings payload", http.StatusBadRequest)
	}
	key := next.Registry.APIKey
	if key == "" || (current.Registry.APIKey != "" && key == evaluation.MaskCredential(current.Registry.APIKey)) {
		next.Registry.APIKey = current.Registry.APIKey
	}

	if err := next.Validate(); err != nil {
		return c.HandleError(ctx, err, "Invalid settings", http.StatusBadRequest)
	}
	if err := c.DS.SaveSettings(reqCtx, next); err != nil {
		return c.HandleError(ctx, err, "Failed to save settings", statusFor(err))
	}
	if err := c.Coordinator.Reload(reqCtx); err != nil {
		return c.HandleError(ctx, err, "Settings saved but the push target was not reloaded", statusFor(err))
	}

	c.log.Info("settings updated",
		logger.Bool("registry_enabled", next.Registry.Enabled),
		logger.String("measurement_unit", string(next.MeasurementUnit)))
	return ctx.JSON(http.StatusOK, next.Masked())
}
