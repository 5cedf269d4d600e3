package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/export"
)

const exportCacheKeyPrefix = "export:"

// Export downloads the record collection as json or csv. Rendered exports
// are cached until the next record mutation or the cache TTL.
func (c *Controller) Export(ctx echo.Context) error {
	format, err := export.ParseFormat(ctx.Param("format"))
	if err != nil {
		return c.HandleError(ctx, err, "Unsupported export format", http.StatusBadRequest)
	}

	key := exportCacheKeyPrefix + string(format)
	data, hit := c.cachedExport(key)
	c.metrics.RecordExportCache(hit)

	if !hit {
		records, err := c.DS.ListRecords(ctx.Request().Context())
		if err != nil {
			return c.HandleError(ctx, err, "Failed to list records", statusFor(err))
		}
		evaluation.SortByTimestampDesc(records)

		data, err = export.Encode(format, records)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to render export", http.StatusInternalServerError)
		}
		c.exportCache.SetDefault(key, data)
	}

	filename := format.Filename(c.now())
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, format.ContentType(), data)
}

func (c *Controller) cachedExport(key string) ([]byte, bool) {
	v, ok := c.exportCache.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}
