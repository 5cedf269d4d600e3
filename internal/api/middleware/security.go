package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/evalsync/internal/logger"
)

// CorrelationHeader carries the request's correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

// corsMaxAge is how long browsers may cache a preflight answer, in seconds.
const corsMaxAge = 600

// NewCorrelationID reuses the caller's X-Correlation-ID or assigns a UUID,
// echoes it on the response and stores it as the request's log trace ID.
func NewCorrelationID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		TargetHeader: CorrelationHeader,
		Generator:    uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// CorrelationID returns the ID assigned by NewCorrelationID, or "".
func CorrelationID(c echo.Context) string {
	return c.Response().Header().Get(CorrelationHeader)
}

// NewCORS allows the listed origins to call the API. Export downloads need
// Content-Disposition exposed to read the file name.
func NewCORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAccept, CorrelationHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, CorrelationHeader},
		MaxAge:        corsMaxAge,
	})
}

// NewSecureHeaders sets the response headers of a JSON-only API that is
// never framed or rendered as a page.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
}

// NewBodyLimit rejects request bodies above limit, e.g. "20M", with 413.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
