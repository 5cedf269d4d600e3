// Package api implements the /api/v1 JSON endpoints over the record store
// and the retry coordinator.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	mw "github.com/tphakala/evalsync/internal/api/middleware"
	"github.com/tphakala/evalsync/internal/coordinator"
	"github.com/tphakala/evalsync/internal/datastore"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
)

const (
	// Prefix is where the controller mounts its routes.
	Prefix = "/api/v1"

	defaultPushRate      = 2
	defaultPushBurst     = 5
	defaultExportTTL     = 30 * time.Second
	exportCleanupPeriod  = time.Minute
	rateLimiterExpiresIn = 3 * time.Minute
)

// SyncCoordinator is the coordinator surface the API drives.
// *coordinator.Coordinator implements it.
type SyncCoordinator interface {
	PushWithRetry(ctx context.Context, rec *evaluation.Record, maxAttempts int) error
	PushByID(ctx context.Context, id string, maxAttempts int) (*evaluation.Record, error)
	PushPending(ctx context.Context, maxAttempts int) (coordinator.Summary, error)
	Reload(ctx context.Context) error
}

// HTTPRecorder receives API metrics. *metrics.HTTPMetrics implements it.
type HTTPRecorder interface {
	RecordRateLimited(path string)
	RecordExportCache(hit bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordRateLimited(string) {}
func (noopRecorder) RecordExportCache(bool) {}

// Controller manages the API routes and handlers
type Controller struct {
	Echo        *echo.Echo
	Group       *echo.Group
	DS          datastore.Interface
	Coordinator SyncCoordinator

	log         logger.Logger
	metrics     HTTPRecorder
	now         func() time.Time
	maxAttempts int
	pushRate    rate.Limit
	pushBurst   int
	exportTTL   time.Duration
	exportCache *cache.Cache
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the HTTP metrics recorder.
func WithMetrics(m HTTPRecorder) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPushRate sets the token bucket for push endpoints.
func WithPushRate(perSecond float64, burst int) Option {
	return func(c *Controller) {
		if perSecond > 0 {
			c.pushRate = rate.Limit(perSecond)
		}
		if burst > 0 {
			c.pushBurst = burst
		}
	}
}

// WithMaxAttempts sets the attempt budget for API-triggered pushes.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) { c.maxAttempts = n }
}

// WithExportTTL sets how long rendered exports are cached.
func WithExportTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl > 0 {
			c.exportTTL = ttl
		}
	}
}

// WithClock replaces the clock used for new records and file names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, ds datastore.Interface, coord SyncCoordinator, opts ...Option) (*Controller, error) {
	if ds == nil || coord == nil {
		return nil, errors.Newf("api controller needs a datastore and a coordinator").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Coordinator: coord,
		metrics:     noopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
		pushRate:    defaultPushRate,
		pushBurst:   defaultPushBurst,
		exportTTL:   defaultExportTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("api")
	}
	c.exportCache = cache.New(c.exportTTL, exportCleanupPeriod)

	c.Group = e.Group(Prefix)
	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	limit := c.pushRateLimiter()

	c.Group.GET("/health", c.Health)

	c.Group.GET("/records", c.ListRecords)
	c.Group.GET("/records/:id", c.GetRecord)
	c.Group.POST("/records", c.CreateRecord, limit)
	c.Group.DELETE("/records/:id", c.DeleteRecord)
	c.Group.POST("/records/:id/push", c.PushRecord, limit)
	c.Group.POST("/sync/pending", c.PushPending, limit)

	c.Group.GET("/export/:format", c.Export)

	c.Group.GET("/settings", c.GetSettings)
	c.Group.PUT("/settings", c.UpdateSettings)
}

// pushRateLimiter shares one token bucket per client IP across the push
// endpoints.
func (c *Controller) pushRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      c.pushRate,
				Burst:     c.pushBurst,
				ExpiresIn: rateLimiterExpiresIn,
			},
		),
		IdentifierExtractor: middleware.DefaultRateLimiterConfig.IdentifierExtractor,
		ErrorHandler: func(ctx echo.Context, err error) error {
			return c.HandleError(ctx, err, "Rate limiter failed", http.StatusForbidden)
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			c.metrics.RecordRateLimited(ctx.Path())
			return c.HandleError(ctx, nil, "Too many push requests, please wait before trying again", http.StatusTooManyRequests)
		},
	})
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID is used when the request did not pass through the
// correlation middleware.
func generateCorrelationID() string {
	return uuid.NewString()
}

// HandleError logs err and answers with an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	if id := mw.CorrelationID(ctx); id != "" {
		resp.CorrelationID = id
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.WithContext(ctx.Request().Context()).Error("API error", fields...)
	} else {
		c.log.WithContext(ctx.Request().Context()).Debug("API error", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var exhausted *coordinator.ExhaustedError
	switch {
	case errors.Is(err, coordinator.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, coordinator.ErrLocalRecord):
		return http.StatusConflict
	case errors.As(err, &exhausted):
		return http.StatusFailedDependency
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// invalidateExports drops cached exports after a record mutation.
func (c *Controller) invalidateExports() {
	c.exportCache.Flush()
}
