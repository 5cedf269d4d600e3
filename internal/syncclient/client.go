// Package syncclient performs the single push of one evaluation record to
// the remote registry. It never retries and never touches local storage.
package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/httpclient"
	"github.com/tphakala/evalsync/internal/logger"
)

const (
	component = "syncclient"

	// maxDrainBytes bounds how much of an error body is read before closing.
	maxDrainBytes = 64 << 10
)

// Poster is the HTTP surface the client needs.
type Poster interface {
	PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error)
}

// Client pushes records to the registry.
type Client struct {
	http Poster
	log  logger.Logger
}

// New creates a client on top of an HTTP poster, normally *httpclient.Client.
func New(poster Poster, log logger.Logger) *Client {
	if log == nil {
		log = logger.Global().Module(component)
	}
	return &Client{http: poster, log: log}
}

// ResponseObserver is told about every HTTP exchange with the registry.
// code is 0 when no response arrived.
type ResponseObserver interface {
	RecordRegistryResponse(code int, seconds float64)
}

// NewDefault creates a client with its own httpclient.Client. obs may be nil.
func NewDefault(timeout time.Duration, userAgent string, log logger.Logger, obs ResponseObserver) *Client {
	hc := httpclient.New(&httpclient.Config{
		DefaultTimeout: timeout,
		UserAgent:      userAgent,
	})
	if obs != nil {
		hc.SetAfterResponseHook(observeResponse(obs))
	}
	return New(hc, log)
}

func observeResponse(obs ResponseObserver) func(*http.Request, *http.Response, error, time.Duration) {
	return func(_ *http.Request, resp *http.Response, _ error, d time.Duration) {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		obs.RecordRegistryResponse(code, d.Seconds())
	}
}

// Push posts rec once to target.Endpoint. A nil error means the registry
// answered 2xx. Failures are *StatusError or *TransportError wrapped in an
// EnhancedError.
func (c *Client) Push(ctx context.Context, target evaluation.RegistryConfig, rec *evaluation.Record) error {
	if !target.Configured() {
		return errors.New(ErrNotConfigured).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}

	body, err := json.Marshal(BuildPayload(rec))
	if err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryValidation).
			RecordContext(rec.ID, 0).
			Context("operation", "encode_payload").
			Build()
	}

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, target.Endpoint, body, map[string]string{
		"Authorization": "Bearer " + target.APIKey,
	})
	if err != nil {
		c.log.Debug("registry push failed",
			logger.String("record_id", rec.ID),
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		return errors.New(&TransportError{Err: err}).
			Component(component).
			Category(errors.CategoryNetwork).
			RecordContext(rec.ID, 0).
			NetworkContext(target.Endpoint, 0).
			Build()
	}
	defer httpclient.DrainAndClose(resp.Body, maxDrainBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Status: reasonPhrase(resp)}
		fields := []logger.Field{
			logger.String("record_id", rec.ID),
			logger.Int("status_code", resp.StatusCode),
			logger.Duration("elapsed", time.Since(start)),
		}
		if statusErr.Temporary() {
			c.log.Debug("registry rejected push", fields...)
		} else {
			// repeating the same request will not change the answer
			c.log.Warn("registry refused push, check endpoint and API key", fields...)
		}
		return errors.New(statusErr).
			Component(component).
			Category(errors.CategoryHTTP).
			RecordContext(rec.ID, 0).
			Context("status_code", resp.StatusCode).
			Context("temporary", statusErr.Temporary()).
			Build()
	}

	c.log.Debug("registry accepted push",
		logger.String("record_id", rec.ID),
		logger.Int("status_code", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// reasonPhrase extracts the text after the code in resp.Status, falling back
// to the standard phrase for the code.
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
