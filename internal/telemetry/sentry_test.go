package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/errors"
)

func initWithMock(t *testing.T) *MockTransport {
	t.Helper()
	transport := &MockTransport{}
	err := InitSentry(&conf.TelemetrySettings{Enabled: true, SentryDSN: "https://public@sentry.example/1"},
		"1.0.0", WithTransport(transport))
	require.NoError(t, err)
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })
	return transport
}

func TestInitSentryDisabled(t *testing.T) {
	require.NoError(t, InitSentry(&conf.TelemetrySettings{}, "1.0.0"))
	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(time.Second))
}

func TestReportedErrorsAreScrubbed(t *testing.T) {
	transport := initWithMock(t)

	_ = errors.Newf("push to https://registry.example/api?key=abc failed: Bearer sk-123").
		Component("coordinator").
		Category(errors.CategoryRetry).
		Build()
	require.True(t, Flush(time.Second))

	events := transport.Events()
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Message, "sk-123")
	assert.NotContains(t, events[0].Message, "key=abc")
	assert.Equal(t, sentry.LevelWarning, events[0].Level)
	assert.Empty(t, events[0].ServerName)
}

func TestRoutineCategoriesAreDropped(t *testing.T) {
	transport := initWithMock(t)

	_ = errors.ValidationError("operatorName is required")
	_ = errors.Newf("record eval_x not found").Category(errors.CategoryNotFound).Build()
	require.True(t, Flush(time.Second))

	assert.Empty(t, transport.Events())
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.ServerName = "farm-laptop"
	event.User = sentry.User{ID: "operator"}
	event.Tags = map[string]string{"hostname": "farm-laptop", "category": "database"}
	event.Contexts = map[string]sentry.Context{"os": {"name": "linux"}}

	got := applyPrivacyFilters(event)
	require.NotNil(t, got)
	assert.Empty(t, got.ServerName)
	assert.True(t, got.User.IsEmpty())
	assert.NotContains(t, got.Tags, "hostname")
	assert.NotContains(t, got.Contexts, "os")
}
