package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
)

const testDSN = "https://public@sentry.example.com/1"

// These tests change the process-wide Sentry hub and reporter, so they
// do not run in parallel.

func TestInitSentry_Disabled(t *testing.T) {
	require.NoError(t, InitSentry(conf.TelemetrySettings{Enabled: false}, "test"))
	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(0))
}

func TestInitSentry_ReportsBuiltErrors(t *testing.T) {
	transport := &mockTransport{}
	require.NoError(t, initSentry(conf.TelemetrySettings{Enabled: true, DSN: testDSN}, "1.0.0", transport))
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	_ = errors.Newf("model missing at /opt/pagd/models/yamnet.tflite").
		Component("scorer").
		Category(errors.CategoryModelLoad).
		Build()

	_ = errors.Newf("device busy").
		Component("classifier").
		Category(errors.CategoryTransientRead).
		Build()

	events := transport.Events()
	require.Len(t, events, 1, "transient errors are not reported")

	event := events[0]
	assert.Equal(t, "scorer", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryModelLoad), event.Tags["category"])
	assert.Equal(t, "pagd@1.0.0", event.Release)
	assert.NotContains(t, event.Message, "/opt/pagd")
	assert.Empty(t, event.ServerName)
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "host-1",
		User:       sentry.User{ID: "u1"},
		Contexts:   map[string]sentry.Context{"os": {}, "trace": {}},
		Extra:      map[string]any{"component": "x", "path": "/home/user"},
		Tags:       map[string]string{"hostname": "host-1", "category": "c"},
		Message:    "node at 60.169857, 24.938379",
		Exception:  []sentry.Exception{{Value: "dial tcp://u:p@broker.example.org:1883"}},
	}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.Contains(t, out.Contexts, "trace")
	assert.Equal(t, map[string]any{"component": "x"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "c"}, out.Tags)
	assert.Equal(t, "node at [COORDINATES]", out.Message)
	assert.NotContains(t, out.Exception[0].Value, "u:p@")
}

func TestCollectPlatformInfo(t *testing.T) {
	info := collectPlatformInfo()
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.NumCPU)
	assert.NotEmpty(t, info.GoVersion)
}
