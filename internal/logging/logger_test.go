package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("LOG_TIMESTAMP", "2026-01-01T00:00:00Z")
	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(restore)
	return &out, &errOut
}

func TestLoggerFormatsSortedFields(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, Initialize("debug"))

	logger := GetLogger("furnace").WithField("view", "default")
	logger.InfoWithFields("addon started", Field("addon", "foo:1.0"))

	assert.Equal(t, "[2026-01-01T00:00:00Z] [INFO] furnace: addon started | addon=foo:1.0 view=default\n", out.String())
}

func TestErrorsGoToStderr(t *testing.T) {
	out, errOut := capture(t)
	require.NoError(t, Initialize("info"))

	GetLogger("graph").ErrorWithErr("build failed for %s", errors.New("boom"), "local")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "[ERROR] graph: build failed for local - boom")
}

func TestLevelFiltering(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, Initialize("warn"))

	logger := GetLogger("lock")
	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown %d", 1)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown 1")
}

func TestPackageLevels(t *testing.T) {
	t.Cleanup(func() { _ = SetPackageLogLevels(map[string]string{}) })
	require.NoError(t, Initialize("info", map[string]string{
		"furnace.*":         "debug",
		"furnace.lifecycle": "error",
	}))

	assert.Equal(t, ERROR, GetPackageLogLevel("furnace.lifecycle"))
	assert.Equal(t, DEBUG, GetPackageLogLevel("furnace.views"))
	assert.Equal(t, DEBUG, GetPackageLogLevel("furnace"))
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("graph"))

	assert.Error(t, SetPackageLogLevels(map[string]string{"graph": "loud"}))
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, Initialize("info"))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "update")
	defer span.End()

	GetLogger("furnace").WithContext(ctx).Info("cycle")

	assert.Contains(t, out.String(), "trace_id="+span.SpanContext().TraceID().String())
	assert.Contains(t, out.String(), "span_id="+span.SpanContext().SpanID().String())
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, Initialize("info"))

	parent := GetLogger("furnace")
	_ = parent.WithField("addon", "foo")
	parent.Info("plain")

	assert.NotContains(t, out.String(), "addon=")
}
