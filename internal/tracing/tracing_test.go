package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func TestStageSpansAreRecorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	UseProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	ctx, span := StartStageSpan(context.Background(), "select", "sess-1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`, req.Header.Get("traceparent"))

	RecordError(span, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "reasoning.select", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestInitializeDisabledIsNoop(t *testing.T) {
	shutdown, err := Initialize(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, W3CTraceparent(context.Background()))
}
