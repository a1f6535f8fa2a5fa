package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
)

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "n3rdbot", "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_RecordsCorrelationAndError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := correlation.WithID(context.Background(), "abc12345")
	_, span := StartSpan(ctx, "moderation.handle")
	End(span, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "moderation.handle", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var found bool
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "correlation_id" && kv.Value.AsString() == "abc12345" {
			found = true
		}
	}
	assert.True(t, found, "correlation_id attribute missing")
}
