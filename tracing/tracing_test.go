package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupRecorder 安装进程内 TracerProvider 与传播器，测试后还原全局状态。
func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	return recorder
}

func TestStartSpanRecordsAttributes(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, span := StartSpan(context.Background(), "consumer.process_event",
		trace.WithSpanKind(trace.SpanKindConsumer))
	require.True(t, trace.SpanContextFromContext(ctx).IsValid())
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "consumer.process_event", ended[0].Name())
	assert.Equal(t, trace.SpanKindConsumer, ended[0].SpanKind())
}

func TestSetErrorMarksSpan(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, span := StartSpan(context.Background(), "op")
	SetError(ctx, errors.New("mongo unreachable"))
	// nil 错误不得覆盖已有状态。
	SetError(ctx, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestInjectExtractRoundTrip(t *testing.T) {
	setupRecorder(t)

	ctx, span := StartSpan(context.Background(), "producer.publish")
	defer span.End()

	carrier := InjectContext(ctx)
	require.NotEmpty(t, carrier["traceparent"])

	restored := ExtractContext(context.Background(), carrier)
	original := trace.SpanContextFromContext(ctx)
	remote := trace.SpanContextFromContext(restored)

	// 跨消息边界后 trace 连续，span 标记为 remote。
	assert.Equal(t, original.TraceID(), remote.TraceID())
	assert.True(t, remote.IsRemote())
}
