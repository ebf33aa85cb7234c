package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func setupTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func spanNamed(spans tracetest.SpanStubs, name string) (tracetest.SpanStub, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

func TestResolverEmitsSpans(t *testing.T) {
	exporter := setupTracing(t)
	engine := newLexiconEngine()
	r := newReadyResolver(t, engine)

	_, err := r.Resolve(context.Background(), "check engine light")
	require.NoError(t, err)
	engine.failOn("boom", errEngine)
	_, err = r.Resolve(context.Background(), "boom")
	require.Error(t, err)

	spans := exporter.GetSpans()
	initSpan, ok := spanNamed(spans, "resolver.initialize")
	require.True(t, ok)
	assert.Equal(t, codes.Ok, initSpan.Status.Code)

	var resolveSpans []tracetest.SpanStub
	for _, s := range spans {
		if s.Name == "resolver.resolve" {
			resolveSpans = append(resolveSpans, s)
		}
	}
	require.Len(t, resolveSpans, 2)
	assert.Equal(t, codes.Ok, resolveSpans[0].Status.Code)
	assert.Equal(t, codes.Error, resolveSpans[1].Status.Code)

	var code string
	for _, kv := range resolveSpans[0].Attributes {
		if kv.Key == "resolver.code" {
			code = kv.Value.AsString()
		}
	}
	assert.Equal(t, "0101", code)
}
