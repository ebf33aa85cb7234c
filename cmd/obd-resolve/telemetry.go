package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/schollz/progressbar/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"yashubustudio/obdresolver/assets"
)

// setupTracing installs an OTLP/HTTP exporter when endpoint is set. The
// returned func flushes and stops it.
func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	var opt otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		opt = otlptracehttp.WithEndpointURL(endpoint)
	} else {
		opt = otlptracehttp.WithEndpoint(endpoint)
	}
	exporter, err := otlptracehttp.New(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "obd-resolve"),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// progressPrinter renders one bar per downloaded file.
func progressPrinter(w io.Writer) func(assets.Progress) {
	var (
		name string
		bar  *progressbar.ProgressBar
	)
	return func(p assets.Progress) {
		if p.Total <= 0 {
			return
		}
		if p.Name != name || bar == nil {
			name = p.Name
			fmt.Fprintf(w, "downloading %s\n", p.Name)
			bar = progressbar.NewOptions(int(p.Total), progressbar.OptionSetWriter(w))
		}
		_ = bar.Set(int(p.Done))
		if p.Done >= p.Total {
			fmt.Fprintln(w)
		}
	}
}
