package telemetry

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/notifyhub/delivery-queue/internal/config"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider that exports spans over OTLP/HTTP.
// With no endpoint configured it leaves the default no-op provider in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create resource")
	}

	var endpoint otlptracehttp.Option
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		endpoint = otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint)
	} else {
		endpoint = otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(endpoint))
	if err != nil {
		return nil, errors.Wrap(err, "create exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
