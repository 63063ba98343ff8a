package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the shared instrumentation-scope name for every span this
// module emits (§6 "service name" environment knob feeds the resource
// attribute instead, so spans stay grouped under one scope regardless of
// deployment name).
const TracerName = "github.com/flatagents/flatagents"

// InitTracer installs a tracer provider exporting to either an OTLP gRPC
// collector (when endpoint is non-empty) or a stdout exporter (otherwise —
// useful for local runs and tests). The choice depends on endpoint alone; no
// environment variable is read. The returned shutdown func must be called on
// process exit to flush pending spans.
func InitTracer(ctx context.Context, serviceName, endpoint string) (trace.Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var sp sdktrace.SpanExporter
	if endpoint != "" {
		sp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
		}
	} else {
		sp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(sp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(TracerName), tp.Shutdown, nil
}

// StartStateSpan opens a "machine.state" span tagged with the correlation
// fields §6 also puts on log lines. cmd/flatagentsd opens one per Start or
// Resume call, not one per interpreter step.
func StartStateSpan(ctx context.Context, tracer trace.Tracer, executionID, machineName, state string, step int) (context.Context, trace.Span) {
	if tracer == nil {
		// trace.SpanFromContext returns the SDK's own no-op span when ctx
		// carries none, so callers never need a nil check before
		// End()/RecordError().
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, "machine.state",
		trace.WithAttributes(
			attribute.String("execution_id", executionID),
			attribute.String("machine", machineName),
			attribute.String("state", state),
			attribute.Int("step", step),
		),
	)
}
