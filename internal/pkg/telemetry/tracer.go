// Package telemetry sets up structured logging and OpenTelemetry tracing for
// the orchestrator and the vendor simulator.
//
//	shutdown, err := telemetry.SetupTracer(ctx, "vendor-orchestrator")
//	if err != nil { ... }
//	defer shutdown(context.Background())
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ShutdownFunc flushes buffered spans and closes the exporter connection.
type ShutdownFunc func(ctx context.Context) error

type tracerSettings struct {
	endpoint    string
	environment string
	sampleRatio float64
}

type TracerOption func(*tracerSettings)

// WithEndpoint sets the collector address. A scheme prefix is accepted.
func WithEndpoint(endpoint string) TracerOption {
	return func(s *tracerSettings) { s.endpoint = endpoint }
}

func WithEnvironment(env string) TracerOption {
	return func(s *tracerSettings) { s.environment = env }
}

// WithSampleRatio samples the given share of root traces. Values outside
// (0, 1) sample everything.
func WithSampleRatio(ratio float64) TracerOption {
	return func(s *tracerSettings) { s.sampleRatio = ratio }
}

// SetupTracer installs the global TracerProvider, exporting over OTLP gRPC,
// and the W3C trace-context and baggage propagators.
func SetupTracer(ctx context.Context, serviceName string, opts ...TracerOption) (ShutdownFunc, error) {
	s := tracerSettings{endpoint: "localhost:4317", environment: "local", sampleRatio: 1}
	for _, opt := range opts {
		opt(&s)
	}
	endpoint := stripScheme(s.endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial collector at %s: %w", endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(s.environment),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(s.sampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("telemetry: shut down tracer provider: %w", err)
		}
		return conn.Close()
	}, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func stripScheme(endpoint string) string {
	for _, prefix := range []string{"http://", "https://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return strings.TrimPrefix(endpoint, prefix)
		}
	}
	return endpoint
}
