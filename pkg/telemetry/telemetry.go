package telemetry

import (
	"context"
	"os"

	"vault-refresh-agent/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ScopeName is the instrumentation scope used when no explicit name is given.
const ScopeName = "vault-refresh-agent"

// Attribute is a telemetry key/value pair.
type Attribute = attribute.KeyValue

// StringAttribute returns a string attribute.
func StringAttribute(key, value string) Attribute {
	return attribute.String(key, value)
}

// IntAttribute returns an int attribute.
func IntAttribute(key string, value int) Attribute {
	return attribute.Int(key, value)
}

// Init initializes OpenTelemetry traces, metrics, and logs with OTLP gRPC
// exporters. It reads OTEL_EXPORTER_OTLP_ENDPOINT from the environment; when
// unset, telemetry export is disabled and logging falls back to plain JSON
// slog on stdout. Returns a shutdown function that flushes and closes the
// exporters.
func Init(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = ScopeName
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Setup(os.Stdout, serviceName)
		logger.Warn("OTEL_EXPORTER_OTLP_ENDPOINT not set, telemetry export disabled")
		return func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logger.Setup(os.Stdout, serviceName)
		return func(context.Context) error { return nil }, err
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	)

	shutdownTraces, err := initTraces(ctx, conn, res)
	if err != nil {
		return nil, err
	}
	shutdownMetrics, err := initMetrics(ctx, conn, res)
	if err != nil {
		return nil, err
	}
	shutdownLogs, err := initLogs(ctx, conn, res)
	if err != nil {
		return nil, err
	}

	Info("otel_telemetry_enabled", "endpoint", endpoint, "service", serviceName)

	return func(ctx context.Context) error {
		var firstErr error
		for _, fn := range []func(context.Context) error{shutdownTraces, shutdownMetrics, shutdownLogs} {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}
