// Package otel provides tracing spans and metric instruments for runs.
// Exporter wiring is deferred; instruments go through the global
// providers so a future OTLP setup needs no call-site changes.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc flushes and shuts down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. An OTLP exporter and
// TracerProvider slot in here once a collector endpoint exists.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel stub: InitTracer called", "service", serviceName)
	return func(_ context.Context) error {
		slog.Info("otel stub: shutdown called")
		return nil
	}
}
