// Package telemetry wires OpenTelemetry tracing for the trace engine.
//
// Tracing is off unless the config file's telemetry section or
// OTEL_ENABLED turns it on. The standard OTEL_* variables override the
// file:
//
//	OTEL_ENABLED, OTEL_SERVICE_NAME, OTEL_SERVICE_VERSION,
//	OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_PROTOCOL,
//	OTEL_EXPORTER_OTLP_HEADERS, OTEL_EXPORTER_OTLP_INSECURE,
//	OTEL_TRACES_SAMPLER, OTEL_TRACES_SAMPLER_ARG, OTEL_RESOURCE_ATTRIBUTES
//
// Engine packages create spans through Tracer; with tracing off those
// spans go to the no-op provider.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// InstrumentationPrefix prefixes every tracer name handed out by Tracer.
const InstrumentationPrefix = "github.com/exec-trace/"

var (
	mu      sync.Mutex
	current *Config
)

// ShutdownFunc flushes and stops the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

// Init applies the OTEL_* environment over base (nil means the defaults),
// records the result as the current configuration and, when enabled,
// installs a batching TracerProvider with the OTLP exporter as the global
// provider.
func Init(ctx context.Context, base *Config) (ShutdownFunc, error) {
	if base == nil {
		base = Defaults()
	}
	cfg := ApplyEnv(base)

	mu.Lock()
	current = cfg
	mu.Unlock()

	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(createSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Enabled reports whether tracing is on. Before Init it reflects the
// environment alone.
func Enabled() bool {
	return GetConfig().Enabled
}

// GetConfig returns the current configuration.
func GetConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = LoadFromEnv()
	}
	return current
}

// Tracer returns the named tracer from the global provider. name is
// relative to the module, e.g. "internal/trace".
func Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(InstrumentationPrefix + name)
}
