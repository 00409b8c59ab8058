// Package otel wires OpenTelemetry tracing for guildshop processes.
package otel

import (
	"context"
	"strings"

	"github.com/opshop/guildshop/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Settings controls trace export.
type Settings struct {
	Endpoint string `env:"OTEL_ENDPOINT"`
	Enabled  string `env:"OTEL_ENABLED"`
}

// LoadSettings reads tracing settings from GUILDSHOP_OTEL_* variables.
func LoadSettings() (Settings, error) {
	var settings Settings
	if err := config.ParseEnv(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s Settings) active() bool {
	if strings.EqualFold(strings.TrimSpace(s.Enabled), "false") {
		return false
	}
	return strings.TrimSpace(s.Endpoint) != ""
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: without an endpoint, or with Enabled set to "false",
// Setup returns a no-op shutdown function and registers no provider.
// The returned shutdown function flushes pending spans.
func Setup(ctx context.Context, serviceName string, settings Settings) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !settings.active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(strings.TrimSpace(settings.Endpoint)),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
