// Package observability inicializa el tracing OpenTelemetry.
package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "mbti-story"

// TracerName es el nombre de instrumentacion usado por los servicios.
const TracerName = "mbti-story"

type Config struct {
	Enabled     bool
	ServiceName string
}

// Init configura el TracerProvider global. Con Enabled=false no toca el provider
// global (queda el no-op de otel) y devuelve un shutdown vacio.
func Init(ctx context.Context, log *zap.Logger, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", zap.Error(err))
		res = resource.Default()
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", zap.String("service", serviceName))
	return tp.Shutdown, nil
}

// Tracer devuelve el tracer del servicio sobre el provider global.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
