// Package observability configures OpenTelemetry tracing for the service.
//
// Spans come from otelgin (HTTP), the gorm tracing plugin (SQL) and the
// services. They are exported over OTLP/gRPC when OTEL_ENABLED is set;
// otherwise the global no-op provider stays in place.
package observability

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/sysutil"
)

// Test seams.
var (
	newOTLPClient = otlptracegrpc.NewClient

	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, id ServiceIdentity) (*resource.Resource, error) {
		return resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceName(id.Name),
				semconv.ServiceVersion(id.Version),
				semconv.DeploymentEnvironment(id.Environment),
			),
		)
	}
)

// ServiceIdentity is attached to every exported span.
type ServiceIdentity struct {
	Name        string
	Version     string
	Environment string
}

// IdentityFrom derives the span resource from the application config.
// OTEL_SERVICE_NAME wins over APP_NAME.
func IdentityFrom(cfg config.Config) ServiceIdentity {
	return ServiceIdentity{
		Name:        sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, cfg.AppName),
		Version:     cfg.APIVersion,
		Environment: cfg.Environment,
	}
}

// Setup configures tracing from cfg and returns a shutdown function that
// flushes pending spans. The globals are left untouched on error.
func Setup(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	oc := cfg.OTEL
	if !oc.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(oc.Endpoint)}
	if oc.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exp, err := newOTLPExporterFn(ctx, newOTLPClient(opts...))
	if err != nil {
		return nil, err
	}

	id := IdentityFrom(cfg)
	res, err := newServiceResourceFn(ctx, id)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(oc.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	log.Info().
		Str("endpoint", oc.Endpoint).
		Str("service", id.Name).
		Float64("sample_ratio", oc.SampleRatio).
		Msg("tracing enabled")
	return tp.Shutdown, nil
}
