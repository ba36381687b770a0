// Package tracing manages the OpenTelemetry provider and the span
// helpers used around lifecycle and update operations.
package tracing

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Provider manages the trace provider lifecycle.
type Provider struct {
	tp     *sdktrace.TracerProvider
	logger *slog.Logger
}

// Config holds trace provider settings.
type Config struct {
	Enabled    bool
	Exporter   string // otlp-grpc | stdout
	Endpoint   string
	SampleRate float64
	Version    string
	UseTLS     bool
}

const serviceName = "warden"

// NewProvider initializes tracing. A disabled config yields a provider
// whose tracers are no-ops.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		logger.Debug("tracing disabled")
		return &Provider{logger: logger}, nil
	}

	logger.Info("initializing tracing",
		"exporter", cfg.Exporter,
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	)

	exporter, err := createExporter(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "unknown"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, logger: logger}, nil
}

func createExporter(ctx context.Context, cfg Config, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp-grpc":
		return createOTLPGRPCExporter(ctx, cfg.Endpoint, cfg.UseTLS, logger)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (supported: otlp-grpc, stdout)", cfg.Exporter)
	}
}

func createOTLPGRPCExporter(ctx context.Context, endpoint string, useTLS bool, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	var opts []grpc.DialOption
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("OTLP gRPC exporter configured without TLS")
	}

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
}

// Tracer returns a tracer for the given component name.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are actually exported.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown flushes and stops the trace provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown trace provider: %w", err)
	}
	return nil
}
