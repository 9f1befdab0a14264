// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig initializes OpenTelemetry tracer providers.
package otelconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter selects where spans are sent.
type Exporter string

const (
	ExporterNone   Exporter = ""
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

// UnknownExporterError is returned for an unsupported [Exporter].
type UnknownExporterError struct {
	Exporter Exporter
}

// Error implements the [builtin.error] interface.
func (e UnknownExporterError) Error() string {
	return fmt.Sprintf("otelconfig: unknown exporter: %s", e.Exporter)
}

// ErrMissingTarget is returned when the OTLP exporter has no target.
var ErrMissingTarget = errors.New("otelconfig: otlp exporter requires a target")

// Config describes how spans are sampled and where they are exported.
type Config struct {
	ServiceName string   `config:"serviceName"`
	Exporter    Exporter `config:"exporter"`

	// gRPC target of the OTLP collector.
	Target string `config:"target"`

	// Fraction of root spans sampled. Zero samples everything.
	SampleRatio float64 `config:"sampleRatio"`

	// DialTimeout bounds the connection attempt to Target.
	DialTimeout time.Duration `config:"dialTimeout"`
}

// Option configures a [Config].
type Option func(*Config)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// Target sets the gRPC target of the OTLP collector.
func Target(target string) Option {
	return func(c *Config) {
		c.Target = target
	}
}

// SampleRatio sets the fraction of root spans which are sampled.
func SampleRatio(ratio float64) Option {
	return func(c *Config) {
		c.SampleRatio = ratio
	}
}

// Initializer builds a [trace.TracerProvider].
type Initializer interface {
	Init(context.Context) (trace.TracerProvider, error)
}

// Noop never records spans.
var Noop Initializer = noopInitializer{}

type noopInitializer struct{}

func (noopInitializer) Init(context.Context) (trace.TracerProvider, error) {
	return noop.NewTracerProvider(), nil
}

// New picks the [Initializer] matching cfg.Exporter. Local output is
// written to out.
func New(cfg Config, out io.Writer) (Initializer, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return Noop, nil
	case ExporterStdout:
		return LocalConfig{Config: cfg, Out: out}, nil
	case ExporterOTLP:
		if cfg.Target == "" {
			return nil, ErrMissingTarget
		}
		return OTLPConfig{Config: cfg}, nil
	default:
		return nil, UnknownExporterError{Exporter: cfg.Exporter}
	}
}

// LocalConfig writes spans as JSON to Out.
type LocalConfig struct {
	Config

	Out io.Writer
}

// Local returns a [LocalConfig] writing spans to stdout.
func Local(opts ...Option) LocalConfig {
	cfg := LocalConfig{
		Config: Config{Exporter: ExporterStdout},
		Out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(&cfg.Config)
	}
	return cfg
}

// Init implements the [Initializer] interface.
func (cfg LocalConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
	)
	if err != nil {
		return nil, err
	}

	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	return tp, nil
}

// OTLPConfig sends spans to an OTLP collector over gRPC.
type OTLPConfig struct {
	Config
}

// OTLP returns an [OTLPConfig] exporting spans over gRPC.
func OTLP(opts ...Option) OTLPConfig {
	cfg := OTLPConfig{
		Config: Config{Exporter: ExporterOTLP},
	}
	for _, opt := range opts {
		opt(&cfg.Config)
	}
	return cfg
}

// Init implements the [Initializer] interface.
func (cfg OTLPConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		cfg.Target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)),
	)
	return tp, nil
}

func (cfg Config) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
}

func (cfg Config) sampler() sdktrace.Sampler {
	if cfg.SampleRatio <= 0 || cfg.SampleRatio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// Install sets tp as the global tracer provider along with the W3C trace
// context propagator. The returned func flushes and shuts tp down.
func Install(tp trace.TracerProvider) func(context.Context) error {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		sd, ok := tp.(shutdowner)
		if !ok {
			return nil
		}
		return sd.Shutdown(ctx)
	}
}
