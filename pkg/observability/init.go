package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName = "ccdb"
	meterName  = "ccdb"

	attrAppMode = "app.mode"
)

// ErrUnknownLogLevel is returned by ParseLevel for unrecognized names.
var ErrUnknownLogLevel = errors.New("unknown log level")

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes pending telemetry within the configured timeout.
	// Must be called before process exit.
	Shutdown func(ctx context.Context) error
}

// Init wires tracing, metrics and logging for cfg. Logs go to stderr so that
// stdout stays clean for command output and the MCP stdio transport.
func Init(cfg Config) (Providers, error) {
	return InitWithWriter(cfg, os.Stderr)
}

// InitWithWriter is Init with an explicit log destination. Without an OTLP
// endpoint nothing is exported and spans are never sampled.
func InitWithWriter(cfg Config, logOut io.Writer) (Providers, error) {
	p, err := newPipeline(context.Background(), cfg)
	if err != nil {
		return Providers{}, err
	}

	otel.SetTracerProvider(p.tracers)
	otel.SetMeterProvider(p.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return Providers{
		Tracer:   p.tracers.Tracer(tracerName),
		Meter:    p.meters.Meter(meterName),
		Logger:   NewLogger(cfg, logOut),
		Shutdown: p.shutdownWithin(cfg.shutdownTimeout()),
	}, nil
}

// NewLogger builds the text or JSON logger for cfg, wrapped in a TracingHandler.
func NewLogger(cfg Config, out io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(strings.ToUpper(name)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLogLevel, name)
	}

	return level, nil
}

// ParseOTLPHeaders reads the "key=value,key=value" form of
// OTEL_EXPORTER_OTLP_HEADERS. Pairs without "=" are skipped; nil means no
// usable pair was found.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = map[string]string{}
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSec <= 0 {
		return defaultShutdownTimeoutSec * time.Second
	}

	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// resourceAttributes describes the running ccdb process. Empty values are left out.
func (c Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}

	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}

	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(c.Environment))
	}

	if c.Mode != "" {
		attrs = append(attrs, attribute.String(attrAppMode, string(c.Mode)))
	}

	return attrs
}

// pipeline is the pair of providers one process exports through.
type pipeline struct {
	tracers trace.TracerProvider
	meters  metric.MeterProvider
	closers []func(context.Context) error
}

func newPipeline(ctx context.Context, cfg Config) (*pipeline, error) {
	if cfg.OTLPEndpoint == "" {
		return &pipeline{
			tracers: nooptrace.NewTracerProvider(),
			meters:  noopmetric.NewMeterProvider(),
		}, nil
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, cfg.resourceAttributes()...)
	target := otlpTarget{endpoint: cfg.OTLPEndpoint, insecure: cfg.OTLPInsecure, headers: cfg.OTLPHeaders}

	spans, err := otlptracegrpc.New(ctx, target.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metrics, err := otlpmetricgrpc.New(ctx, target.metricOptions()...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), spans.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)),
		sdkmetric.WithResource(res),
	)

	return &pipeline{tracers: tp, meters: mp, closers: []func(context.Context) error{tp.Shutdown, mp.Shutdown}}, nil
}

func (p *pipeline) shutdownWithin(timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var errs []error
		for _, closer := range p.closers {
			errs = append(errs, closer(ctx))
		}

		return errors.Join(errs...)
	}
}

// otlpTarget is the collector both exporters send to.
type otlpTarget struct {
	endpoint string
	insecure bool
	headers  map[string]string
}

func (t otlpTarget) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.endpoint)}

	if t.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(t.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(t.headers))
	}

	return opts
}

func (t otlpTarget) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(t.endpoint)}

	if t.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(t.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(t.headers))
	}

	return opts
}
