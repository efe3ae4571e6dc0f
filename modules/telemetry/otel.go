package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Role is the process kind a binary runs as. The api and the worker share a
// binary and a config, so the role is what tells their telemetry apart.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

const roleKey = attribute.Key("service.role")

const protocolGRPC = "grpc"

type ShutdownFunc func(ctx context.Context) error

// Init installs the global tracer and meter providers for role. Call once on startup.
//
// In auto mode the Go auto-instrumentation agent owns traces, so only the
// meter provider is installed; the agent cannot see application metrics.
func Init(ctx context.Context, cfg Config, role Role) (ShutdownFunc, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("telemetry: ServiceName is required")
	}
	if role == "" {
		return nil, errors.New("telemetry: role is required")
	}
	mode, err := resolveMode(cfg.Mode, detectGoAuto(os.Getenv))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.startupTimeout())
	defer cancel()

	res, err := buildResource(ctx, cfg, role)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var p providers
	if mode == ModeManual {
		exp, err := traceExporter(ctx, cfg.protocol(cfg.TracesProtocol), newTarget(cfg.TracesEndpoint, cfg.Insecure))
		if err != nil {
			return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
		}
		p.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(buildSampler(cfg.SamplerRatio)),
		)
		otel.SetTracerProvider(p.tp)
	}
	if mode == ModeManual || isNoopPropagator(otel.GetTextMapPropagator()) {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if !cfg.DisableMetrics {
		mexp, err := metricExporter(ctx, cfg.protocol(cfg.MetricsProtocol), newTarget(cfg.MetricsEndpoint, cfg.Insecure))
		switch {
		case err != nil && mode == ModeAuto:
			slog.Warn("metrics exporter unavailable, continuing without application metrics", slog.Any("error", err))
		case err != nil:
			_ = p.shutdown(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
		default:
			p.mp = sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp)),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(p.mp)
		}
	}

	slog.Info("telemetry started",
		slog.String("mode", string(mode)),
		slog.String("role", string(role)),
		slog.Bool("metrics", p.mp != nil),
	)
	return p.shutdown, nil
}

type providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

func (p providers) shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: tracer provider shutdown: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// resolveMode turns detect into auto or manual. Asking for auto without an
// agent present falls back to manual so spans still leave the process.
func resolveMode(m Mode, agent bool) (Mode, error) {
	switch m {
	case "", ModeDetect:
		if agent {
			return ModeAuto, nil
		}
		return ModeManual, nil
	case ModeAuto:
		if !agent {
			slog.Warn("telemetry mode auto but no Go auto-instrumentation detected, using manual")
			return ModeManual, nil
		}
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	default:
		return "", fmt.Errorf("telemetry: unknown Mode %q", m)
	}
}

// detectGoAuto reports the signals of the Go auto-instrumentation operator.
func detectGoAuto(getenv func(string) string) bool {
	if getenv("OTEL_GO_AUTO_TARGET_EXE") != "" {
		return true
	}
	switch strings.ToLower(getenv("OTEL_GO_AUTO_ENABLED")) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func buildResource(ctx context.Context, cfg Config, role Role) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceNameFor(role)),
		semconv.ServiceNamespaceKey.String(cfg.ServiceName),
		roleKey.String(string(role)),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	// explicit attributes are merged last and win over OTEL_RESOURCE_ATTRIBUTES
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithAttributes(attrs...),
	)
}

// target is where an exporter sends; the zero value defers to the
// OTEL_EXPORTER_OTLP_* variables the exporters read themselves.
type target struct {
	url      string // full URL, path included for http: "http://collector:4318/v1/traces"
	hostPort string // "collector:4317"
	insecure bool
}

func newTarget(endpoint string, insecure bool) target {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return target{url: endpoint, insecure: insecure || strings.HasPrefix(endpoint, "http://")}
	}
	return target{hostPort: endpoint, insecure: insecure}
}

func traceExporter(ctx context.Context, protocol string, t target) (sdktrace.SpanExporter, error) {
	if protocol == protocolGRPC {
		var opts []otlptracegrpc.Option
		switch {
		case t.url != "":
			opts = append(opts, otlptracegrpc.WithEndpointURL(t.url))
		case t.hostPort != "":
			opts = append(opts, otlptracegrpc.WithEndpoint(t.hostPort))
		}
		if t.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}

	var opts []otlptracehttp.Option
	switch {
	case t.url != "":
		opts = append(opts, otlptracehttp.WithEndpointURL(t.url))
	case t.hostPort != "":
		opts = append(opts, otlptracehttp.WithEndpoint(t.hostPort))
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func metricExporter(ctx context.Context, protocol string, t target) (sdkmetric.Exporter, error) {
	if protocol == protocolGRPC {
		var opts []otlpmetricgrpc.Option
		switch {
		case t.url != "":
			opts = append(opts, otlpmetricgrpc.WithEndpointURL(t.url))
		case t.hostPort != "":
			opts = append(opts, otlpmetricgrpc.WithEndpoint(t.hostPort))
		}
		if t.insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}

	var opts []otlpmetrichttp.Option
	switch {
	case t.url != "":
		opts = append(opts, otlpmetrichttp.WithEndpointURL(t.url))
	case t.hostPort != "":
		opts = append(opts, otlpmetrichttp.WithEndpoint(t.hostPort))
	}
	if t.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func buildSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func isNoopPropagator(p propagation.TextMapPropagator) bool {
	return p == nil || len(p.Fields()) == 0
}
