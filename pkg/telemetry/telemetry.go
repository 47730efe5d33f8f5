package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/rentledger/internal/config"
	"github.com/smallbiznis/rentledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires telemetry components via Fx.
var Module = fx.Options(
	fx.Provide(NewTracerProvider),
	fx.Invoke(func(*trace.TracerProvider) {}),
)

// NewTracerProvider configures the OTLP exporter and tracer provider. With
// OTEL disabled the provider records nothing and exports nowhere.
func NewTracerProvider(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*trace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", cfg.AppVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(&correlationSpanProcessor{}),
	}
	if cfg.OTelEnabled {
		exporter, err := newExporter(cfg.OTLPProtocol, cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	} else {
		opts = append(opts, trace.WithSampler(trace.NeverSample()))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer provider")
			return tp.Shutdown(ctx)
		},
	})

	logger.Info("telemetry initialized",
		zap.Bool("enabled", cfg.OTelEnabled),
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("protocol", cfg.OTLPProtocol),
	)
	return tp, nil
}

func newExporter(protocol, endpoint string) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch protocol {
	case "", "grpc":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	case "http", "http/protobuf":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

type correlationSpanProcessor struct{}

func (p *correlationSpanProcessor) OnStart(ctx context.Context, s trace.ReadWriteSpan) {
	_, cid := correlation.EnsureCorrelationID(ctx)
	s.SetAttributes(attribute.String("correlation_id", cid))
}

func (p *correlationSpanProcessor) OnEnd(trace.ReadOnlySpan) {}

func (p *correlationSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *correlationSpanProcessor) ForceFlush(context.Context) error { return nil }
