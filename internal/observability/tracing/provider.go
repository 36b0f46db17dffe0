package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/rigmarket/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the tracer provider.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Environment      string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// NewProvider configures the OTLP exporter and registers the global tracer provider.
// When tracing is disabled the provider samples nothing and exports nothing.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
	}

	if cfg.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		exporter, err := newExporter(ctx, cfg.ExporterProtocol, cfg.ExporterEndpoint)
		cancel()
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
		)
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down tracer provider")
				}
				return tp.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("tracing initialized",
			zap.Bool("enabled", cfg.Enabled),
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Float64("sampling_ratio", cfg.SamplingRatio),
		)
	}
	return tp, nil
}

func newExporter(ctx context.Context, protocol, endpoint string) (sdktrace.SpanExporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

type correlationSpanProcessor struct{}

func (p *correlationSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		s.SetAttributes(attribute.String("correlation_id", cid))
	}
}

func (p *correlationSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (p *correlationSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *correlationSpanProcessor) ForceFlush(context.Context) error { return nil }

// ExtractContext pulls a remote span context out of the carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

var sensitiveAttributeKeys = map[attribute.Key]struct{}{
	"payer_email":   {},
	"email":         {},
	"client_secret": {},
	"authorization": {},
}

// SafeAttributes drops attributes that may carry personal data or secrets.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := sensitiveAttributeKeys[attr.Key]; ok {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// redactedError keeps the error class on the span without leaking the message.
type redactedError struct {
	kind string
}

func (e redactedError) Error() string { return e.kind }

// SafeError returns an error safe to record on a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	var classified interface{ ErrorKind() string }
	if errors.As(err, &classified) {
		return redactedError{kind: classified.ErrorKind()}
	}
	return redactedError{kind: fmt.Sprintf("%T", err)}
}
