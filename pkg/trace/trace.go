package trace

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Config exporter: otlp / stdout / none
type Config struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"` // otlp grpc 地址，例如 localhost:4317
	// 采样率 0~1，<=0 按 1 处理
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func newExporter(ctx context.Context, c Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(c.Exporter) {
	case "otlp":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(c.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		return otlptrace.New(ctx, client)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", c.Exporter)
	}
}

// InitTrace 设置全局 TracerProvider 与 W3C 传播器，返回关闭函数
// exporter 为空或 none 时只装传播器，span 不导出
func InitTrace(serviceName string, c Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if c.Exporter == "" || strings.EqualFold(c.Exporter, "none") {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(context.Background(), c)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", c.Exporter, err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	ratio := c.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
