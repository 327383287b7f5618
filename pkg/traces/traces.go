// Package traces provides OpenTelemetry tracing for the risk engine.
package traces

import (
	"context"

	"fraud-risk-engine/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fraud-risk-engine"

// Init 初始化 TracerProvider；endpoint 为空时保持 no-op
// 返回的 shutdown 需在进程退出时调用
func Init(ctx context.Context, endpoint, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Infof("tracing enabled, endpoint=%s", endpoint)
	return tp.Shutdown, nil
}

// StartSpan 开启 span
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func CustomerID(id string) attribute.KeyValue {
	return attribute.String("customer.id", id)
}

func OrderID(id string) attribute.KeyValue {
	return attribute.String("order.id", id)
}

func Detector(name string) attribute.KeyValue {
	return attribute.String("risk.detector", name)
}
