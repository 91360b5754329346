// Package tracing 初始化 OpenTelemetry 并为总线分发创建 Span.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/cqrskit/config"
	"github.com/wyfcoding/cqrskit/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wyfcoding/cqrskit/tracing"

// 分发 Span 的属性键.
const (
	AttrBus       = attribute.Key("cqrs.bus")
	AttrMessage   = attribute.Key("cqrs.message")
	AttrHandler   = attribute.Key("cqrs.handler")
	AttrRequestID = attribute.Key("cqrs.request_id")
	AttrUserName  = attribute.Key("cqrs.username")
)

func noopShutdown(context.Context) error { return nil }

// InitTracer 安装全局 TracerProvider 与 W3C 传播器，未启用时什么也不做.
func InitTracer(ctx context.Context, cfg config.TracingConfig) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	tp, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	slog.Info("tracer provider initialized",
		"service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint, "sampler_ratio", cfg.SamplerRatio)
	return tp.Shutdown, nil
}

func newProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))),
	), nil
}

// StartDispatch 为一次分发开启内部 Span，名称为 "cqrs.<bus> <message>"，
// 并带上 context 中的请求 ID 与用户名. 调用方通过 EndDispatch 结束.
//
//nolint:spancheck // 由 EndDispatch 结束.
func StartDispatch(ctx context.Context, bus, message string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrBus.String(bus), AttrMessage.String(message)}
	if id := contextx.GetRequestID(ctx); id != "" {
		attrs = append(attrs, AttrRequestID.String(id))
	}
	if name := contextx.GetUserName(ctx); name != "" {
		attrs = append(attrs, AttrUserName.String(name))
	}
	return otel.Tracer(instrumentationName).Start(ctx, "cqrs."+bus+" "+message,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// HandlerEvent 在当前 Span 上记录一次处理器调用.
func HandlerEvent(ctx context.Context, handler string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("invoke", trace.WithAttributes(AttrHandler.String(handler)))
}

// EndDispatch 按分发结果设置状态并结束 Span.
func EndDispatch(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTraceID 返回当前链路的追踪 ID，没有时为空.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
