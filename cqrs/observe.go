package cqrs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/cqrskit/config"
	"github.com/wyfcoding/cqrskit/contextx"
	"github.com/wyfcoding/cqrskit/metrics"
	"github.com/wyfcoding/cqrskit/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Option 配置总线的观测行为. 观测不会改变分发结果.
type Option func(*Observer)

// WithLogger 指定日志记录器，默认 slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics 启用 Prometheus 分发指标.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Observer) { o.metrics = m }
}

// WithTracing 为每次分发创建 Span.
func WithTracing(enabled bool) Option {
	return func(o *Observer) { o.tracing = enabled }
}

// WithSlowThreshold 超过阈值的分发以 warn 级别记录，0 表示关闭.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *Observer) { o.slow.Store(int64(d)) }
}

// OptionsFromConfig 将总线配置转换为选项. m 为 nil 或配置关闭时不记录指标.
func OptionsFromConfig(cfg config.BusConfig, m *metrics.Metrics) []Option {
	opts := []Option{WithTracing(cfg.Tracing), WithSlowThreshold(cfg.SlowThreshold)}
	if cfg.Metrics {
		opts = append(opts, WithMetrics(m))
	}
	return opts
}

// Observer 为一次分发记录日志、指标与 Span. 命令、查询、事件总线共用.
type Observer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracing bool
	slow    atomic.Int64
}

// NewObserver 根据选项创建观测器.
func NewObserver(opts ...Option) *Observer {
	o := &Observer{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Logger 返回观测器使用的日志记录器.
func (o *Observer) Logger() *slog.Logger {
	return o.logger
}

// Begin 标记一次分发进入 Resolving 状态，返回的 finish 在终态（Succeeded / Failed）时调用.
func (o *Observer) Begin(ctx context.Context, bus, message string) (context.Context, func(err error)) {
	start := time.Now()

	var span trace.Span
	if o.tracing {
		ctx, span = tracing.StartDispatch(ctx, bus, message)
	}
	o.logger.DebugContext(ctx, "dispatch resolving", "bus", bus, "message", message)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		o.metrics.ObserveDispatch(bus, message, err, elapsed)
		if span != nil {
			tracing.EndDispatch(span, err)
		}

		attrs := append([]any{"bus", bus, "message", message, "duration", elapsed}, contextx.LogAttrs(ctx)...)
		switch {
		case err != nil:
			o.logger.ErrorContext(ctx, "dispatch failed", append(attrs, "error", err)...)
		case o.exceeds(elapsed):
			o.logger.WarnContext(ctx, "slow dispatch", attrs...)
		case bus == kindCommand:
			o.logger.InfoContext(ctx, "dispatch succeeded", attrs...)
		default:
			o.logger.DebugContext(ctx, "dispatch succeeded", attrs...)
		}
	}
}

// SetSlowThreshold 运行期调整慢分发阈值，0 表示关闭.
func (o *Observer) SetSlowThreshold(d time.Duration) {
	o.slow.Store(int64(d))
}

// SlowThreshold 返回当前慢分发阈值.
func (o *Observer) SlowThreshold() time.Duration {
	return time.Duration(o.slow.Load())
}

func (o *Observer) exceeds(elapsed time.Duration) bool {
	slow := o.SlowThreshold()
	return slow > 0 && elapsed > slow
}

// Recover 需以 defer 调用. 处理器 panic 时以失败结束本次分发，再原样抛出.
func (o *Observer) Recover(finish func(err error)) {
	if rec := recover(); rec != nil {
		finish(fmt.Errorf("handler panic: %v", rec))
		panic(rec)
	}
}

// Invoking 记录进入 Invoking(handler) 状态.
func (o *Observer) Invoking(ctx context.Context, bus, message, handler string) {
	tracing.HandlerEvent(ctx, handler)
	o.logger.DebugContext(ctx, "dispatch invoking", "bus", bus, "message", message, "handler", handler)
}

// HandlerFailed 记录事件扇出中单个处理器的失败.
func (o *Observer) HandlerFailed(ctx context.Context, event, handler string, err error) {
	o.metrics.ObserveHandlerFailure(event, handler)
	o.logger.WarnContext(ctx, "event handler failed", "event", event, "handler", handler, "error", err)
}
