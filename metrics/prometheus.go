// Package metrics 封装基于 Prometheus 的指标注册表及总线分发的标准指标。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装内部独立的 Prometheus 注册中心与预定义的总线指标。
type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal        *prometheus.CounterVec   // 分发总量 (维度: bus, message, status)
	DispatchDuration     *prometheus.HistogramVec // 分发耗时分布 (维度: bus, message)
	EventHandlerFailures *prometheus.CounterVec   // 事件处理器失败次数 (维度: event, handler)
	RegisteredHandlers   *prometheus.GaugeVec     // 已注册处理器数量 (维度: kind)
	BuildInfo            *prometheus.GaugeVec
}

// NewMetrics 初始化指标采集器，并注册 Go 运行时与进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.DispatchTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "cqrs_dispatch_total",
		Help: "Total number of messages dispatched through a bus",
	}, []string{"bus", "message", "status"})

	m.DispatchDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cqrs_dispatch_duration_seconds",
		Help:    "Bus dispatch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"bus", "message"})

	m.EventHandlerFailures = m.NewCounterVec(prometheus.CounterOpts{
		Name: "cqrs_event_handler_failures_total",
		Help: "Total number of failed event handler invocations",
	}, []string{"event", "handler"})

	m.RegisteredHandlers = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cqrs_registered_handlers",
		Help: "Number of handlers bound in the registry",
	}, []string{"kind"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// ObserveDispatch 记录一次分发的结果与耗时。
func (m *Metrics) ObserveDispatch(bus, message string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DispatchTotal.WithLabelValues(bus, message, status).Inc()
	m.DispatchDuration.WithLabelValues(bus, message).Observe(elapsed.Seconds())
}

// ObserveHandlerFailure 记录一次事件处理器失败。
func (m *Metrics) ObserveHandlerFailure(event, handler string) {
	if m == nil {
		return
	}
	m.EventHandlerFailures.WithLabelValues(event, handler).Inc()
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Expose 在指定端口与路径启动独立的 HTTP 服务器暴露指标，返回优雅关闭函数。
func (m *Metrics) Expose(port, path string) func() {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
