package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 注册 cqrs_build_info{service,version,go_version}，只有第一次调用生效.
func (m *Metrics) RegisterBuildInfo(service, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cqrs_build_info",
		Help: "Build information of the service hosting the buses",
	}, []string{"service", "version", "go_version"})
	m.BuildInfo.WithLabelValues(orUnknown(service), orUnknown(version), runtime.Version()).Set(1)
}

// SetRegisteredHandlers 记录注册表中某类处理器 (command / query / event) 的数量.
func (m *Metrics) SetRegisteredHandlers(kind string, n int) {
	if m == nil {
		return
	}
	m.RegisteredHandlers.WithLabelValues(kind).Set(float64(n))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
