package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDispatch(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveDispatch("command", "orders.CreateOrder", nil, 10*time.Millisecond)
	m.ObserveDispatch("command", "orders.CreateOrder", errors.New("boom"), time.Millisecond)
	m.ObserveDispatch("command", "orders.CreateOrder", nil, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("command", "orders.CreateOrder", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("command", "orders.CreateOrder", "error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDuration))
}

func TestObserveHandlerFailure(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveHandlerFailure("orders.OrderPlaced", "mailer")

	assert.InDelta(t, 1, testutil.ToFloat64(m.EventHandlerFailures.WithLabelValues("orders.OrderPlaced", "mailer")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveDispatch("query", "q", nil, 0)
		m.ObserveHandlerFailure("e", "h")
		m.RegisterBuildInfo("svc", "v1")
		m.SetRegisteredHandlers("event", 3)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("test")
	m.RegisterBuildInfo("svc", "v1.2.3")
	m.RegisterBuildInfo("svc", "ignored")
	m.SetRegisteredHandlers("command", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cqrs_build_info{go_version="`+runtime.Version()+`",service="svc",version="v1.2.3"} 1`)
	assert.Contains(t, body, `cqrs_registered_handlers{kind="command"} 2`)
	assert.NotContains(t, body, "ignored")
}
