// Package xmetrics exposes echo counters in the Prometheus text format.
package xmetrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"gecho/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "gecho"

type Metrics struct {
	registry *prometheus.Registry

	attempts    *prometheus.CounterVec
	connections *prometheus.CounterVec
	echoedBytes *prometheus.CounterVec
	rtt         *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Client round trip attempts by outcome.",
		}, []string{"transport", "outcome"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Stream connections accepted by the server.",
		}, []string{"transport"}),
		echoedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echoed_bytes_total",
			Help:      "Bytes echoed back by the server.",
		}, []string{"transport"}),
		rtt: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Round trip time of completed client attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"transport"}),
	}
	m.registry.MustRegister(m.attempts, m.connections, m.echoedBytes, m.rtt)
	return m
}

func (m *Metrics) Attempt(transport, outcome string) {
	m.attempts.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) RTT(transport string, d time.Duration) {
	m.rtt.WithLabelValues(transport).Observe(d.Seconds())
}

func (m *Metrics) Connection(transport string) {
	m.connections.WithLabelValues(transport).Inc()
}

func (m *Metrics) Echoed(transport string, n int) {
	m.echoedBytes.WithLabelValues(transport).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在addr上提供/metrics, ctx取消后关闭; 返回实际监听地址
func (m *Metrics) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics listen addr[%s] failed", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	svr := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	context.AfterFunc(ctx, func() { _ = svr.Close() })
	go func() {
		if err := svr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			xlog.Get(ctx).Warn("Metrics server exit.", zap.Error(err))
		}
	}()
	xlog.Get(ctx).Info("Metrics listen success.", zap.Stringer("addr", ln.Addr()))
	return ln.Addr(), nil
}
