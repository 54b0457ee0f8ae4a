// Package metrics exposes mock-backend and chat counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{0.01, 0.1, 0.5, 1, 2, 3, 5, 10}

// Registry holds the AgriSaarthi series on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	MockCalls        *prometheus.CounterVec
	MockLatency      *prometheus.HistogramVec
	MessagesAppended prometheus.Counter
	FallbackReplies  prometheus.Counter
	BusyRejections   prometheus.Counter
	ActiveScreens    prometheus.Gauge
	WSConnections    prometheus.Gauge
}

func NewRegistry() *Registry {
	start := time.Now()
	r := &Registry{
		reg: prometheus.NewRegistry(),
		MockCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrisaarthi_mock_calls_total",
			Help: "Simulated backend calls",
		}, []string{"op"}),
		MockLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agrisaarthi_mock_latency_seconds",
			Help:    "Simulated backend latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"op"}),
		MessagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agrisaarthi_messages_total",
			Help: "Messages appended to conversations",
		}),
		FallbackReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agrisaarthi_fallback_replies_total",
			Help: "Replies replaced by the fixed error message",
		}),
		BusyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agrisaarthi_busy_rejections_total",
			Help: "Sends rejected while a request was in flight",
		}),
		ActiveScreens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agrisaarthi_active_screens",
			Help: "Chat screens currently open",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agrisaarthi_ws_connections",
			Help: "Open WebSocket connections",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "agrisaarthi_uptime_seconds",
			Help: "Time since start in seconds",
		}, func() float64 { return time.Since(start).Seconds() }),
		r.MockCalls,
		r.MockLatency,
		r.MessagesAppended,
		r.FallbackReplies,
		r.BusyRejections,
		r.ActiveScreens,
		r.WSConnections,
	)
	return r
}

// MockCall records one simulated backend call.
func (r *Registry) MockCall(op string, took time.Duration) {
	r.MockCalls.WithLabelValues(op).Inc()
	r.MockLatency.WithLabelValues(op).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Pre-defined chat metrics on Collector.
var (
	MessagesAppended = Collector.MessagesAppended
	FallbackReplies  = Collector.FallbackReplies
	BusyRejections   = Collector.BusyRejections
	ActiveScreens    = Collector.ActiveScreens
	WSConnections    = Collector.WSConnections
)

// MockCall records one simulated backend call on Collector.
func MockCall(op string, took time.Duration) {
	Collector.MockCall(op, took)
}
