// Package metrics defines the Prometheus counters and gauges this module
// originates for the TCP and HTTP back-ends, registered against the
// default registry and served via promhttp, following the CounterVec/Gauge
// + promhttp.Handler() pattern used for originating (rather than
// remote-aggregating) metrics in this corpus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TCP holds the TCP back-end's server-side counters and gauges, labeled by
// client identity where the label cardinality is bounded by the size of a
// single run's client roster.
type TCP struct {
	SequencesServed *prometheus.CounterVec
	BytesOut        *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	ActiveConns     prometheus.Gauge
}

// NewTCP constructs and registers the TCP back-end's metrics against reg.
func NewTCP(reg prometheus.Registerer) *TCP {
	m := &TCP{
		SequencesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psyche_tcp_sequences_served_total",
			Help: "Total sequences served by the TCP back-end, labeled by client identity.",
		}, []string{"identity"}),
		BytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psyche_tcp_bytes_out_total",
			Help: "Total response bytes written by the TCP back-end, labeled by client identity.",
		}, []string{"identity"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psyche_tcp_rejections_total",
			Help: "Total requests rejected by the TCP back-end, labeled by client identity and reason.",
		}, []string{"identity", "reason"}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psyche_tcp_active_connections",
			Help: "Number of currently open TCP back-end connections.",
		}),
	}
	reg.MustRegister(m.SequencesServed, m.BytesOut, m.Rejections, m.ActiveConns)
	return m
}

// HTTP holds the HTTP back-end's request/byte counters.
type HTTP struct {
	HeadRequests  prometheus.Counter
	RangeRequests prometheus.Counter
	BytesFetched  prometheus.Counter
}

// NewHTTP constructs and registers the HTTP back-end's metrics against reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		HeadRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psyche_http_head_requests_total",
			Help: "Total HEAD requests issued during catalogue size discovery.",
		}),
		RangeRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psyche_http_range_requests_total",
			Help: "Total coalesced Range requests issued by the HTTP back-end.",
		}),
		BytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psyche_http_bytes_fetched_total",
			Help: "Total response bytes fetched by the HTTP back-end.",
		}),
	}
	reg.MustRegister(m.HeadRequests, m.RangeRequests, m.BytesFetched)
	return m
}

// Handler returns the promhttp handler serving the default registry,
// mounted at /metrics by cmd/psyche-serve.
func Handler() http.Handler {
	return promhttp.Handler()
}
