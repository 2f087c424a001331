// Package metrics exposes Prometheus instruments for the feed and pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_ticks_total", Help: "Ticks ingested, by instrument and source"},
		[]string{"symbol", "source"},
	)
	MalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_malformed_payloads_total", Help: "Upstream payloads dropped by the normalizer"},
	)
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "feed_connection_state", Help: "Connection manager state ordinal"},
	)
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_state_transitions_total", Help: "Connection state transitions"},
		[]string{"from", "to"},
	)
	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_upstream_errors_total", Help: "Upstream errors by class"},
		[]string{"class"},
	)
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_polls_total", Help: "Degraded-mode REST polls by outcome"},
		[]string{"outcome"},
	)
	PipelineSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_tick_seconds",
			Help:    "Tick to broadcast latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "upstream_request_seconds", Help: "Upstream REST call latency", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
	HubSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hub_subscribers", Help: "Connected subscribers"},
	)
	HubDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hub_dropped_messages_total", Help: "Messages dropped for slow subscribers"},
	)
	JournalDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "journal_dropped_total", Help: "Outlook changes dropped because the journal queue was full"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		MalformedTotal,
		ConnectionState,
		TransitionsTotal,
		UpstreamErrors,
		PollsTotal,
		PipelineSeconds,
		UpstreamLatency,
		HubSubscribers,
		HubDropped,
		JournalDropped,
	)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
