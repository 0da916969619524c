package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters of a Downloader, registered in their own registry
type Metrics struct {
	Registry *prometheus.Registry

	Segments  *prometheus.CounterVec // fetched segments per track
	Failures  *prometheus.CounterVec // segments given up per track
	Bytes     *prometheus.CounterVec // received bytes per track
	Retries   prometheus.Counter
	Refreshes prometheus.Counter
	Sessions  *prometheus.CounterVec // finished sessions per final state
}

// NewMetrics creates the counters in a new registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Segments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "segments_fetched_total",
			Help:      "Number of media segments fetched",
		}, []string{"track"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "segment_failures_total",
			Help:      "Number of media segments skipped after all retries",
		}, []string{"track"}),
		Bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "received_bytes_total",
			Help:      "Bytes received for media and initialization segments",
		}, []string{"track"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "fetch_retries_total",
			Help:      "Number of retried requests",
		}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "manifest_refreshes_total",
			Help:      "Number of live manifest refreshes",
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashdl",
			Name:      "sessions_total",
			Help:      "Number of download sessions by final state",
		}, []string{"state"}),
	}
}
