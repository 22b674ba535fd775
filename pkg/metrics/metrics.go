// Package metrics exposes the agent's Prometheus metrics: counters for
// shipped/failed/dropped events, gauges for buffer depth and connection
// status, and per-stage latency histograms.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsEnqueuedTotal counts records added to the durable buffer, by kind.
	EventsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lognog_events_enqueued_total",
			Help: "Total number of records added to the durable buffer, by kind",
		},
		[]string{"kind"},
	)

	// EventsSentTotal counts records successfully shipped to the server.
	EventsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lognog_events_sent_total",
			Help: "Total number of records successfully shipped, by kind",
		},
		[]string{"kind"},
	)

	// EventsFailedTotal counts send attempts that did not succeed, by reason.
	EventsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lognog_events_failed_total",
			Help: "Total number of failed send attempts, by reason (transport, auth, server)",
		},
		[]string{"reason"},
	)

	// EventsPoisonedTotal counts entries evicted for exceeding the poison threshold.
	EventsPoisonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lognog_events_poisoned_total",
			Help: "Total number of buffered entries evicted after exceeding the poison threshold",
		},
	)

	// EventsBuffered is the current number of pending entries in the durable buffer.
	EventsBuffered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lognog_events_buffered",
			Help: "Current number of pending entries in the durable buffer",
		},
	)

	// ConnectionStatus is 1 for the shipper's currently active status, by label.
	ConnectionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lognog_connection_status",
			Help: "Current shipper connection status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"},
	)

	// BaselineEntriesTotal is the current number of entries in the FIM baseline store.
	BaselineEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lognog_fim_baseline_entries",
			Help: "Current number of paths tracked in the FIM baseline store",
		},
	)

	// FIMVerificationDuration times full baseline verification scans.
	FIMVerificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lognog_fim_verification_duration_seconds",
			Help:    "Duration of full FIM baseline verification scans",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// ShipBatchDuration times one shipper send-batch HTTP round trip.
	ShipBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lognog_ship_batch_duration_seconds",
			Help:    "Duration of shipper batch POST round trips",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TailerLinesReadTotal counts lines drained from watched files.
	TailerLinesReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lognog_tailer_lines_read_total",
			Help: "Total number of lines read from tailed files",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsEnqueuedTotal)
	prometheus.MustRegister(EventsSentTotal)
	prometheus.MustRegister(EventsFailedTotal)
	prometheus.MustRegister(EventsPoisonedTotal)
	prometheus.MustRegister(EventsBuffered)
	prometheus.MustRegister(ConnectionStatus)
	prometheus.MustRegister(BaselineEntriesTotal)
	prometheus.MustRegister(FIMVerificationDuration)
	prometheus.MustRegister(ShipBatchDuration)
	prometheus.MustRegister(TailerLinesReadTotal)
}

// Handler returns the Prometheus HTTP handler for a local metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
