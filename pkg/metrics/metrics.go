package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue/entity population
	QueuesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_queues_active",
			Help: "Number of queues currently linked into an active service tree",
		},
	)

	QueuesWeightRaised = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_queues_weight_raised",
			Help: "Number of queues currently under weight-raising",
		},
	)

	QueuesInLargeBurst = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_queues_in_large_burst",
			Help: "Number of queues currently flagged in_large_burst",
		},
	)

	DistinctActiveWeights = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_distinct_active_weights",
			Help: "Number of distinct weights among active entities (weight-counter tree size)",
		},
	)

	// Dispatch / budget accounting
	DispatchedSectorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfqsched_dispatched_sectors_total",
			Help: "Total sectors charged to queues, by sync/async",
		},
		[]string{"sync"},
	)

	DispatchedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfqsched_dispatched_requests_total",
			Help: "Total requests handed to the device, by sync/async",
		},
		[]string{"sync"},
	)

	BudgetExpirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfqsched_budget_expirations_total",
			Help: "Total queue activation expirations, by reason",
		},
		[]string{"reason"},
	)

	// Virtual-time / rate state (root scheduler)
	VirtualTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_virtual_time",
			Help: "Current root scheduler virtual time (fixed-point, shift 16)",
		},
	)

	PeakRateSectorsPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bfqsched_peak_rate_sectors_per_sec",
			Help: "Smoothed estimate of device peak rate in sectors/sec",
		},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bfqsched_dispatch_latency_seconds",
			Help:    "Time spent inside Dispatch() selecting the next request",
			Buckets: prometheus.DefBuckets,
		},
	)

	IdleWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bfqsched_idle_wait_duration_seconds",
			Help:    "Observed duration of idle-window waits before arrival or timeout",
			Buckets: []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064, 0.125},
		},
	)
)

func init() {
	prometheus.MustRegister(QueuesActive)
	prometheus.MustRegister(QueuesWeightRaised)
	prometheus.MustRegister(QueuesInLargeBurst)
	prometheus.MustRegister(DistinctActiveWeights)
	prometheus.MustRegister(DispatchedSectorsTotal)
	prometheus.MustRegister(DispatchedRequestsTotal)
	prometheus.MustRegister(BudgetExpirationsTotal)
	prometheus.MustRegister(VirtualTime)
	prometheus.MustRegister(PeakRateSectorsPerSec)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(IdleWaitDuration)
}

// Handler returns the Prometheus HTTP handler.
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
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
