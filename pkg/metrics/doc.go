/*
Package metrics provides Prometheus metrics collection and exposition for
the bfqsched scheduler core.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Population: active/weight-raised/burst      │          │
	│  │  queues, distinct active weights             │          │
	│  │  Dispatch: sectors/requests by sync, budget   │          │
	│  │  expirations by reason                        │          │
	│  │  Rate state: virtual time, peak rate          │          │
	│  │  Latency: dispatch/idle-wait histograms       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics, format: Prometheus text   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │      /health, /ready, /live endpoints        │          │
	│  │  - Backed by Collector's ticking heartbeat   │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Queue/entity population:

  - bfqsched_queues_active (gauge): queues currently linked into an active
    service tree.
  - bfqsched_queues_weight_raised (gauge): queues currently under
    weight-raising.
  - bfqsched_queues_in_large_burst (gauge): queues currently flagged
    in_large_burst.
  - bfqsched_distinct_active_weights (gauge): size of the weight-counter
    tree, i.e. the number of distinct weights among active entities.

Dispatch / budget accounting:

  - bfqsched_dispatched_sectors_total{sync} (counter)
  - bfqsched_dispatched_requests_total{sync} (counter)
  - bfqsched_budget_expirations_total{reason} (counter): reason is one of
    budget_exhausted, empty_no_idle, timeout, priority.

Virtual-time / rate state:

  - bfqsched_virtual_time (gauge): root scheduler virtual time, fixed-point
    shift 16.
  - bfqsched_peak_rate_sectors_per_sec (gauge)

Latency:

  - bfqsched_dispatch_latency_seconds (histogram): time spent inside
    Dispatch() selecting the next request.
  - bfqsched_idle_wait_duration_seconds (histogram)

# Usage

Most of the catalog above updates itself: pkg/scheduler.Root touches these
metrics directly from AddRequest, Dispatch, Completed, and expire, so a
host only needs to expose the registry and, for a long-running process,
drive a Collector for the health endpoints:

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())

	collector := metrics.NewCollector("scheduler", 15*time.Second)
	collector.Start()
	defer collector.Stop()

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
