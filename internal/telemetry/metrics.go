package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration is recorded by the httpserver Metrics middleware for
// every request, labeled by route pattern, method and status class.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "urumi",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// PhaseDuration records how long each provisioning phase takes to complete.
var PhaseDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "urumi",
		Subsystem: "orchestrator",
		Name:      "phase_duration_seconds",
		Help:      "Duration of each provisioning phase in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"phase", "outcome"},
)

// GatewayRetriesTotal counts retry attempts made by the Kubernetes gateway,
// labeled by the operation that was retried.
var GatewayRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "urumi",
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Total number of retry attempts made against the cluster API.",
	},
	[]string{"operation"},
)

// ActiveStoresGauge reports the current count of stores whose status is not
// in {failed, deleted} — the same population the admission cap enforces.
var ActiveStoresGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "urumi",
		Subsystem: "stores",
		Name:      "active",
		Help:      "Current number of active (non-failed, non-deleted) stores.",
	},
)

// StoreProvisionsTotal counts terminal provisioning outcomes by result.
var StoreProvisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "urumi",
		Subsystem: "stores",
		Name:      "provisions_total",
		Help:      "Total number of store provisioning runs by terminal outcome.",
	},
	[]string{"result"},
)

// All returns the service-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		PhaseDuration,
		GatewayRetriesTotal,
		ActiveStoresGauge,
		StoreProvisionsTotal,
	}
}

// NewMetricsRegistry builds a Prometheus registry carrying the Go/process
// collectors plus every collector in extra.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
