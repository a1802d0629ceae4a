package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsBridge aggregates counters/histograms per (kind, state/category/
// strategy) as described in spec.md §4.5. Label values are sanitized via
// SanitizeLabel to bound cardinality before touching the registry.
type MetricsBridge struct {
	taskStarted   *prometheus.CounterVec
	taskCompleted *prometheus.CounterVec
	taskFailed    *prometheus.CounterVec
	taskCanceled  *prometheus.CounterVec
	retryApplied  *prometheus.CounterVec
	fallback      *prometheus.CounterVec
	autoDisable   *prometheus.CounterVec
	ipSelection   *prometheus.CounterVec
	ipTripped     *prometheus.CounterVec
	ipRecovered   *prometheus.CounterVec
	tlsTiming     *prometheus.HistogramVec
}

// NewMetricsBridge registers the core's metrics against reg. Pass
// prometheus.DefaultRegisterer for production wiring, or a fresh
// prometheus.NewRegistry() in tests.
func NewMetricsBridge(reg prometheus.Registerer) *MetricsBridge {
	factory := promauto.With(reg)
	return &MetricsBridge{
		taskStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_task_started_total",
			Help: "Number of tasks that entered the Running state, by kind.",
		}, []string{"kind"}),
		taskCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_task_completed_total",
			Help: "Number of tasks that reached the Completed terminal state; the kind label is always empty, as TaskCompleted carries no kind.",
		}, []string{"kind"}),
		taskFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_task_failed_total",
			Help: "Number of tasks that reached the Failed terminal state, by category; the kind label is always empty, as TaskFailed carries no kind.",
		}, []string{"kind", "category"}),
		taskCanceled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_task_canceled_total",
			Help: "Number of tasks canceled by the user; the kind label is always empty, as TaskCanceled carries no kind.",
		}, []string{"kind"}),
		retryApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_retry_applied_total",
			Help: "Number of retry attempts applied, by error code.",
		}, []string{"code"}),
		fallback: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_adaptive_tls_fallback_total",
			Help: "Number of adaptive TLS fallback transitions, by from/to stage.",
		}, []string{"from", "to"}),
		autoDisable: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_adaptive_tls_auto_disable_total",
			Help: "Number of adaptive TLS auto-disable gate transitions, by enabled state.",
		}, []string{"enabled"}),
		ipSelection: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_ip_pool_selection_total",
			Help: "Number of IP pool selections, by strategy and source.",
		}, []string{"strategy", "source"}),
		ipTripped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_ip_pool_circuit_tripped_total",
			Help: "Number of circuit breaker trips, by reason.",
		}, []string{"reason"}),
		ipRecovered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmesh_ip_pool_circuit_recovered_total",
			Help: "Number of circuit breaker recoveries.",
		}, []string{}),
		tlsTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gitmesh_adaptive_tls_total_ms",
			Help:    "Total connection time for adaptive TLS attempts, in milliseconds.",
			Buckets: prometheus.ExponentialBucketsRange(5, 20000, 12),
		}, []string{"used_fake_sni", "fallback_stage"}),
	}
}

func (m *MetricsBridge) Publish(ev Event) {
	switch e := ev.(type) {
	case TaskStarted:
		m.taskStarted.WithLabelValues(SanitizeLabel(e.Kind)).Inc()
	case TaskCompleted:
		m.taskCompleted.WithLabelValues("").Inc()
	case TaskFailed:
		m.taskFailed.WithLabelValues("", SanitizeLabel(e.Category)).Inc()
	case TaskCanceled:
		m.taskCanceled.WithLabelValues("").Inc()
	case RetryApplied:
		m.retryApplied.WithLabelValues(SanitizeLabel(e.Code)).Inc()
	case AdaptiveTlsFallback:
		m.fallback.WithLabelValues(SanitizeLabel(e.From), SanitizeLabel(e.To)).Inc()
	case AdaptiveTlsAutoDisable:
		enabled := "false"
		if e.Enabled {
			enabled = "true"
		}
		m.autoDisable.WithLabelValues(enabled).Inc()
	case AdaptiveTlsTiming:
		if e.TotalMs != nil {
			usedFake := "false"
			if e.UsedFakeSni {
				usedFake = "true"
			}
			m.tlsTiming.WithLabelValues(usedFake, SanitizeLabel(e.FallbackStage)).Observe(float64(*e.TotalMs))
		}
	case IpPoolSelection:
		m.ipSelection.WithLabelValues(SanitizeLabel(e.Strategy), SanitizeLabel(e.Source)).Inc()
	case IpPoolIpTripped:
		m.ipTripped.WithLabelValues(SanitizeLabel(e.Reason)).Inc()
	case IpPoolIpRecovered:
		m.ipRecovered.WithLabelValues().Inc()
	}
}
