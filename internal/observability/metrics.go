package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replctl",
			Subsystem: "session",
			Name:      "actions_total",
			Help:      "Load/reload actions by outcome.",
		},
		[]string{"module", "kind", "outcome"},
	)
	sessionActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replctl",
			Subsystem: "session",
			Name:      "action_duration_seconds",
			Help:      "Load/reload action duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"module", "kind"},
	)
	sessionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replctl",
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Protocol messages by direction and instruction.",
		},
		[]string{"direction", "instruction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, sessionActions, sessionActionDuration, sessionMessages)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordAction records one load/reload action. kind is "import" or "reload";
// outcome is the response instruction name.
func RecordAction(module, kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	sessionActions.WithLabelValues(module, kind, outcome).Inc()
	sessionActionDuration.WithLabelValues(module, kind).Observe(duration.Seconds())
}

func RecordMessage(direction, instruction string) {
	RegisterMetrics()
	sessionMessages.WithLabelValues(direction, instruction).Inc()
}
