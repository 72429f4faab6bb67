package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Total accepted POS connections.",
		},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loyaltygw",
			Subsystem: "tcp",
			Name:      "connections_active",
			Help:      "Currently open POS connections.",
		},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "protocol",
			Name:      "messages_total",
			Help:      "Messages recovered from the inbound stream, by root tag.",
		},
		[]string{"tag"},
	)
	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "protocol",
			Name:      "responses_total",
			Help:      "Framed responses written back, by request kind.",
		},
		[]string{"kind"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loyaltygw",
			Subsystem: "protocol",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from message recovery to response bytes, by request kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "rules",
			Name:      "validations_total",
			Help:      "Identifier validation outcomes.",
		},
		[]string{"format", "valid", "manager_card"},
	)
	ageChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "rules",
			Name:      "age_checks_total",
			Help:      "Age gate outcomes.",
		},
		[]string{"verified"},
	)
	rewardsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "rules",
			Name:      "rewards_issued_total",
			Help:      "AddReward actions sent to terminals.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyaltygw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total diagnostic HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loyaltygw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostic HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsTotal, connectionsActive, messagesTotal, responsesTotal,
			dispatchDuration, validationsTotal, ageChecksTotal, rewardsIssuedTotal,
			httpRequests, httpDuration,
		)
	})
}

func RecordConnectionOpened() {
	RegisterMetrics()
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func RecordConnectionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}

func RecordMessage(tag string) {
	RegisterMetrics()
	messagesTotal.WithLabelValues(tag).Inc()
}

func RecordResponse(kind string, duration time.Duration) {
	RegisterMetrics()
	responsesTotal.WithLabelValues(kind).Inc()
	dispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordValidation(format string, valid, managerCard bool) {
	RegisterMetrics()
	validationsTotal.WithLabelValues(format, strconv.FormatBool(valid), strconv.FormatBool(managerCard)).Inc()
}

func RecordAgeCheck(verified bool) {
	RegisterMetrics()
	ageChecksTotal.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

func RecordRewardIssued() {
	RegisterMetrics()
	rewardsIssuedTotal.Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
