// Package metrics: счётчики и гистограммы Prometheus для операций
// workflow, доставки уведомлений и HTTP-запросов.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procurement/internal/workflow"
)

type Metrics struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "operations_total",
			Help:      "Workflow operations by name and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "procurement",
			Name:      "operation_duration_seconds",
			Help:      "Duration of workflow transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "notifications_total",
			Help:      "Event deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "http_requests_total",
			Help:      "HTTP responses by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.operations, m.duration, m.notifications, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome классифицирует ошибку операции для метки outcome.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, workflow.ErrValidation):
		return "validation"
	case errors.Is(err, workflow.ErrForbidden):
		return "forbidden"
	case errors.Is(err, workflow.ErrNotFound):
		return "not_found"
	case errors.Is(err, workflow.ErrConflict):
		return "conflict"
	case errors.Is(err, workflow.ErrPrecondition):
		return "precondition"
	default:
		return "error"
	}
}

// ObserveOperation реализует workflow.Recorder.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveNotification реализует notify.Observer.
func (m *Metrics) ObserveNotification(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notifications.WithLabelValues(sink, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
