// Package metrics exposes the offramp service's Prometheus metrics: HTTP
// traffic, the attempt ledger, Kafka publishing and the offramp flow itself
// (stage transitions, backend calls, escrow transfers, status polling).
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offramp"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	fastBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	slowBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

var (
	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"service", "method", "path", "status"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP request latency by route.", Buckets: fastBuckets,
	}, []string{"service", "method", "path"})

	dbPoolConnections = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "ledger", Name: "pool_connections_used",
		Help: "Acquired connections in the attempt ledger pool.",
	}, []string{"service"})

	dbQueryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "ledger", Name: "query_duration_seconds",
		Help: "Attempt ledger query latency.", Buckets: fastBuckets,
	}, []string{"query_type"})

	kafkaProduced = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "produced_total",
		Help: "Lifecycle events written to Kafka by outcome.",
	}, []string{"topic", "outcome"})

	stageTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "stage_transitions_total",
		Help: "Offramp session state transitions.",
	}, []string{"from", "to"})

	backendRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "backend", Name: "requests_total",
		Help: "Calls made to the offramp backend by outcome.",
	}, []string{"operation", "outcome"})

	backendDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "backend", Name: "request_duration_seconds",
		Help: "Offramp backend call latency.", Buckets: slowBuckets,
	}, []string{"operation"})

	chainTransfers = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "transfers_total",
		Help: "Token transfers to escrow by outcome.",
	}, []string{"token", "outcome"})

	statusPolls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "poller", Name: "fetches_total",
		Help: "Status poll fetches by result.",
	}, []string{"result"})

	activePollers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "poller", Name: "active",
		Help: "Running status pollers.",
	})

	activeSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_sessions",
		Help: "Sessions not yet in a terminal state.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the OpenMetrics format when asked for it.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
}

type Config struct {
	ServiceName string
	SkipPaths   []string
}

// Middleware records request counts and latency labelled by route pattern,
// so /sessions/:id does not explode into one series per session.
func Middleware(cfg Config) fiber.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		httpRequests.WithLabelValues(cfg.ServiceName, c.Method(), route, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpDuration.WithLabelValues(cfg.ServiceName, c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func RecordDBPoolStats(service string, used int) {
	dbPoolConnections.WithLabelValues(service).Set(float64(used))
}

func RecordDBQuery(queryType string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

func RecordKafkaMessageProduced(topic string, err error) {
	kafkaProduced.WithLabelValues(topic, outcome(err)).Inc()
}

// RecordStageTransition counts one session state change.
func RecordStageTransition(from, to string) {
	stageTransitions.WithLabelValues(from, to).Inc()
}

func RecordBackendRequest(operation string, duration time.Duration, err error) {
	backendRequests.WithLabelValues(operation, outcome(err)).Inc()
	backendDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordChainTransfer(token, result string) {
	chainTransfers.WithLabelValues(token, result).Inc()
}

// RecordStatusPoll counts one poll fetch; result is found, not_found or error.
func RecordStatusPoll(result string) {
	statusPolls.WithLabelValues(result).Inc()
}

func IncActivePollers() { activePollers.Inc() }
func DecActivePollers() { activePollers.Dec() }

func SetActiveSessions(count int) { activeSessions.Set(float64(count)) }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
