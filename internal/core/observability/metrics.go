package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	backendCallSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_call_duration_seconds",
			Help:    "Latency of catalog function calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"func", "pool", "outcome"},
	)

	baseItemResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "base_item_cache_results_total",
			Help: "Request scoped base item lookups by outcome.",
		},
		[]string{"outcome"},
	)

	hydratedItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydrated_items_total",
			Help: "Items merged with their collection base item in the API.",
		},
	)

	collectionCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_results_total",
			Help: "Shared collection cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	invalidationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Collection change events consumed, by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invalidation_duration_seconds",
			Help:    "Time spent applying one change event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	changeEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_events_published_total",
			Help: "Change events handed to the producer, by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, backendCallSeconds,
		baseItemResults, hydratedItems, collectionCacheResults, cacheOpTotal, redisOpSeconds,
		invalidationEvents, invalidationSeconds, kafkaConsumerErrors, changeEventsPublished,
	}
}

// Init additionally exposes the service metrics on reg. Build info is left to
// the registry owner.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveBackendCall(fn, pool, outcome string, durationSeconds float64) {
	backendCallSeconds.WithLabelValues(fn, pool, outcome).Observe(durationSeconds)
}

func IncBaseItemHit()  { baseItemResults.WithLabelValues("hit").Inc() }
func IncBaseItemMiss() { baseItemResults.WithLabelValues("miss").Inc() }

func AddHydratedItems(n int) {
	if n > 0 {
		hydratedItems.Add(float64(n))
	}
}

func IncCollectionCache(outcome string) {
	collectionCacheResults.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveInvalidation(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidationEvents.WithLabelValues(op, result).Inc()
	invalidationSeconds.Observe(durationSeconds)
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncChangeEvent(result string) {
	changeEventsPublished.WithLabelValues(result).Inc()
}
