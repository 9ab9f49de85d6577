package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carebridge"

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Count of booking attempts by outcome kind.",
		},
		[]string{"result"},
	)

	reservationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_retries_total",
			Help:      "Count of reservation retries caused by lock contention.",
		},
	)

	reservationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reservation_duration_seconds",
			Help:      "Time spent inside the reservation transaction.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Count of lifecycle transitions by target status and result.",
		},
		[]string{"to", "result"},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_cache_requests_total",
			Help:      "Slot cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events by type and stage (emitted, emit_failed, delivered, delivery_failed).",
		},
		[]string{"type", "stage"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		},
		[]string{"route", "code"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_processed_total",
			Help:      "Appointments processed by background jobs.",
		},
		[]string{"job", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, reservationRetries, reservationDuration,
			transitions, slotCache, events, httpRequests, jobRuns)
	})
}

func IncBookingAttempt(result string) {
	bookingAttempts.WithLabelValues(result).Inc()
}

func IncReservationRetry() {
	reservationRetries.Inc()
}

func ObserveReservation(seconds float64) {
	reservationDuration.Observe(seconds)
}

func IncTransition(to, result string) {
	transitions.WithLabelValues(to, result).Inc()
}

func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}

func IncEvent(eventType, stage string) {
	events.WithLabelValues(eventType, stage).Inc()
}

func IncJob(job, result string) {
	jobRuns.WithLabelValues(job, result).Inc()
}

func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
