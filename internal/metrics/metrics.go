package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roombooking"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Count of lifecycle operations rejected by error kind.",
		},
		[]string{"operation", "kind"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_total",
			Help:      "Count of booking status transitions by target status.",
		},
		[]string{"to"},
	)

	passDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	passProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_processed_total",
			Help:      "Count of bookings handled by reconciliation passes by result.",
		},
		[]string{"pass", "result"},
	)

	tickSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_tick_skipped_total",
			Help:      "Count of ticks skipped because another replica held the lock.",
		},
	)

	actuationFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuation_publish_failed_total",
			Help:      "Count of actuation publishes that failed by device.",
		},
		[]string{"device"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingRejected,
			bookingTransition,
			passDuration,
			passProcessed,
			tickSkipped,
			actuationFailed,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingRejected(operation, kind string) {
	bookingRejected.WithLabelValues(operation, kind).Inc()
}

func IncTransition(to string) {
	bookingTransition.WithLabelValues(to).Inc()
}

func ObservePass(pass string, d time.Duration) {
	passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

func IncPassProcessed(pass, result string) {
	passProcessed.WithLabelValues(pass, result).Inc()
}

func IncTickSkipped() {
	tickSkipped.Inc()
}

func IncActuationFailed(device string) {
	actuationFailed.WithLabelValues(device).Inc()
}
