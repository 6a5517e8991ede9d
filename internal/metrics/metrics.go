package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remindbot"

// Observer exposes Prometheus collectors for reminder activity. A nil
// *Observer is valid and records nothing.
type Observer struct {
	created          prometheus.Counter
	delivered        *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	deliveryDuration prometheus.Histogram
	armedTimers      prometheus.Gauge
	purged           prometheus.Counter
}

// MustNew registers the collectors on reg and panics on duplicate
// registration, matching the promauto helpers.
func MustNew(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_created_total",
			Help:      "Reminders accepted and armed.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_delivered_total",
			Help:      "Reminders moved to delivered, by the path that finalized them.",
		}, []string{"source"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Send attempts rejected by the messaging collaborator.",
		}),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_duration_seconds",
			Help:      "Time spent sending and finalizing one reminder.",
			Buckets:   prometheus.DefBuckets,
		}),
		armedTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "armed_timers",
			Help:      "Timers currently waiting to fire.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_purged_total",
			Help:      "Delivered reminders removed by history retention.",
		}),
	}

	reg.MustRegister(o.created, o.delivered, o.deliveryFailures, o.deliveryDuration, o.armedTimers, o.purged)
	return o
}

func (o *Observer) ReminderCreated() {
	if o == nil {
		return
	}
	o.created.Inc()
}

// ReminderDelivered counts a terminal transition. source is "dispatch" or
// "recovery".
func (o *Observer) ReminderDelivered(source string) {
	if o == nil {
		return
	}
	o.delivered.WithLabelValues(source).Inc()
}

func (o *Observer) DeliveryFailed() {
	if o == nil {
		return
	}
	o.deliveryFailures.Inc()
}

func (o *Observer) ObserveDelivery(d time.Duration) {
	if o == nil {
		return
	}
	o.deliveryDuration.Observe(d.Seconds())
}

func (o *Observer) SetArmedTimers(n int) {
	if o == nil {
		return
	}
	o.armedTimers.Set(float64(n))
}

func (o *Observer) RemindersPurged(n int64) {
	if o == nil || n <= 0 {
		return
	}
	o.purged.Add(float64(n))
}
