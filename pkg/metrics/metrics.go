package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "minutepad", Name: "lock_acquisitions_total", Help: "Lock acquisition attempts by outcome."},
		[]string{"outcome"},
	)
	Saves = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutepad", Name: "saves_total", Help: "Successful content saves under a lease."},
	)
	QueueSubmissions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutepad", Name: "queue_submissions_total", Help: "Change queue submissions."},
	)
	QueueProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutepad", Name: "queue_entries_processed_total", Help: "Change queue entries marked processed."},
	)
	Heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "minutepad", Name: "heartbeats_total", Help: "Presence heartbeats received."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(LockAcquisitions)
	reg.MustRegister(Saves)
	reg.MustRegister(QueueSubmissions)
	reg.MustRegister(QueueProcessed)
	reg.MustRegister(Heartbeats)
}
