package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages pushed counter
	MessagesPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_pushed_total",
			Help: "Total number of messages pushed",
		},
		[]string{"queue"},
	)

	// Messages handed out by pull
	MessagesPulled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_pulled_total",
			Help: "Total number of messages returned by pull",
		},
		[]string{"queue"},
	)

	// Pulls that found nothing visible
	EmptyPulls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_empty_pulls_total",
			Help: "Total number of pulls that returned no message",
		},
		[]string{"queue"},
	)

	// Successful delete calls, including receipts that matched nothing
	DeleteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_delete_calls_total",
			Help: "Total number of successful delete calls, matched or not",
		},
		[]string{"queue"},
	)

	QueuesPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_purges_total",
			Help: "Total number of queue purges",
		},
		[]string{"queue"},
	)

	// Failed operations by op (push, pull, delete, purge)
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operation_errors_total",
			Help: "Total number of failed queue operations",
		},
		[]string{"op"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_operation_duration_seconds",
			Help:    "Time taken by queue operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Time spent waiting for a file queue's directory lock
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_file_lock_wait_seconds",
			Help:    "Time spent acquiring file queue locks",
			Buckets: prometheus.DefBuckets,
		},
	)
)
