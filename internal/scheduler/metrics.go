package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexstream_scheduler_batches_total",
		Help: "Batches processed, by outcome",
	}, []string{"status"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flexstream_scheduler_batch_duration_seconds",
		Help:    "Wall time to evaluate one batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"level"})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_scheduler_records_total",
		Help: "Input records evaluated",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flexstream_scheduler_queue_depth",
		Help: "Files waiting to be processed",
	})
)
