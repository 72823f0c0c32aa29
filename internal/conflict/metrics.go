package conflict

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set of raw Prometheus metrics.
// Labels
// * outcome: resolved, skipped, callback_error, transaction_conflict, engine_error
// Do not increment directly, use report* functions.
var (
	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "resolutions_total",
		Help:      "The total number of conflicted documents processed, by outcome.",
	},
		[]string{"outcome"},
	)
	resolveDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "resolve_duration_seconds",
		Help:      "Time from taking the document lock to the resolution outcome.",
	})
	batchesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "batches_delivered",
		Help:      "The total number of live query batches handed to coordinators.",
	})
	batchesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "batches_dropped",
		Help:      "The total number of queued batches dropped when a listener stopped.",
	})
	queueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "queue_length",
		Help:      "The number of batches waiting for a delivery goroutine.",
	})
	watchersRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "watchers_running",
		Help:      "The number of running conflict watchers.",
	})
	watcherFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "conflict",
		Name:      "watcher_failures",
		Help:      "The total number of watchers halted by an engine error.",
	})
)

func init() {
	prometheus.MustRegister(resolutionsTotal)
	prometheus.MustRegister(resolveDurationSeconds)
	prometheus.MustRegister(batchesDelivered)
	prometheus.MustRegister(batchesDropped)
	prometheus.MustRegister(queueLength)
	prometheus.MustRegister(watchersRunning)
	prometheus.MustRegister(watcherFailures)
}

func reportOutcome(label string, status Status, sec float64) {
	resolutionsTotal.WithLabelValues(label).Inc()
	if status != StatusSkipped {
		resolveDurationSeconds.Observe(sec)
	}
}

func reportBatchQueued() {
	batchesDelivered.Inc()
	queueLength.Inc()
}

func reportBatchDequeued() {
	queueLength.Dec()
}

func reportBatchesDropped(n int) {
	batchesDropped.Add(float64(n))
	queueLength.Sub(float64(n))
}

func reportWatcherStarted() {
	watchersRunning.Inc()
}

func reportWatcherStopped() {
	watchersRunning.Dec()
}

func reportWatcherFailed() {
	watcherFailures.Inc()
}
