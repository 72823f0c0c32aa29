package replication

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set of raw Prometheus metrics.
// Labels
// * status: stopped, offline, idle, active, connecting
// Do not increment directly, use report* functions.
var (
	statusReports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "replication",
		Name:      "status_reports_total",
		Help:      "The total number of status reports emitted by replicators.",
	},
		[]string{"status"},
	)
	revisionsCopied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "replication",
		Name:      "revisions_copied_total",
		Help:      "The total number of revisions inserted into a target store.",
	})
	copyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docsync",
		Subsystem: "replication",
		Name:      "copy_errors_total",
		Help:      "The total number of failed copy passes.",
	})
)

func init() {
	prometheus.MustRegister(statusReports)
	prometheus.MustRegister(revisionsCopied)
	prometheus.MustRegister(copyErrors)
}

func reportStatus(raw RawStatus) {
	statusReports.WithLabelValues(raw.String()).Inc()
}

func reportCopied(n int) {
	revisionsCopied.Add(float64(n))
}

func reportCopyError() {
	copyErrors.Inc()
}
