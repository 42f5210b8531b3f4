// Package metrics defines the Prometheus collectors exported by the
// controller and the print server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diaryprint"

var (
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "jobs_created_total",
		Help:      "Print jobs accepted by the controller.",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "jobs_finished_total",
		Help:      "Print jobs that reached a terminal status.",
	}, []string{"status"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent handing a job to the print server.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "print_server",
		Name:      "queue_length",
		Help:      "Jobs waiting for the printer.",
	})

	Printing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "print_server",
		Name:      "printing",
		Help:      "1 while a job is driving the printer.",
	})

	PagesPrinted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "print_server",
		Name:      "pages_printed_total",
		Help:      "Pages handed to the OS print subsystem.",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "print_server",
		Name:      "jobs_processed_total",
		Help:      "Jobs taken off the queue, by result.",
	}, []string{"result"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "print_server",
		Name:      "webhook_deliveries_total",
		Help:      "Completion webhook deliveries, by result.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Result converts an error into a "success"/"failure" label value.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
