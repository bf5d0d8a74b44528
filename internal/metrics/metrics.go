// Package metrics records the outcome of a provisioning run as Prometheus
// metrics. A one-shot run cannot be scraped, so the registry is written to a
// node exporter textfile instead.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tordrt/docschema/internal/provision"
)

// Recorder holds the metrics of one process
type Recorder struct {
	registry *prometheus.Registry

	objects     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge

	now func() time.Time
}

// NewRecorder creates a Recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docschema_objects_total",
			Help: "Collections and indexes handled, by object kind and status",
		}, []string{"kind", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docschema_failures_total",
			Help: "Failed runs, by error kind",
		}, []string{"kind"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docschema_apply_duration_seconds",
			Help: "Duration of the last run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docschema_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		now: time.Now,
	}

	r.registry.MustRegister(r.objects, r.failures, r.duration, r.lastSuccess)
	return r
}

// Registry returns the registry holding the recorder's metrics
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Record adds one run. report may be partial or nil when err is set.
func (r *Recorder) Record(report *provision.Report, err error, elapsed time.Duration) {
	if report != nil {
		for _, o := range report.Outcomes {
			r.objects.WithLabelValues(string(o.Kind), string(o.Status)).Inc()
		}
	}

	r.duration.Set(elapsed.Seconds())

	if err != nil {
		r.failures.WithLabelValues(provision.KindOf(err).String()).Inc()
		return
	}
	r.lastSuccess.Set(float64(r.now().Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
