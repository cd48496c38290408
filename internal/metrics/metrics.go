package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/vulnmerge/internal/model"
)

const namespace = "vulnmerge"

// Recorder holds the gauges describing the last observed run.
type Recorder struct {
	registry *prometheus.Registry

	duration  prometheus.Gauge
	finished  prometheus.Gauge
	records   *prometheus.GaugeVec
	findings  *prometheus.GaugeVec
	files     *prometheus.GaugeVec
	warnings  *prometheus.GaugeVec
	ambiguous prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last merge run in seconds",
		}),
		finished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last merge run finished",
		}),
		records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Number of records at each stage of the last run",
		}, []string{"stage"}),
		findings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "findings",
			Help:      "Number of merged findings by family and risk level",
		}, []string{"family", "severity"}),
		files: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_files",
			Help:      "Number of input files by family and status",
		}, []string{"family", "status"}),
		warnings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warnings",
			Help:      "Number of warnings by kind",
		}, []string{"kind"}),
		ambiguous: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ambiguous_records",
			Help:      "Number of merged records flagged as merge ambiguity",
		}),
	}
}

// Registry returns the registry the gauges are registered in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe replaces the gauges with the statistics of result.
func (r *Recorder) Observe(result *model.BatchResult) {
	r.records.Reset()
	r.findings.Reset()
	r.files.Reset()
	r.warnings.Reset()

	r.duration.Set(result.Duration().Seconds())
	if !result.FinishedAt.IsZero() {
		r.finished.Set(float64(result.FinishedAt.Unix()))
	}

	r.records.WithLabelValues("parsed").Set(float64(result.TotalRecords))
	r.records.WithLabelValues("accumulated").Set(float64(result.Accumulated))
	r.records.WithLabelValues("merged").Set(float64(result.MergedCount))
	r.records.WithLabelValues("filtered").Set(float64(result.FilteredCount))

	ambiguous := 0
	for _, rec := range result.Merged {
		r.findings.WithLabelValues(string(rec.Family), rec.Severity.Label()).Inc()
		if rec.Flags.MergeAmbiguity {
			ambiguous++
		}
	}
	r.ambiguous.Set(float64(ambiguous))

	for _, f := range result.Files {
		r.files.WithLabelValues(string(f.Family), string(f.Status)).Inc()
	}
	for _, w := range result.Warnings {
		r.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}

// WriteTextfile writes the current gauges to path in the text exposition
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
