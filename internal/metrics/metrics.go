// Package metrics records pipeline metrics in a private Prometheus registry.
//
// A batch CLI has no scrape endpoint, so the registry can be written to a
// node_exporter textfile after a run. A nil *Recorder is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "jarforge"

// Stage outcomes.
const (
	OutcomeRan     = "ran"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder holds the pipeline metrics.
type Recorder struct {
	reg *prometheus.Registry

	stageRuns       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	invalidations   *prometheus.CounterVec
	classesVisited  *prometheus.CounterVec
	classesChanged  *prometheus.CounterVec
	mergeEntries    *prometheus.CounterVec
	patchedClasses  *prometheus.CounterVec
	artifactChanges prometheus.Counter

	logger *zap.Logger
}

// New registers the metrics in a fresh registry.
func New(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg:    reg,
		logger: logger.With(zap.String("component", "metrics")),
		stageRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage invocations by outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent running a pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Global cache invalidations by reason.",
		}, []string{"reason"}),
		classesVisited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_classes_visited_total",
			Help:      "Class entries visited by a rewrite pass.",
		}, []string{"transform"}),
		classesChanged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_classes_changed_total",
			Help:      "Class entries changed by a rewrite pass.",
		}, []string{"transform"}),
		mergeEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_entries_total",
			Help:      "Merged archive entries by classification.",
		}, []string{"kind"}),
		patchedClasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patched_classes_total",
			Help:      "Class entries produced by binary patches.",
		}, []string{"side"}),
		artifactChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_changes_total",
			Help:      "Artifacts added, removed or changed since the previous run.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Stage records one stage decision and, for stages that ran or failed, its
// duration.
func (r *Recorder) Stage(stage, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageRuns.WithLabelValues(stage, outcome).Inc()
	if outcome != OutcomeSkipped {
		r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Invalidation counts a global invalidation.
func (r *Recorder) Invalidation(reason string) {
	if r == nil {
		return
	}
	r.invalidations.WithLabelValues(reason).Inc()
}

// Rewrite records the result of a rewrite pass.
func (r *Recorder) Rewrite(transform string, visited, changed int) {
	if r == nil {
		return
	}
	r.classesVisited.WithLabelValues(transform).Add(float64(visited))
	r.classesChanged.WithLabelValues(transform).Add(float64(changed))
}

// Merge records merged entry counts by kind.
func (r *Recorder) Merge(counts map[string]int) {
	if r == nil {
		return
	}
	for kind, n := range counts {
		r.mergeEntries.WithLabelValues(kind).Add(float64(n))
	}
}

// Patched records the number of patched classes for a side.
func (r *Recorder) Patched(side string, n int) {
	if r == nil {
		return
	}
	r.patchedClasses.WithLabelValues(side).Add(float64(n))
}

// ArtifactChanges counts artifacts that differ from the previous snapshot.
func (r *Recorder) ArtifactChanges(n int) {
	if r == nil {
		return
	}
	r.artifactChanges.Add(float64(n))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		r.logger.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		return err
	}
	r.logger.Debug("wrote metrics textfile", zap.String("path", path))
	return nil
}
