// Package metrics exposes the service's Prometheus instrumentation. The
// REST controller mounts promhttp on /metrics; everything here registers
// on the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labcheck_predictions_total",
		Help: "Prediction requests served, by outcome",
	}, []string{"outcome"})
	TrainingRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labcheck_training_runs_total",
		Help: "Training runs completed, by result",
	}, []string{"result"})
	TrainingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "labcheck_training_duration_seconds",
		Help:    "Wall-clock duration of training runs",
		Buckets: prometheus.DefBuckets,
	})
	TrainingRowsUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labcheck_training_rows_used",
		Help: "Feature rows that survived lag filtering in the last run",
	})
	ModelTrainedAt = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labcheck_model_trained_at_seconds",
		Help: "Unix time the active model bundle was trained",
	})
)

func init() {
	prometheus.MustRegister(Predictions, TrainingRuns, TrainingDuration, TrainingRowsUsed, ModelTrainedAt)
}

// ObserveTrainingDuration records the wall-clock time of one training run.
func ObserveTrainingDuration(start time.Time) {
	TrainingDuration.Observe(time.Since(start).Seconds())
}

// SetActiveModel updates the trained-at gauge after a bundle swap.
func SetActiveModel(trainedAt time.Time) {
	ModelTrainedAt.Set(float64(trainedAt.Unix()))
}
