// Package trainer orchestrates one model training cycle: load events,
// engineer features, fit the regressor/classifier pair, and record the
// run. The retrainer controller and the REST /train endpoint both drive
// it through Retrain.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/database"
	"github.com/labcheck/labcheck-predict/internal/features"
	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/metrics"
	"github.com/labcheck/labcheck-predict/internal/ml"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

// ErrDataUnavailable means the store held no events, or feature
// engineering left zero usable rows. Callers treat it as a benign skip,
// not a failed cycle.
var ErrDataUnavailable = errors.New("not enough occupancy data to train")

// EventSource provides the historical readings a training run consumes.
// *database.Client satisfies it.
type EventSource interface {
	FetchEventsAscending(ctx context.Context) ([]database.OccupancyEvent, error)
}

// RunRecorder persists the outcome of a training cycle.
type RunRecorder interface {
	RecordTrainingRun(ctx context.Context, run *database.TrainingRun) error
}

// Metrics summarizes how a completed run evaluated on the held-out slice.
type Metrics struct {
	RegressorMAE       float64 `json:"regressor_mae"`
	RegressorRounds    int     `json:"regressor_rounds"`
	ClassifierLogLoss  float64 `json:"classifier_log_loss"`
	ClassifierRounds   int     `json:"classifier_rounds"`
	ClassifierAccuracy float64 `json:"classifier_accuracy"`
	MeanOccupancy      float64 `json:"mean_occupancy"`
}

// Result is what a successful Retrain hands back to the caller, which is
// responsible for swapping the bundle into the cache and persisting it.
type Result struct {
	Bundle     *ml.Bundle
	RunID      string
	RowsLoaded int
	RowsUsed   int
	Metrics    Metrics
}

// Trainer runs training cycles against a configured feature set.
type Trainer struct {
	cfg      *config.TrainerData
	source   EventSource
	recorder RunRecorder
	set      features.Set
	logger   *zap.SugaredLogger
}

// New builds a Trainer. The feature set name in cfg has already been
// validated at config load, so a parse failure here is a programming
// error and is returned as such.
func New(cfg *config.TrainerData, source EventSource, recorder RunRecorder) (*Trainer, error) {
	set, err := features.ParseSet(cfg.FeatureSet)
	if err != nil {
		return nil, fmt.Errorf("trainer configuration: %w", err)
	}
	return &Trainer{
		cfg:      cfg,
		source:   source,
		recorder: recorder,
		set:      set,
		logger:   log.GetSugaredLogger().Named("trainer"),
	}, nil
}

// Retrain executes one full training cycle. It always records a
// training-run row (best effort) describing the outcome; the returned
// error distinguishes a benign skip (ErrDataUnavailable) from a fatal
// cycle failure.
func (t *Trainer) Retrain(ctx context.Context) (*Result, error) {
	start := time.Now().UTC()
	run := &database.TrainingRun{
		RunID:     uuid.New().String(),
		StartedAt: start,
	}
	t.logger.Infow("training cycle starting", "run_id", run.RunID, "feature_set", string(t.set))

	events, err := t.source.FetchEventsAscending(ctx)
	if err != nil {
		if errors.Is(err, database.ErrNoEvents) {
			return nil, t.finish(ctx, run, nil, ErrDataUnavailable)
		}
		return nil, t.finish(ctx, run, nil, fmt.Errorf("could not load occupancy events: %w", err))
	}
	run.RowsLoaded = len(events)

	rows, err := features.BuildTrainingRows(t.set, toReadings(events), t.bucketWidth())
	if err != nil {
		return nil, t.finish(ctx, run, nil, fmt.Errorf("feature engineering failed: %w", err))
	}
	if len(rows) == 0 {
		t.logger.Infow("no rows survived feature engineering, skipping cycle",
			"run_id", run.RunID, "events_loaded", run.RowsLoaded)
		return nil, t.finish(ctx, run, nil, ErrDataUnavailable)
	}
	run.RowsUsed = len(rows)

	result, err := t.fit(run, rows, start)
	return result, t.finish(ctx, run, result, err)
}

// fit splits the rows chronologically and trains both models on the same
// feature matrix.
func (t *Trainer) fit(run *database.TrainingRun, rows []features.Row, start time.Time) (*Result, error) {
	x := make([][]float64, len(rows))
	occ := make([]float64, len(rows))
	door := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Values
		occ[i] = r.Occupancy
		if r.DoorOpen {
			door[i] = 1
		}
	}

	// chronological split, most recent fifth held out; never shuffled
	valN := len(rows) / 5
	trainN := len(rows) - valN

	opts := ml.TrainOptions{}
	if t.cfg.Debug {
		opts.Logf = t.logger.Debugf
	}

	regressor, regReport, err := ml.FitLADRegressor(x[:trainN], occ[:trainN], x[trainN:], occ[trainN:], opts)
	if err != nil {
		return nil, fmt.Errorf("occupancy regressor fit failed: %w", err)
	}
	classifier, clfReport, err := ml.FitLogisticClassifier(x[:trainN], door[:trainN], x[trainN:], door[trainN:], opts)
	if err != nil {
		return nil, fmt.Errorf("door classifier fit failed: %w", err)
	}

	bundle := &ml.Bundle{
		FeatureSet:   string(t.set),
		FeatureNames: t.set.Names(),
		TrainedAt:    time.Now().UTC(),
		Regressor:    regressor,
		Classifier:   classifier,
	}

	result := &Result{
		Bundle:     bundle,
		RunID:      run.RunID,
		RowsLoaded: run.RowsLoaded,
		RowsUsed:   run.RowsUsed,
		Metrics:    evaluate(bundle, x[trainN:], occ[trainN:], door[trainN:], regReport, clfReport),
	}

	t.logger.Infow("training cycle complete",
		"run_id", run.RunID,
		"rows_loaded", run.RowsLoaded,
		"rows_used", run.RowsUsed,
		"regressor_mae", result.Metrics.RegressorMAE,
		"regressor_rounds", result.Metrics.RegressorRounds,
		"classifier_log_loss", result.Metrics.ClassifierLogLoss,
		"duration", time.Since(start).String())
	return result, nil
}

// finish stamps the run row, records it best-effort, and updates the
// process metrics. It passes the cycle error back through unchanged.
func (t *Trainer) finish(ctx context.Context, run *database.TrainingRun, result *Result, cycleErr error) error {
	run.FinishedAt = time.Now().UTC()
	switch {
	case cycleErr == nil:
		run.Result = database.RunResultTrained
	case errors.Is(cycleErr, ErrDataUnavailable):
		run.Result = database.RunResultSkipped
	default:
		run.Result = database.RunResultFailed
		run.Error = cycleErr.Error()
	}

	// JSONB must always hold a document, even for skipped and failed runs
	if result != nil {
		if err := run.Metrics.Set(result.Metrics); err != nil {
			t.logger.Errorf("could not encode run metrics: %v", err)
		}
		metrics.TrainingRowsUsed.Set(float64(result.RowsUsed))
	} else {
		if err := run.Metrics.Set([]byte("{}")); err != nil {
			t.logger.Errorf("could not encode run metrics: %v", err)
		}
	}
	metrics.TrainingRuns.WithLabelValues(run.Result).Inc()
	metrics.ObserveTrainingDuration(run.StartedAt)

	if t.recorder != nil {
		if err := t.recorder.RecordTrainingRun(ctx, run); err != nil {
			t.logger.Errorf("could not record training run %s: %v", run.RunID, err)
		}
	}
	return cycleErr
}

func (t *Trainer) bucketWidth() time.Duration {
	if t.cfg.SnapshotBucketHours <= 0 {
		return 0
	}
	return time.Duration(t.cfg.SnapshotBucketHours) * time.Hour
}

func toReadings(events []database.OccupancyEvent) []features.Reading {
	readings := make([]features.Reading, len(events))
	for i, e := range events {
		readings[i] = features.Reading{
			Timestamp:   e.Timestamp,
			PersonCount: float64(e.PersonCount),
			DoorOpen:    e.IsDoorOpen,
			EventType:   e.EventType,
		}
	}
	return readings
}
