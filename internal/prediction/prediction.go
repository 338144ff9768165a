// Package prediction serves occupancy and door-state forecasts from the
// currently cached model bundle.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/database"
	"github.com/labcheck/labcheck-predict/internal/features"
	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/metrics"
	"github.com/labcheck/labcheck-predict/internal/ml"
)

var (
	// ErrModelUnavailable means no trained bundle is in the cache yet.
	ErrModelUnavailable = errors.New("no trained model available")
	// ErrDataUnavailable means the model needs a recent reading to seed
	// its lag features and the store has none.
	ErrDataUnavailable = errors.New("no occupancy data available to seed prediction")
)

// ReadingSource supplies the most recent observation for lag seeding.
// *database.Client satisfies it.
type ReadingSource interface {
	LatestReading(ctx context.Context) (*database.OccupancyEvent, error)
}

// ModelSource hands out the active bundle. *modelcache.Cache satisfies it.
type ModelSource interface {
	Current() *ml.Bundle
}

// Prediction is the answer for one requested instant.
type Prediction struct {
	PredictedOccupancy float64
	PredictedDoorOpen  bool
	ForInstant         time.Time
	ModelTrainedAt     time.Time
}

// Service answers prediction requests against the cached bundle.
type Service struct {
	models ModelSource
	store  ReadingSource
	logger *zap.SugaredLogger
}

// NewService builds a prediction service.
func NewService(models ModelSource, store ReadingSource) *Service {
	return &Service{
		models: models,
		store:  store,
		logger: log.GetSugaredLogger().Named("prediction"),
	}
}

// Predict forecasts occupancy and door state for the target instant.
// The store is only consulted when the active feature set carries lag
// features; purely calendar-driven models never touch it.
func (s *Service) Predict(ctx context.Context, target time.Time) (*Prediction, error) {
	bundle := s.models.Current()
	if bundle == nil || bundle.Regressor == nil || bundle.Classifier == nil {
		metrics.Predictions.WithLabelValues("model_unavailable").Inc()
		return nil, ErrModelUnavailable
	}

	var lagSeed *float64
	if features.NeedsLagSeed(bundle.FeatureNames) {
		latest, err := s.store.LatestReading(ctx)
		if err != nil {
			if errors.Is(err, database.ErrNoEvents) {
				metrics.Predictions.WithLabelValues("data_unavailable").Inc()
				return nil, ErrDataUnavailable
			}
			metrics.Predictions.WithLabelValues("store_error").Inc()
			return nil, fmt.Errorf("could not fetch latest reading: %w", err)
		}
		count := float64(latest.PersonCount)
		lagSeed = &count
	}

	vector, err := features.InferenceVector(bundle.FeatureNames, target, lagSeed)
	if err != nil {
		if errors.Is(err, features.ErrMissingLagSeed) {
			metrics.Predictions.WithLabelValues("data_unavailable").Inc()
			return nil, ErrDataUnavailable
		}
		metrics.Predictions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("could not build feature vector: %w", err)
	}

	occupancy := bundle.Regressor.Predict(vector)
	if occupancy < 0 {
		occupancy = 0
	}
	doorOpen := bundle.Classifier.Predict(vector) >= 0.5

	metrics.Predictions.WithLabelValues("ok").Inc()
	s.logger.Debugw("prediction served",
		"for", target, "occupancy", occupancy, "door_open", doorOpen,
		"model_trained_at", bundle.TrainedAt)

	return &Prediction{
		PredictedOccupancy: occupancy,
		PredictedDoorOpen:  doorOpen,
		ForInstant:         target,
		ModelTrainedAt:     bundle.TrainedAt,
	}, nil
}
