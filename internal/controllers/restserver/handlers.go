package restserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labcheck/labcheck-predict/internal/constants"
	"github.com/labcheck/labcheck-predict/internal/controllers/retrainer"
	"github.com/labcheck/labcheck-predict/internal/prediction"
	"github.com/labcheck/labcheck-predict/internal/trainer"
	"github.com/labcheck/labcheck-predict/pkg/responseformat"
)

// Handlers provides HTTP request handlers for the REST API
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(controller *Controller) *Handlers {
	return &Handlers{
		controller: controller,
		formatter:  responseformat.New(),
	}
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Timestamp string `json:"timestamp"`
}

// PredictResponse mirrors the wire contract downstream dashboards consume.
type PredictResponse struct {
	PredictedOccupancy     float64 `json:"predicted_occupancy"`
	PredictionIsDoorOpen   bool    `json:"prediction_isDoorOpen"`
	PredictionForTimestamp string  `json:"prediction_for_timestamp"`
	LastTrainedAt          *string `json:"last_trained_at"`
}

// GetBanner handles GET / with a service identification banner.
func (h *Handlers) GetBanner(w http.ResponseWriter, req *http.Request) {
	h.formatter.Write(w, req, http.StatusOK, map[string]string{
		"service": "labcheck-predict",
		"version": constants.Version,
	})
}

// GetHealth handles GET /health. The service is healthy as soon as it is
// serving; model_status tells callers whether predictions are possible yet.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	body := map[string]any{
		"status":             "ok",
		"model_status":       "untrained",
		"model_last_trained": nil,
	}
	if bundle := h.controller.models.Current(); bundle != nil {
		body["model_status"] = "ready"
		body["model_last_trained"] = bundle.TrainedAt.Format(time.RFC3339)
	}
	h.formatter.Write(w, req, http.StatusOK, body)
}

// PostPredict handles POST /predict. The timestamp is validated before
// anything else happens; a malformed request never reaches the store.
func (h *Handlers) PostPredict(w http.ResponseWriter, req *http.Request) {
	var body PredictRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "request body must be JSON with a timestamp field")
		return
	}
	target, err := parseTimestamp(body.Timestamp)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "timestamp must be an ISO-8601 instant")
		return
	}

	pred, err := h.controller.predictor.Predict(req.Context(), target)
	if err != nil {
		switch {
		case errors.Is(err, prediction.ErrModelUnavailable):
			h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "no trained model available yet")
		case errors.Is(err, prediction.ErrDataUnavailable):
			h.formatter.WriteError(w, req, http.StatusNotFound, "no occupancy data available to make a prediction")
		default:
			h.controller.logger.Errorf("prediction failed: %v", err)
			h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "event store unavailable")
		}
		return
	}

	var lastTrained *string
	if !pred.ModelTrainedAt.IsZero() {
		s := pred.ModelTrainedAt.Format(time.RFC3339)
		lastTrained = &s
	}
	h.formatter.Write(w, req, http.StatusOK, PredictResponse{
		PredictedOccupancy:     pred.PredictedOccupancy,
		PredictionIsDoorOpen:   pred.PredictedDoorOpen,
		PredictionForTimestamp: pred.ForInstant.Format(time.RFC3339),
		LastTrainedAt:          lastTrained,
	})
}

// PutTrain handles PUT /train: one training cycle under the shared
// single-flight guard.
func (h *Handlers) PutTrain(w http.ResponseWriter, req *http.Request) {
	result, err := h.controller.trigger.RunCycle(req.Context())
	if err != nil {
		switch {
		case errors.Is(err, trainer.ErrDataUnavailable):
			h.formatter.Write(w, req, http.StatusOK, map[string]string{
				"result": "skipped",
				"detail": "not enough occupancy data to train",
			})
		case errors.Is(err, retrainer.ErrCycleRunning):
			h.formatter.WriteError(w, req, http.StatusConflict, "a training cycle is already running")
		default:
			h.controller.logger.Errorf("manual training cycle failed: %v", err)
			h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "training cycle failed")
		}
		return
	}

	h.formatter.Write(w, req, http.StatusOK, map[string]any{
		"result":      "trained",
		"run_id":      result.RunID,
		"rows_loaded": result.RowsLoaded,
		"rows_used":   result.RowsUsed,
		"trained_at":  result.Bundle.TrainedAt.Format(time.RFC3339),
		"metrics":     result.Metrics,
	})
}

// parseTimestamp accepts RFC 3339 instants and the zone-less ISO-8601
// variant Python clients emit; the latter is interpreted as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
}
