package trainer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgtype"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labcheck/labcheck-predict/internal/database"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

type fakeStore struct {
	events   []database.OccupancyEvent
	fetchErr error
	runs     []database.TrainingRun
}

func (f *fakeStore) FetchEventsAscending(ctx context.Context) ([]database.OccupancyEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.events) == 0 {
		return nil, database.ErrNoEvents
	}
	return f.events, nil
}

func (f *fakeStore) RecordTrainingRun(ctx context.Context, run *database.TrainingRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

// twoWeekdays generates 15-minute readings across Tue/Wed with a clean
// office pattern: occupied and door open during working hours, empty
// otherwise.
func twoWeekdays() []database.OccupancyEvent {
	var events []database.OccupancyEvent
	start := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC) // a Tuesday
	for i := 0; i < 2*96; i++ {
		ts := start.Add(time.Duration(i) * 15 * time.Minute)
		count := 0
		if h := ts.Hour(); h >= 9 && h < 17 {
			count = 5
		}
		events = append(events, database.OccupancyEvent{
			ID:          int64(i + 1),
			Timestamp:   ts,
			PersonCount: count,
			IsDoorOpen:  count > 0,
			EventType:   database.EventTypePassage,
		})
	}
	return events
}

func newTestTrainer(t *testing.T, store *fakeStore, featureSet string) *Trainer {
	t.Helper()
	cfg := &config.TrainerData{
		IntervalSeconds: 3600,
		FeatureSet:      featureSet,
	}
	tr, err := New(cfg, store, store)
	if err != nil {
		t.Fatalf("building trainer: %v", err)
	}
	return tr
}

func TestRetrainProducesBundle(t *testing.T) {
	store := &fakeStore{events: twoWeekdays()}
	tr := newTestTrainer(t, store, "calendar_lag")

	result, err := tr.Retrain(context.Background())
	if err != nil {
		t.Fatalf("retrain failed: %v", err)
	}
	if result.Bundle == nil || result.Bundle.Regressor == nil || result.Bundle.Classifier == nil {
		t.Fatal("retrain returned an incomplete bundle")
	}
	if result.Bundle.FeatureSet != "calendar_lag" {
		t.Errorf("bundle feature set %q, want calendar_lag", result.Bundle.FeatureSet)
	}
	if got, want := len(result.Bundle.FeatureNames), 8; got != want {
		t.Errorf("bundle carries %d feature names, want %d", got, want)
	}
	if result.RowsLoaded != len(store.events) {
		t.Errorf("rows loaded %d, want %d", result.RowsLoaded, len(store.events))
	}
	if result.RowsUsed == 0 || result.RowsUsed >= result.RowsLoaded {
		t.Errorf("rows used %d, want nonzero and fewer than loaded (lag warmup drops bins)", result.RowsUsed)
	}
	if result.Bundle.TrainedAt.IsZero() {
		t.Error("bundle missing trained-at timestamp")
	}

	if len(store.runs) != 1 {
		t.Fatalf("%d training runs recorded, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.Result != database.RunResultTrained {
		t.Errorf("run result %q, want trained", run.Result)
	}
	if run.RunID != result.RunID {
		t.Errorf("run id mismatch: recorded %q, returned %q", run.RunID, result.RunID)
	}
	if run.Metrics.Status != pgtype.Present {
		t.Error("run metrics not recorded")
	}
}

func TestRetrainLearnsOfficePattern(t *testing.T) {
	store := &fakeStore{events: twoWeekdays()}
	tr := newTestTrainer(t, store, "calendar_lag")

	result, err := tr.Retrain(context.Background())
	if err != nil {
		t.Fatalf("retrain failed: %v", err)
	}
	if result.Metrics.RegressorMAE > 1.0 {
		t.Errorf("held-out MAE %.3f on a clean pattern, want <= 1.0", result.Metrics.RegressorMAE)
	}
	if result.Metrics.ClassifierAccuracy < 0.9 {
		t.Errorf("held-out accuracy %.3f on a clean pattern, want >= 0.9", result.Metrics.ClassifierAccuracy)
	}
}

func TestRetrainEmptyStoreSkips(t *testing.T) {
	store := &fakeStore{}
	tr := newTestTrainer(t, store, "calendar_lag")

	_, err := tr.Retrain(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("got %v, want ErrDataUnavailable", err)
	}
	if len(store.runs) != 1 || store.runs[0].Result != database.RunResultSkipped {
		t.Errorf("empty store should record a skipped run, got %+v", store.runs)
	}
	// even a skipped run must carry a metrics document or the insert fails
	if store.runs[0].Metrics.Status != pgtype.Present {
		t.Error("skipped run missing metrics document")
	}
}

func TestRetrainInsufficientHistorySkips(t *testing.T) {
	// a single reading cannot seed any lag features
	store := &fakeStore{events: twoWeekdays()[:1]}
	tr := newTestTrainer(t, store, "calendar_lag")

	_, err := tr.Retrain(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("got %v, want ErrDataUnavailable", err)
	}
	if len(store.runs) != 1 || store.runs[0].Result != database.RunResultSkipped {
		t.Errorf("zero surviving rows should record a skipped run, got %+v", store.runs)
	}
}

func TestRetrainStoreFaultFails(t *testing.T) {
	boom := errors.New("connection refused")
	store := &fakeStore{fetchErr: boom}
	tr := newTestTrainer(t, store, "calendar_lag")

	_, err := tr.Retrain(context.Background())
	if err == nil || errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("store fault must be a fatal cycle error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("store fault not wrapped: %v", err)
	}
	if len(store.runs) != 1 || store.runs[0].Result != database.RunResultFailed {
		t.Errorf("store fault should record a failed run, got %+v", store.runs)
	}
	if store.runs[0].Error == "" {
		t.Error("failed run missing error text")
	}
}

func TestRetrainCyclicalSet(t *testing.T) {
	store := &fakeStore{events: twoWeekdays()}
	tr := newTestTrainer(t, store, "cyclical")

	result, err := tr.Retrain(context.Background())
	if err != nil {
		t.Fatalf("retrain failed: %v", err)
	}
	if result.Bundle.FeatureSet != "cyclical" {
		t.Errorf("bundle feature set %q, want cyclical", result.Bundle.FeatureSet)
	}
	// cyclical rows need no lag warmup, so every reading yields a row
	if result.RowsUsed != result.RowsLoaded {
		t.Errorf("rows used %d, want all %d loaded", result.RowsUsed, result.RowsLoaded)
	}
}

// trainingDurationSampleCount scrapes the default registry and returns the
// sample count of the training duration histogram.
func trainingDurationSampleCount(t *testing.T) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "labcheck_training_duration_seconds_count ") {
			n, err := strconv.ParseFloat(strings.Fields(line)[1], 64)
			if err != nil {
				t.Fatalf("parsing histogram count line %q: %v", line, err)
			}
			return int(n)
		}
	}
	return 0
}

func TestRetrainObservesDuration(t *testing.T) {
	before := trainingDurationSampleCount(t)

	store := &fakeStore{events: twoWeekdays()}
	tr := newTestTrainer(t, store, "cyclical")
	if _, err := tr.Retrain(context.Background()); err != nil {
		t.Fatalf("retrain failed: %v", err)
	}

	after := trainingDurationSampleCount(t)
	if after != before+1 {
		t.Errorf("duration histogram samples %d -> %d, want one new observation", before, after)
	}
}

func TestNewRejectsUnknownFeatureSet(t *testing.T) {
	cfg := &config.TrainerData{IntervalSeconds: 60, FeatureSet: "fourier"}
	if _, err := New(cfg, &fakeStore{}, nil); err == nil {
		t.Fatal("expected an error for an unknown feature set")
	}
}
