package retrainer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/ml"
	"github.com/labcheck/labcheck-predict/internal/modelcache"
	"github.com/labcheck/labcheck-predict/internal/trainer"
)

type fakeTrainer struct {
	mu      sync.Mutex
	calls   int
	result  *trainer.Result
	err     error
	block   chan struct{} // when set, Retrain waits here
	started chan struct{} // closed once Retrain is entered
}

func (f *fakeTrainer) Retrain(ctx context.Context) (*trainer.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeTrainer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testController(t *testing.T, ft *fakeTrainer, cache *modelcache.Cache) *RetrainerController {
	t.Helper()
	return &RetrainerController{
		ctx:       context.Background(),
		wg:        &sync.WaitGroup{},
		logger:    log.GetSugaredLogger(),
		trainer:   ft,
		cache:     cache,
		interval:  time.Hour,
		modelPath: filepath.Join(t.TempDir(), "occupancy.bundle"),
	}
}

func trainedResult() *trainer.Result {
	return &trainer.Result{
		Bundle: &ml.Bundle{
			FeatureSet:   "cyclical",
			FeatureNames: []string{"hour_sin"},
			TrainedAt:    time.Now().UTC(),
			Regressor:    &ml.GBM{Base: 1},
			Classifier:   &ml.GBM{Base: 0, Logistic: true},
		},
		RunID: "run-1",
	}
}

func TestRunCycleSwapsCacheAndPersists(t *testing.T) {
	cache := &modelcache.Cache{}
	ft := &fakeTrainer{result: trainedResult()}
	c := testController(t, ft, cache)

	result, err := c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if cache.Current() != result.Bundle {
		t.Error("fresh bundle not swapped into the cache")
	}
	if _, err := ml.LoadBundle(c.modelPath); err != nil {
		t.Errorf("bundle not persisted to the model path: %v", err)
	}
}

func TestRunCycleFailureLeavesCacheUntouched(t *testing.T) {
	cache := &modelcache.Cache{}
	previous := trainedResult().Bundle
	cache.Store(previous)

	ft := &fakeTrainer{err: errors.New("store down")}
	c := testController(t, ft, cache)

	if _, err := c.RunCycle(context.Background()); err == nil {
		t.Fatal("expected the cycle error to surface")
	}
	if cache.Current() != previous {
		t.Error("failed cycle must not disturb the serving model")
	}
}

func TestRunCycleDataUnavailablePassesThrough(t *testing.T) {
	ft := &fakeTrainer{err: trainer.ErrDataUnavailable}
	c := testController(t, ft, &modelcache.Cache{})

	if _, err := c.RunCycle(context.Background()); !errors.Is(err, trainer.ErrDataUnavailable) {
		t.Fatalf("got %v, want ErrDataUnavailable", err)
	}
}

func TestRunCycleSingleFlight(t *testing.T) {
	ft := &fakeTrainer{
		result:  trainedResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c := testController(t, ft, &modelcache.Cache{})

	firstDone := make(chan error, 1)
	started := ft.started
	go func() {
		_, err := c.RunCycle(context.Background())
		firstDone <- err
	}()

	<-started
	if _, err := c.RunCycle(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("concurrent cycle got %v, want ErrCycleRunning", err)
	}

	close(ft.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// guard released, a new cycle may run again
	ft.block = nil
	if _, err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle after release failed: %v", err)
	}
	if ft.callCount() != 2 {
		t.Errorf("trainer ran %d times, want 2", ft.callCount())
	}
}

func TestBootstrapRunsWhenCacheEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTrainer{result: trainedResult()}
	cache := &modelcache.Cache{}
	c := testController(t, ft, cache)
	c.ctx = ctx

	if err := c.StartController(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for cache.Current() == nil {
		select {
		case <-deadline:
			t.Fatal("bootstrap cycle never populated the cache")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	c.wg.Wait()

	if ft.callCount() != 1 {
		t.Errorf("trainer ran %d times, want exactly the bootstrap cycle", ft.callCount())
	}
}

func TestNoBootstrapWhenModelLoaded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ft := &fakeTrainer{result: trainedResult()}
	cache := &modelcache.Cache{}
	cache.Store(trainedResult().Bundle)
	c := testController(t, ft, cache)
	c.ctx = ctx

	if err := c.StartController(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	c.wg.Wait()

	if ft.callCount() != 0 {
		t.Errorf("trainer ran %d times before the first interval, want 0", ft.callCount())
	}
}
