// Package retrainer runs the periodic model retraining loop and owns the
// single-flight guard that keeps scheduled and manually triggered cycles
// from overlapping.
package retrainer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/metrics"
	"github.com/labcheck/labcheck-predict/internal/modelcache"
	"github.com/labcheck/labcheck-predict/internal/trainer"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

// ErrCycleRunning is returned when a training cycle is requested while
// another one is still in flight.
var ErrCycleRunning = errors.New("a training cycle is already running")

// cycleTrainer is the slice of the trainer the controller drives.
type cycleTrainer interface {
	Retrain(ctx context.Context) (*trainer.Result, error)
}

// RetrainerController periodically retrains the models and swaps fresh
// bundles into the cache.
type RetrainerController struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	logger    *zap.SugaredLogger
	trainer   cycleTrainer
	cache     *modelcache.Cache
	interval  time.Duration
	modelPath string
	running   atomic.Bool
}

// NewRetrainerController creates the retraining controller.
func NewRetrainerController(ctx context.Context, wg *sync.WaitGroup, cfg *config.TrainerData, tr *trainer.Trainer, cache *modelcache.Cache) (*RetrainerController, error) {
	if cfg.IntervalSeconds <= 0 {
		return nil, errors.New("retrainer requires a positive training interval")
	}
	return &RetrainerController{
		ctx:       ctx,
		wg:        wg,
		logger:    log.GetSugaredLogger().Named("retrainer"),
		trainer:   tr,
		cache:     cache,
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		modelPath: cfg.ModelPath,
	}, nil
}

// StartController launches the retraining loop.
func (c *RetrainerController) StartController() error {
	log.Info("Starting retrainer controller...")
	go c.retrainPeriodically()
	return nil
}

// retrainPeriodically is the controller's main loop. The interval is
// measured from the end of each cycle, so a slow training run delays the
// next one instead of stacking up behind it. If the cache is still empty
// when the loop starts (no bundle was persisted from an earlier life),
// one bootstrap cycle runs immediately.
func (c *RetrainerController) retrainPeriodically() {
	c.wg.Add(1)
	defer c.wg.Done()

	if c.cache.Current() == nil {
		log.Info("no model available at startup, running bootstrap training cycle")
		c.runScheduled()
	}

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.runScheduled()
			timer.Reset(c.interval)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *RetrainerController) runScheduled() {
	if _, err := c.RunCycle(c.ctx); err != nil {
		switch {
		case errors.Is(err, trainer.ErrDataUnavailable):
			c.logger.Info("scheduled training cycle skipped: ", err)
		case errors.Is(err, ErrCycleRunning):
			c.logger.Info("scheduled training cycle skipped, a manual cycle is in flight")
		default:
			c.logger.Error("scheduled training cycle failed: ", err)
		}
	}
}

// RunCycle executes one training cycle under the single-flight guard.
// The REST /train handler calls this too; only one cycle runs at a time
// regardless of who asked for it. On success the new bundle is swapped
// into the cache and persisted to the model path.
func (c *RetrainerController) RunCycle(ctx context.Context) (*trainer.Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer c.running.Store(false)

	result, err := c.trainer.Retrain(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Store(result.Bundle)
	metrics.SetActiveModel(result.Bundle.TrainedAt)

	if err := result.Bundle.Save(c.modelPath); err != nil {
		// the in-memory model is already live; persistence failure only
		// costs us a warm start after the next restart
		c.logger.Errorf("could not persist model bundle to %s: %v", c.modelPath, err)
	}
	return result, nil
}
