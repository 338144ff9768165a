// Package app assembles the daemon: event store client, model cache,
// trainer, and the configured controllers.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/controllers/retrainer"
	"github.com/labcheck/labcheck-predict/internal/database"
	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/managers"
	"github.com/labcheck/labcheck-predict/internal/metrics"
	"github.com/labcheck/labcheck-predict/internal/ml"
	"github.com/labcheck/labcheck-predict/internal/modelcache"
	"github.com/labcheck/labcheck-predict/internal/prediction"
	"github.com/labcheck/labcheck-predict/internal/trainer"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	// Connect to the event store
	db := database.NewClient(&cfgData.Storage, a.logger)
	if err := db.Connect(); err != nil {
		return err
	}
	if err := db.CreateTables(); err != nil {
		return err
	}

	// Warm-start from the persisted bundle when one exists; otherwise the
	// retrainer's bootstrap cycle will produce the first model.
	cache := &modelcache.Cache{}
	if bundle, err := ml.LoadBundle(cfgData.Trainer.ModelPath); err == nil {
		cache.Store(bundle)
		metrics.SetActiveModel(bundle.TrainedAt)
		a.logger.Infof("loaded model bundle from %s (trained %s)", cfgData.Trainer.ModelPath, bundle.TrainedAt)
	} else if !os.IsNotExist(err) {
		a.logger.Warnf("could not load model bundle from %s: %v", cfgData.Trainer.ModelPath, err)
	}

	tr, err := trainer.New(&cfgData.Trainer, db, db)
	if err != nil {
		return err
	}
	retrainerCtrl, err := retrainer.NewRetrainerController(ctx, &wg, &cfgData.Trainer, tr, cache)
	if err != nil {
		return err
	}

	cm, err := managers.NewControllerManager(ctx, &wg, cfgData, managers.Dependencies{
		Retrainer: retrainerCtrl,
		Predictor: prediction.NewService(cache, db),
		Models:    cache,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
