// Package managers wires configured controllers to the application
// lifecycle.
package managers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/controllers/restserver"
	"github.com/labcheck/labcheck-predict/internal/controllers/retrainer"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// Dependencies carries the shared components controllers hook into.
type Dependencies struct {
	Retrainer *retrainer.RetrainerController
	Predictor restserver.Predictor
	Models    restserver.ModelSource
}

// NewControllerManager creates a new controller manager. The retrainer
// always runs; the configuration decides which serving controllers come up
// beside it.
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, deps Dependencies, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		logger:      logger,
		deps:        deps,
		controllers: []Controller{deps.Retrainer},
	}

	for _, con := range cfg.Controllers {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %v", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	logger      *zap.SugaredLogger
	deps        Dependencies
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "restserver", "rest":
		var rc config.RESTServerData
		if cc.RESTServer != nil {
			rc = *cc.RESTServer
		}
		return restserver.NewController(cm.ctx, cm.wg, rc, cm.deps.Predictor, cm.deps.Retrainer, cm.deps.Models, cm.logger)
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
