// Package restserver exposes the prediction API over HTTP: the service
// banner, health, prediction and manual-train endpoints, plus Prometheus
// metrics.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/ml"
	"github.com/labcheck/labcheck-predict/internal/prediction"
	"github.com/labcheck/labcheck-predict/internal/trainer"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

// Predictor answers forecast requests. *prediction.Service satisfies it.
type Predictor interface {
	Predict(ctx context.Context, target time.Time) (*prediction.Prediction, error)
}

// TrainTrigger runs one training cycle under the retrainer's
// single-flight guard. *retrainer.RetrainerController satisfies it.
type TrainTrigger interface {
	RunCycle(ctx context.Context) (*trainer.Result, error)
}

// ModelSource reports the active bundle for the health endpoint.
type ModelSource interface {
	Current() *ml.Bundle
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	predictor  Predictor
	trigger    TrainTrigger
	models     ModelSource
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, predictor Predictor, trigger TrainTrigger, models ModelSource, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:       ctx,
		wg:        wg,
		predictor: predictor,
		trigger:   trigger,
		models:    models,
		logger:    logger,
	}

	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", c.handlers.GetBanner).Methods(http.MethodGet)
	router.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/predict", c.handlers.PostPredict).Methods(http.MethodPost)
	router.HandleFunc("/train", c.handlers.PutTrain).Methods(http.MethodPut)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
