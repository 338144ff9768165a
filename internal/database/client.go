// Package database provides read access to the occupancy event store and
// persistence for training run history.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/pkg/config"
	"go.uber.org/zap"
)

// ErrNoEvents is returned when a query finds no rows to work with.
var ErrNoEvents = errors.New("no occupancy events in store")

// Client holds the connection to the Postgres event store
type Client struct {
	config *config.StorageData
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c *config.StorageData, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: logger,
	}
}

// Connect connects to the Postgres event store
func (c *Client) Connect() error {
	var err error

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger: dbLogger,
	}

	log.Info("connecting to event store...")
	c.DB, err = gorm.Open(postgres.Open(c.config.Postgres.ConnectionString), gormConfig)
	if err != nil {
		log.Warn("warning: unable to create an event store connection:", err)
		return err
	}
	log.Info("event store connection successful")

	return nil
}

// CreateTables ensures the training run history table exists. The occupancy
// events table belongs to the ingestion service and is never migrated here.
func (c *Client) CreateTables() error {
	if err := c.DB.AutoMigrate(&TrainingRun{}); err != nil {
		return fmt.Errorf("error creating training_runs table: %w", err)
	}
	return nil
}

// FetchEventsAscending retrieves all occupancy events ordered by timestamp.
// Returns ErrNoEvents when the store is reachable but empty.
func (c *Client) FetchEventsAscending(ctx context.Context) ([]OccupancyEvent, error) {
	var events []OccupancyEvent

	if err := c.DB.WithContext(ctx).Order("timestamp ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("error querying occupancy events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	return events, nil
}

// LatestReading returns the most recent occupancy event, used for seeding
// lag features at inference time. Returns ErrNoEvents when the store is
// empty.
func (c *Client) LatestReading(ctx context.Context) (*OccupancyEvent, error) {
	var event OccupancyEvent

	err := c.DB.WithContext(ctx).Order("timestamp DESC").First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEvents
		}
		return nil, fmt.Errorf("error querying latest occupancy event: %w", err)
	}

	return &event, nil
}

// RecordTrainingRun persists the outcome of a training cycle
func (c *Client) RecordTrainingRun(ctx context.Context, run *TrainingRun) error {
	if err := c.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("error recording training run %s: %w", run.RunID, err)
	}
	return nil
}
