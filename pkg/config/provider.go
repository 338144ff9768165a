// Package config provides configuration loading for the prediction service
// from YAML files or SQLite databases.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrInvalid indicates a missing or malformed required setting. The process
// must not start when a load returns an error wrapping it.
var ErrInvalid = errors.New("invalid configuration")

// DefaultModelPath is where the trained model bundle is persisted when the
// config does not name a location.
const DefaultModelPath = "models/occupancy.bundle"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStorageConfig() (*StorageData, error)
	GetTrainerConfig() (*TrainerData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Storage     StorageData      `json:"storage"`
	Trainer     TrainerData      `json:"trainer"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// StorageData holds the configuration for the event store backend
type StorageData struct {
	Postgres *PostgresData `json:"postgres,omitempty"`
}

// PostgresData holds the connection settings for the Postgres event store
type PostgresData struct {
	ConnectionString string `json:"connection_string"`
}

// TrainerData holds the settings shared by the periodic retrainer and the
// one-shot training command
type TrainerData struct {
	// Retraining interval in seconds, measured from the end of the
	// previous cycle
	IntervalSeconds int `json:"interval_seconds"`
	// Path where the model bundle artifact is written and loaded from
	ModelPath string `json:"model_path,omitempty"`
	// Active feature set: "calendar_lag" or "cyclical"
	FeatureSet string `json:"feature_set,omitempty"`
	// When > 0, raw events are aggregated into buckets of this many hours
	// before feature extraction
	SnapshotBucketHours int `json:"snapshot_bucket_hours,omitempty"`
	// Extra diagnostic output from the trainer only; no effect on
	// predictions
	Debug bool `json:"debug,omitempty"`
}

// ControllerData holds the configuration for various controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
}

// RESTServerData holds the REST server controller settings
type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

// resolveEnv applies environment overrides. These exist for container
// deployments where the compose file supplies settings directly.
func resolveEnv(c *ConfigData) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresData{}
		}
		c.Storage.Postgres.ConnectionString = v
	}
	if v := os.Getenv("TRAINING_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TRAINING_INTERVAL %q is not an integer", ErrInvalid, v)
		}
		c.Trainer.IntervalSeconds = n
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Trainer.ModelPath = v
	}
	if v := os.Getenv("TRAINER_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: TRAINER_DEBUG %q is not a boolean", ErrInvalid, v)
		}
		c.Trainer.Debug = debug
	}
	return nil
}

// finalize applies env overrides, defaults, and validation to a freshly
// loaded configuration. It runs before any store connection is attempted.
func finalize(c *ConfigData) error {
	if err := resolveEnv(c); err != nil {
		return err
	}

	if c.Storage.Postgres == nil || c.Storage.Postgres.ConnectionString == "" {
		return fmt.Errorf("%w: event store connection string is required (storage.postgres.connection-string or DATABASE_URL)", ErrInvalid)
	}
	if c.Trainer.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: training interval must be a positive number of seconds, got %d", ErrInvalid, c.Trainer.IntervalSeconds)
	}

	if c.Trainer.ModelPath == "" {
		c.Trainer.ModelPath = DefaultModelPath
	}
	switch c.Trainer.FeatureSet {
	case "":
		c.Trainer.FeatureSet = "calendar_lag"
	case "calendar_lag", "cyclical":
	default:
		return fmt.Errorf("%w: unknown feature set %q", ErrInvalid, c.Trainer.FeatureSet)
	}
	if c.Trainer.SnapshotBucketHours < 0 {
		return fmt.Errorf("%w: snapshot bucket hours must not be negative", ErrInvalid)
	}

	return nil
}
