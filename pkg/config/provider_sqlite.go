package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
	config *ConfigData
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	storage, err := s.loadStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	trainer, err := s.loadTrainer()
	if err != nil {
		return nil, fmt.Errorf("failed to load trainer config: %w", err)
	}
	config.Trainer = *trainer

	controllers, err := s.loadControllers()
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}
	config.Controllers = controllers

	if err := finalize(config); err != nil {
		return nil, err
	}

	s.config = config
	return config, nil
}

// loadStorage returns the event store configuration from the database
func (s *SQLiteProvider) loadStorage() (*StorageData, error) {
	query := `
		SELECT connection_string
		FROM storage_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
		  AND backend_type = 'postgres'
	`

	storage := &StorageData{}

	var connectionString sql.NullString
	err := s.db.QueryRow(query).Scan(&connectionString)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage, nil
		}
		return nil, fmt.Errorf("failed to query storage config: %w", err)
	}

	if connectionString.Valid && connectionString.String != "" {
		storage.Postgres = &PostgresData{ConnectionString: connectionString.String}
	}

	return storage, nil
}

// loadTrainer returns the trainer configuration from the database
func (s *SQLiteProvider) loadTrainer() (*TrainerData, error) {
	query := `
		SELECT interval_seconds, model_path, feature_set, snapshot_bucket_hours, debug
		FROM trainer_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	trainer := &TrainerData{}

	var modelPath, featureSet sql.NullString
	var bucketHours, debug sql.NullInt64
	err := s.db.QueryRow(query).Scan(&trainer.IntervalSeconds, &modelPath, &featureSet, &bucketHours, &debug)
	if err != nil {
		if err == sql.ErrNoRows {
			return trainer, nil
		}
		return nil, fmt.Errorf("failed to query trainer config: %w", err)
	}

	if modelPath.Valid {
		trainer.ModelPath = modelPath.String
	}
	if featureSet.Valid {
		trainer.FeatureSet = featureSet.String
	}
	if bucketHours.Valid {
		trainer.SnapshotBucketHours = int(bucketHours.Int64)
	}
	if debug.Valid {
		trainer.Debug = debug.Int64 != 0
	}

	return trainer, nil
}

// loadControllers returns controller configurations from the database
func (s *SQLiteProvider) loadControllers() ([]ControllerData, error) {
	query := `
		SELECT type, rest_cert, rest_key, rest_port, rest_listen_addr
		FROM controller_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
		ORDER BY id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query controllers: %w", err)
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var controller ControllerData
		var cert, key, listenAddr sql.NullString
		var port sql.NullInt64

		err := rows.Scan(&controller.Type, &cert, &key, &port, &listenAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan controller row: %w", err)
		}

		if controller.Type == "rest" || controller.Type == "restserver" {
			rest := &RESTServerData{}
			if cert.Valid {
				rest.Cert = cert.String
			}
			if key.Valid {
				rest.Key = key.String
			}
			if port.Valid {
				rest.Port = int(port.Int64)
			}
			if listenAddr.Valid {
				rest.ListenAddr = listenAddr.String
			}
			controller.RESTServer = rest
		}

		controllers = append(controllers, controller)
	}

	return controllers, rows.Err()
}

// GetStorageConfig returns storage configuration
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	if s.config == nil {
		_, err := s.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &s.config.Storage, nil
}

// GetTrainerConfig returns trainer configuration
func (s *SQLiteProvider) GetTrainerConfig() (*TrainerData, error) {
	if s.config == nil {
		_, err := s.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &s.config.Trainer, nil
}

// GetControllers returns controller configurations
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	if s.config == nil {
		_, err := s.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return s.config.Controllers, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}
