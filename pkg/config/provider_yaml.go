package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Storage     StorageYAML      `yaml:"storage,omitempty"`
		Trainer     TrainerYAML      `yaml:"trainer"`
		Controllers []ControllerYAML `yaml:"controllers,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Controllers: make([]ControllerData, len(yamlConfig.Controllers)),
	}

	if yamlConfig.Storage.Postgres != nil {
		config.Storage.Postgres = &PostgresData{
			ConnectionString: yamlConfig.Storage.Postgres.ConnectionString,
		}
	}

	config.Trainer = TrainerData{
		IntervalSeconds:     yamlConfig.Trainer.IntervalSeconds,
		ModelPath:           yamlConfig.Trainer.ModelPath,
		FeatureSet:          yamlConfig.Trainer.FeatureSet,
		SnapshotBucketHours: yamlConfig.Trainer.SnapshotBucketHours,
		Debug:               yamlConfig.Trainer.Debug,
	}

	for i, controller := range yamlConfig.Controllers {
		config.Controllers[i] = ControllerData{
			Type: controller.Type,
		}

		if controller.RESTServer != nil {
			config.Controllers[i].RESTServer = &RESTServerData{
				Cert:       controller.RESTServer.Cert,
				Key:        controller.RESTServer.Key,
				Port:       controller.RESTServer.Port,
				ListenAddr: controller.RESTServer.ListenAddr,
			}
		}
	}

	if err := finalize(config); err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// GetTrainerConfig returns trainer configuration
func (y *YAMLProvider) GetTrainerConfig() (*TrainerData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Trainer, nil
}

// GetControllers returns controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return y.config.Controllers, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags for parsing the config format
type StorageYAML struct {
	Postgres *PostgresYAML `yaml:"postgres,omitempty"`
}

type PostgresYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type TrainerYAML struct {
	IntervalSeconds     int    `yaml:"interval-seconds"`
	ModelPath           string `yaml:"model-path,omitempty"`
	FeatureSet          string `yaml:"feature-set,omitempty"`
	SnapshotBucketHours int    `yaml:"snapshot-bucket-hours,omitempty"`
	Debug               bool   `yaml:"debug,omitempty"`
}

type ControllerYAML struct {
	Type       string          `yaml:"type,omitempty"`
	RESTServer *RESTServerYAML `yaml:"rest,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
}
