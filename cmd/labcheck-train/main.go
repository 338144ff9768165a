// Command labcheck-train runs a single training cycle and writes the
// resulting model bundle to the configured model path. It exists for
// cron-style scheduling and for rebuilding a bundle out of band; the
// daemon picks the artifact up at its next restart.
//
// Exit status: 0 when a bundle was trained, 2 when training was skipped
// for lack of data, 1 on any failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/labcheck/labcheck-predict/internal/constants"
	"github.com/labcheck/labcheck-predict/internal/database"
	"github.com/labcheck/labcheck-predict/internal/log"
	"github.com/labcheck/labcheck-predict/internal/trainer"
	"github.com/labcheck/labcheck-predict/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source (YAML or SQLite)")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	debug := flag.Bool("debug", false, "Turn on debugging output, including per-round training diagnostics")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("labcheck-train %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *debug {
		cfgData.Trainer.Debug = true
	}

	os.Exit(run(cfgData))
}

func run(cfgData *config.ConfigData) int {
	db := database.NewClient(&cfgData.Storage, log.GetSugaredLogger())
	if err := db.Connect(); err != nil {
		log.Errorf("could not connect to the event store: %v", err)
		return 1
	}
	if err := db.CreateTables(); err != nil {
		log.Errorf("could not prepare training run table: %v", err)
		return 1
	}

	tr, err := trainer.New(&cfgData.Trainer, db, db)
	if err != nil {
		log.Errorf("could not build trainer: %v", err)
		return 1
	}

	result, err := tr.Retrain(context.Background())
	if err != nil {
		if errors.Is(err, trainer.ErrDataUnavailable) {
			log.Info("training skipped: not enough occupancy data")
			return 2
		}
		log.Errorf("training failed: %v", err)
		return 1
	}

	if err := result.Bundle.Save(cfgData.Trainer.ModelPath); err != nil {
		log.Errorf("could not write model bundle to %s: %v", cfgData.Trainer.ModelPath, err)
		return 1
	}

	log.Infof("trained model %s: %d/%d rows used, held-out MAE %.4f, bundle written to %s",
		result.RunID, result.RowsUsed, result.RowsLoaded,
		result.Metrics.RegressorMAE, cfgData.Trainer.ModelPath)
	return 0
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	return provider.LoadConfig()
}
