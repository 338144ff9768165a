// Command labcheck-config-convert converts a YAML configuration file
// into the SQLite configuration database the daemon can run from with
// -config-backend sqlite.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/labcheck/labcheck-predict/pkg/config"
)

var schema = []string{
	`CREATE TABLE configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE storage_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_id INTEGER NOT NULL REFERENCES configs(id),
		backend_type TEXT NOT NULL,
		connection_string TEXT
	)`,
	`CREATE TABLE trainer_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_id INTEGER NOT NULL REFERENCES configs(id),
		interval_seconds INTEGER NOT NULL,
		model_path TEXT,
		feature_set TEXT,
		snapshot_bucket_hours INTEGER,
		debug INTEGER
	)`,
	`CREATE TABLE controller_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_id INTEGER NOT NULL REFERENCES configs(id),
		type TEXT NOT NULL,
		rest_cert TEXT,
		rest_key TEXT,
		rest_port INTEGER,
		rest_listen_addr TEXT
	)`,
}

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file to create (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil {
		if !*force {
			fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\nUse -force to overwrite\n", *sqliteFile)
			os.Exit(1)
		}
		os.Remove(*sqliteFile)
	}

	yamlPath, _ := filepath.Abs(*yamlFile)
	cfgData, err := config.NewYAMLProvider(yamlPath).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load YAML configuration: %v\n", err)
		os.Exit(1)
	}

	if err := writeDatabase(*sqliteFile, cfgData); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Remove(*sqliteFile)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", *yamlFile, *sqliteFile)
	fmt.Printf("Run the daemon with: labcheck-predict -config %s -config-backend sqlite\n", *sqliteFile)
}

func writeDatabase(path string, cfgData *config.ConfigData) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("could not create SQLite database: %w", err)
	}
	defer db.Close()

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO configs (name) VALUES ('default')`)
	if err != nil {
		return fmt.Errorf("could not insert config row: %w", err)
	}
	configID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if cfgData.Storage.Postgres != nil {
		_, err = tx.Exec(
			`INSERT INTO storage_configs (config_id, backend_type, connection_string) VALUES (?, 'postgres', ?)`,
			configID, cfgData.Storage.Postgres.ConnectionString)
		if err != nil {
			return fmt.Errorf("could not insert storage config: %w", err)
		}
	}

	debug := 0
	if cfgData.Trainer.Debug {
		debug = 1
	}
	_, err = tx.Exec(
		`INSERT INTO trainer_configs (config_id, interval_seconds, model_path, feature_set, snapshot_bucket_hours, debug)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		configID, cfgData.Trainer.IntervalSeconds, cfgData.Trainer.ModelPath,
		cfgData.Trainer.FeatureSet, cfgData.Trainer.SnapshotBucketHours, debug)
	if err != nil {
		return fmt.Errorf("could not insert trainer config: %w", err)
	}

	for _, con := range cfgData.Controllers {
		var cert, key, listenAddr string
		var port int
		if con.RESTServer != nil {
			cert = con.RESTServer.Cert
			key = con.RESTServer.Key
			port = con.RESTServer.Port
			listenAddr = con.RESTServer.ListenAddr
		}
		_, err = tx.Exec(
			`INSERT INTO controller_configs (config_id, type, rest_cert, rest_key, rest_port, rest_listen_addr)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			configID, con.Type, cert, key, port, listenAddr)
		if err != nil {
			return fmt.Errorf("could not insert controller config: %w", err)
		}
	}

	return tx.Commit()
}
