package main

import (
	"flag"
	"os"

	"force-cleanup/internal/cleanup"
	"force-cleanup/internal/config"
	"force-cleanup/internal/database"
	"force-cleanup/internal/exitcodes"
	"force-cleanup/internal/logging"
	"force-cleanup/internal/metrics"
)

func main() {
	// Without -config the built-in paths are used and nothing else is read
	configPath := flag.String("config", "", "Optional path to configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.New().Printf("[ERROR] Failed to load config %s: %v", *configPath, err)
			os.Exit(exitcodes.InvalidConfig)
		}
		cfg = loaded
	}

	logger := logging.NewWithConfig(cfg)
	logger.Printf("[INFO] force-cleanup starting target=%s trash=%s", cfg.TargetDir, cfg.TrashDir)

	// History is best effort, the run goes ahead without it
	var db *database.HistoryDB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			logger.Printf("[ERROR] Failed to open history database, continuing without it: %v", err)
			db = nil
		} else {
			defer func() {
				if err := db.Close(); err != nil {
					logger.Printf("[ERROR] Failed to close database: %v", err)
				}
			}()
		}
	}

	m := metrics.New()

	runner := cleanup.NewRunner(cfg, os.Stdout, logger, db)
	runner.SetMetrics(m)
	runner.Run()

	if cfg.Metrics.TextfilePath != "" {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Printf("[ERROR] %v", err)
		}
	}
}
