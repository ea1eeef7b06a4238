package commands

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/db"
	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/ingestion"
	"github.com/teranos/DMS/logger"
)

// app holds the wired services shared by the commands
type app struct {
	cfg       *am.Config
	dbPath    string
	db        *sql.DB
	users     *auth.Service
	documents *document.Service
	processor *ingestion.FileProcessor
	runner    *ingestion.Runner
	registry  *prometheus.Registry
}

// loadConfig loads and validates the layered configuration
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openDatabase opens and migrates the database at dbPath, or the configured one when empty
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	database, err := db.OpenWithMigrations(dbPath, logger.ComponentLogger("db"))
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, dbPath, nil
}

// newApp wires every service over one database connection
func newApp(dbPath string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, dbPath, err := openDatabase(cfg, dbPath)
	if err != nil {
		return nil, err
	}

	jwt, err := auth.NewJWTManager(&cfg.Auth)
	if err != nil {
		database.Close()
		return nil, err
	}

	storage := document.NewFileStorage(cfg.Storage.UploadDir, cfg.MaxUploadBytes())
	documents := document.NewService(document.NewStore(database), storage, logger.ComponentLogger("documents"))
	processor := ingestion.NewFileProcessor(storage, cfg.Ingestion.ProcessDelay, logger.ComponentLogger("processor"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	runner := ingestion.NewRunner(documents, ingestion.NewSQLLogStore(database), processor,
		ingestion.WithLogger(logger.ComponentLogger("ingestion")),
		ingestion.WithMetrics(ingestion.NewMetrics(registry)))

	return &app{
		cfg:       cfg,
		dbPath:    dbPath,
		db:        database,
		users:     auth.NewService(auth.NewStore(database), jwt, logger.ComponentLogger("auth")),
		documents: documents,
		processor: processor,
		runner:    runner,
		registry:  registry,
	}, nil
}

// Close waits for background sweeps and closes the database
func (a *app) Close() error {
	a.runner.Wait()
	return a.db.Close()
}
