package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/format"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/processor"
	importrepo "github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/resolver"
	importservice "github.com/FACorreiaa/smart-finance-importer/internal/domain/import/service"
	"github.com/FACorreiaa/smart-finance-importer/internal/worker"
	"github.com/FACorreiaa/smart-finance-importer/pkg/config"
	"github.com/FACorreiaa/smart-finance-importer/pkg/cron"
	"github.com/FACorreiaa/smart-finance-importer/pkg/db"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-importer/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	ImportRepo  *importrepo.PostgresImportRepository
	FileStorage storage.BlobStore

	ImportService *importservice.ImportService
	JobService    *importservice.JobService
	Pool          *worker.Pool
	Scheduler     *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initMetrics(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	dbCfg := d.Config.Database
	database, err := db.New(db.Config{
		DSN:             dbCfg.DSN(),
		MaxConns:        int32(dbCfg.MaxConns),
		MinConns:        int32(dbCfg.MinConns),
		MaxConnLifetime: dbCfg.MaxConnLifetime,
		MaxConnIdleTime: dbCfg.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if dbCfg.RunMigrations {
		if err := d.DB.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)

	d.Logger.Info("database connected")
	return nil
}

func (d *Dependencies) initMetrics() error {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(d.Registry)
	if err != nil {
		return err
	}
	d.Metrics = m
	return nil
}

// initServices wires the import pipeline, the worker pool and the sweeper
func (d *Dependencies) initServices(ctx context.Context) error {
	fileStorage, err := storage.New(ctx, storage.Config{
		Type:      storage.StorageType(d.Config.Storage.Backend),
		LocalPath: d.Config.Storage.LocalDir,
		GCSBucket: d.Config.Storage.GCSBucket,
		GCSPrefix: d.Config.Storage.GCSPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	proc := processor.New(resolver.New(d.ImportRepo, d.Logger), d.ImportRepo, d.Logger)
	d.ImportService = importservice.NewImportService(format.DefaultFactories(d.Logger), proc, d.Logger).
		WithMetrics(d.Metrics)

	d.JobService = importservice.NewJobService(d.ImportRepo, d.ImportService, d.FileStorage, d.Logger).
		WithMetrics(d.Metrics).
		WithMaxStoredErrors(d.Config.Import.MaxStoredErrors).
		WithMaxFileSize(d.Config.Import.MaxFileSize)

	w := d.Config.Worker
	d.Pool = worker.New(d.JobService, worker.Config{
		Concurrency:   w.Concurrency,
		JobsPerSecond: w.JobsPerSecond,
		Burst:         w.Burst,
		QueueSize:     w.QueueSize,
		JobTimeout:    w.JobTimeout,
	}, d.Logger).WithMetrics(d.Metrics)
	d.JobService.WithQueue(d.Pool)

	d.Scheduler = cron.NewScheduler(d.ImportRepo, d.Pool, d.JobService, cron.SweepConfig{
		Schedule:    w.SweepSchedule,
		OrphanAfter: w.OrphanAfter,
		BatchSize:   w.SweepBatchSize,
	}, d.Logger).WithMetrics(d.Metrics)

	d.Logger.Info("services initialized",
		"storage", d.Config.Storage.Backend,
		"concurrency", w.Concurrency,
	)
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() error {
	var err error
	if closer, ok := d.FileStorage.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if d.DB != nil {
		err = multierr.Append(err, d.DB.Close())
	}
	d.Logger.Info("cleanup completed")
	return err
}
