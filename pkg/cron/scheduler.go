// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
)

// JobLister finds jobs waiting in a status.
type JobLister interface {
	ListJobsByStatus(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.ImportJob, error)
}

// Enqueuer schedules a job for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID int64) error
}

// GaugeRefresher republishes job status gauges.
type GaugeRefresher interface {
	RefreshStatusGauges(ctx context.Context) error
}

// SweepConfig controls the orphaned job sweep.
type SweepConfig struct {
	// Schedule is a cron spec, "@every 5m" style descriptors included.
	Schedule string
	// OrphanAfter is how long a job may sit in SENT before it is requeued.
	OrphanAfter time.Duration
	BatchSize   int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	jobs    JobLister
	queue   Enqueuer
	gauges  GaugeRefresher
	cfg     SweepConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a new job scheduler. gauges may be nil.
func NewScheduler(jobs JobLister, queue Enqueuer, gauges GaugeRefresher, cfg SweepConfig, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		queue:  queue,
		gauges: gauges,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics counts requeued jobs.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, s.sweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("sweep_schedule", s.cfg.Schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.SweepOrphans(ctx)
}

// SweepOrphans requeues jobs left in SENT for longer than OrphanAfter,
// such as uploads whose worker stopped before picking them up. It returns
// the number of jobs requeued.
func (s *Scheduler) SweepOrphans(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.OrphanAfter)

	jobs, err := s.jobs.ListJobsByStatus(ctx, model.JobStatusSent, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list orphaned import jobs", slog.Any("error", err))
		return 0
	}

	requeued := 0
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to requeue import job",
				slog.Int64("job_id", job.ID),
				slog.Any("error", err),
			)
			continue
		}
		s.metrics.OrphanRequeued()
		requeued++
	}

	if s.gauges != nil {
		if err := s.gauges.RefreshStatusGauges(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh job gauges", slog.Any("error", err))
		}
	}

	if len(jobs) > 0 {
		s.logger.InfoContext(ctx, "orphaned import jobs swept",
			slog.Int("found", len(jobs)),
			slog.Int("requeued", requeued),
		)
	}
	return requeued
}
