// Command worker runs the statement import pipeline: a pool of workers
// processing import jobs, the orphaned job sweeper and the metrics
// endpoint. It can also submit, process or reset a single job and exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	importservice "github.com/FACorreiaa/smart-finance-importer/internal/domain/import/service"
	"github.com/FACorreiaa/smart-finance-importer/pkg/config"
	"github.com/FACorreiaa/smart-finance-importer/pkg/logger"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	processJob := flag.Int64("process-job", 0, "process one import job synchronously and exit")
	resetJob := flag.Int64("reset-job", 0, "put an import job back in SENT and exit")
	submit := flag.String("submit", "", "upload a statement file as a new import job and exit")
	user := flag.String("user", "", "owner of the submitted file (uuid)")
	account := flag.Int64("account", 0, "default account id for the submitted file")
	card := flag.Int64("credit-card", 0, "default credit card id for the submitted file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := InitDependencies(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize dependencies", slog.Any("error", err))
		os.Exit(1)
	}

	switch {
	case *processJob != 0:
		err = deps.JobService.ProcessJob(ctx, *processJob)
	case *resetJob != 0:
		_, err = deps.JobService.ResetJob(ctx, *resetJob)
	case *submit != "":
		err = submitFile(ctx, deps, *submit, *user, *account, *card)
	default:
		err = run(ctx, deps)
	}

	if cleanupErr := deps.Cleanup(); cleanupErr != nil {
		log.Error("cleanup failed", slog.Any("error", cleanupErr))
	}
	if err != nil {
		log.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// run blocks until ctx is cancelled. Jobs already running are allowed to
// finish; queued ones stay SENT and are swept on the next start.
func run(ctx context.Context, deps *Dependencies) error {
	log := deps.Logger

	if err := deps.JobService.RefreshStatusGauges(ctx); err != nil {
		log.Warn("failed to read job counts", slog.Any("error", err))
	}

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	// jobs left SENT by a previous run
	deps.Scheduler.SweepOrphans(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Pool.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		select {
		case <-deps.Scheduler.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("scheduler did not stop in time")
		}
		return nil
	})
	if deps.Config.Observability.MetricsEnabled {
		g.Go(func() error {
			return metrics.Serve(gctx, deps.Config.Observability.MetricsPort, deps.Registry, log)
		})
	}

	log.Info("worker started, waiting for jobs")
	return g.Wait()
}

func submitFile(ctx context.Context, deps *Dependencies, path, user string, accountID, cardID int64) error {
	owner, err := uuid.Parse(user)
	if err != nil {
		return fmt.Errorf("invalid -user: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	req := importservice.SubmitRequest{
		Owner:    owner,
		FileName: filepath.Base(path),
		Content:  f,
	}
	if accountID != 0 {
		req.AccountID = &accountID
	}
	if cardID != 0 {
		req.CreditCardID = &cardID
	}

	job, err := deps.JobService.Submit(ctx, req)
	if err != nil {
		return err
	}
	deps.Logger.Info("import job submitted", "job_id", job.ID, "file_name", job.FileName)
	return nil
}
