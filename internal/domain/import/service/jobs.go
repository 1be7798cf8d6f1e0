package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-importer/pkg/money"
	"github.com/FACorreiaa/smart-finance-importer/pkg/storage"
)

// SummaryErrorLimit is the number of errors a JobSummary shows.
const SummaryErrorLimit = 10

// DefaultMaxStoredErrors bounds the errors persisted on a job.
const DefaultMaxStoredErrors = 100

var (
	ErrEmptyFileName = errors.New("file name is required")
	ErrFileTooLarge  = errors.New("file exceeds the maximum upload size")
)

// Importer imports one resolved file.
type Importer interface {
	ImportTransactions(ctx context.Context, owner uuid.UUID, path, fileName string, job *model.ImportJob) (*ImportResult, error)
}

// Enqueuer schedules a job for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID int64) error
}

// SubmitRequest describes an upload.
type SubmitRequest struct {
	Owner        uuid.UUID
	FileName     string
	Content      io.Reader
	AccountID    *int64
	CreditCardID *int64
}

// JobSummary is the user-facing view of a job.
type JobSummary struct {
	ID            int64
	Status        model.JobStatus
	FileName      string
	HandlerType   string
	SuccessCount  int
	ErrorCount    int
	FailedReason  string
	Errors        []string
	HasMoreErrors bool
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// JobService drives import jobs through SENT, PROCESSING and a terminal
// status.
type JobService struct {
	jobs            repository.JobStore
	importer        Importer
	blobs           storage.BlobStore
	queue           Enqueuer
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	logger          *slog.Logger
	maxStoredErrors int
	maxFileSize     int64
	now             func() time.Time
}

// NewJobService creates a new job service
func NewJobService(jobs repository.JobStore, importer Importer, blobs storage.BlobStore, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:            jobs,
		importer:        importer,
		blobs:           blobs,
		tracer:          otel.Tracer(tracerName),
		logger:          logger,
		maxStoredErrors: DefaultMaxStoredErrors,
		now:             time.Now,
	}
}

// WithQueue sets where submitted and re-run jobs are scheduled.
func (s *JobService) WithQueue(q Enqueuer) *JobService {
	s.queue = q
	return s
}

// WithMetrics adds Prometheus instrumentation to the job service
func (s *JobService) WithMetrics(m *metrics.Metrics) *JobService {
	s.metrics = m
	return s
}

// WithMaxStoredErrors bounds the error list persisted on each job.
func (s *JobService) WithMaxStoredErrors(n int) *JobService {
	if n > 0 {
		s.maxStoredErrors = n
	}
	return s
}

// WithMaxFileSize rejects uploads larger than n bytes. Zero or less means no
// limit.
func (s *JobService) WithMaxFileSize(n int64) *JobService {
	if n > 0 {
		s.maxFileSize = n
	}
	return s
}

// Submit stores the upload, records a SENT job and schedules it.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*model.ImportJob, error) {
	if req.AccountID != nil && req.CreditCardID != nil {
		return nil, model.ErrAccountAndCreditCard
	}
	if req.FileName == "" {
		return nil, ErrEmptyFileName
	}
	if _, known := DetectFileKind(req.FileName); !known {
		s.logger.WarnContext(ctx, "unknown file extension on upload, it will be read as csv",
			"file_name", req.FileName,
		)
	}

	content := req.Content
	if s.maxFileSize > 0 {
		content = &sizeLimitReader{r: content, remaining: s.maxFileSize}
	}
	key, err := s.blobs.Save(ctx, content, req.FileName, req.Owner)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxFileSize)
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := &model.ImportJob{
		UserID:       req.Owner,
		AccountID:    req.AccountID,
		CreditCardID: req.CreditCardID,
		Status:       model.JobStatusSent,
		FileName:     req.FileName,
		FilePath:     key,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to remove orphaned upload", "key", key, slog.Any("error", delErr))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "import job created",
		"job_id", job.ID,
		"user_id", job.UserID,
		"file_name", job.FileName,
	)

	if err := s.enqueue(ctx, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// ProcessJob imports the job's file and records the outcome. PROCESSING is
// persisted before any parsing starts. Business failures end in FAILED with
// a nil error; infrastructure failures also mark the job FAILED and are
// returned. A panic marks the job FAILED and is re-raised. A job already in
// a terminal status is processed again and its results overwritten.
func (s *JobService) ProcessJob(ctx context.Context, jobID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "JobService.ProcessJob",
		trace.WithAttributes(attribute.Int64("import.job_id", jobID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load import job %d: %w", jobID, err)
	}

	logger := s.logger.With("job_id", job.ID, "user_id", job.UserID)
	if job.Status.Terminal() {
		logger.InfoContext(ctx, "re-processing finished job", "previous_status", job.Status)
	}

	job.StartProcessing()
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark import job %d as processing: %w", jobID, err)
	}
	logger.InfoContext(ctx, "processing import job", "file_name", job.FileName)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		reason := fmt.Sprint(r)
		logger.ErrorContext(ctx, "import job panicked", "panic", reason)
		job.Fail(reason, s.now())
		if updErr := s.jobs.UpdateJob(context.WithoutCancel(ctx), job); updErr != nil {
			logger.ErrorContext(ctx, "failed to record import failure", slog.Any("error", updErr))
		}
		s.metrics.JobFinished(string(job.Status))
		span.SetStatus(codes.Error, reason)
		panic(r)
	}()

	result, err := s.runImport(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "import job failed", slog.Any("error", err))
		job.Fail(err.Error(), s.now())
		if updErr := s.jobs.UpdateJob(context.WithoutCancel(ctx), job); updErr != nil {
			logger.ErrorContext(ctx, "failed to record import failure", slog.Any("error", updErr))
		}
		s.metrics.JobFinished(string(job.Status))
		return err
	}

	s.applyResult(job, result)
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save import job %d: %w", jobID, err)
	}
	s.metrics.JobFinished(string(job.Status))
	span.SetAttributes(attribute.String("import.status", string(job.Status)))

	logger.InfoContext(ctx, "import job finished",
		"status", job.Status,
		"handler", job.HandlerType,
		"success_count", job.SuccessCount,
		"error_count", job.ErrorCount,
		"total_income", money.FormatBRL(result.TotalIncome),
		"total_expense", money.FormatBRL(result.TotalExpense),
	)
	return nil
}

func (s *JobService) runImport(ctx context.Context, job *model.ImportJob) (*ImportResult, error) {
	path, release, err := s.blobs.Resolve(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer release()

	return s.importer.ImportTransactions(ctx, job.UserID, path, job.FileName, job)
}

func (s *JobService) applyResult(job *model.ImportJob, result *ImportResult) {
	now := s.now()

	job.HandlerType = result.HandlerType
	job.SuccessCount = result.SuccessCount
	job.ErrorCount = result.ErrorCount
	job.Errors = truncate(result.Errors, s.maxStoredErrors)

	switch {
	case result.ErrorCount > 0:
		job.Fail(fmt.Sprintf("Import completed with %d errors. See errors list for details.", result.ErrorCount), now)
	case result.SuccessCount == 0:
		job.Fail("No transactions were imported", now)
	default:
		job.Status = model.JobStatusImported
		job.FailedReason = nil
		job.ProcessedAt = &now
	}
}

// ResetJob puts a job back in SENT, whatever its status, so it can run again.
func (s *JobService) ResetJob(ctx context.Context, jobID int64) (*model.ImportJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import job %d: %w", jobID, err)
	}

	previous := job.Status
	job.Reset()
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to reset import job %d: %w", jobID, err)
	}

	s.logger.InfoContext(ctx, "import job reset", "job_id", jobID, "previous_status", previous)
	return job, nil
}

// Rerun resets the job and schedules it again.
func (s *JobService) Rerun(ctx context.Context, jobID int64) (*model.ImportJob, error) {
	job, err := s.ResetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// Summary returns the job with at most SummaryErrorLimit errors.
func (s *JobService) Summary(ctx context.Context, jobID int64) (*JobSummary, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import job %d: %w", jobID, err)
	}

	summary := &JobSummary{
		ID:            job.ID,
		Status:        job.Status,
		FileName:      job.FileName,
		HandlerType:   job.HandlerType,
		SuccessCount:  job.SuccessCount,
		ErrorCount:    job.ErrorCount,
		Errors:        truncate(job.Errors, SummaryErrorLimit),
		HasMoreErrors: job.ErrorCount > SummaryErrorLimit || len(job.Errors) > SummaryErrorLimit,
		CreatedAt:     job.CreatedAt,
		ProcessedAt:   job.ProcessedAt,
	}
	if job.FailedReason != nil {
		summary.FailedReason = *job.FailedReason
	}
	return summary, nil
}

// RefreshStatusGauges publishes the number of SENT and PROCESSING jobs.
func (s *JobService) RefreshStatusGauges(ctx context.Context) error {
	for _, status := range []model.JobStatus{model.JobStatusSent, model.JobStatusProcessing} {
		count, err := s.jobs.CountJobsByStatus(ctx, status)
		if err != nil {
			return err
		}
		s.metrics.SetJobsByStatus(string(status), count)
	}
	return nil
}

func (s *JobService) enqueue(ctx context.Context, jobID int64) error {
	if s.queue == nil {
		s.logger.WarnContext(ctx, "no queue configured, job left in SENT", "job_id", jobID)
		return nil
	}
	if err := s.queue.Enqueue(ctx, jobID); err != nil {
		return fmt.Errorf("failed to enqueue import job %d: %w", jobID, err)
	}
	return nil
}

func truncate(errs []string, limit int) []string {
	if len(errs) <= limit {
		return append([]string(nil), errs...)
	}
	return append([]string(nil), errs[:limit]...)
}

// sizeLimitReader fails with ErrFileTooLarge once more than remaining bytes
// have been read.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
