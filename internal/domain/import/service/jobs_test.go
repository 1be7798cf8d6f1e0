package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-importer/pkg/storage"
)

type stubImporter struct {
	result    *ImportResult
	err       error
	panicWith any

	mu       sync.Mutex
	calls    int
	lastJob  model.ImportJob
	lastPath string
}

func (s *stubImporter) ImportTransactions(_ context.Context, _ uuid.UUID, path, _ string, job *model.ImportJob) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastJob = *job
	s.lastPath = path
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.result, s.err
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, id int64) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

// statusSpy records every status written through UpdateJob.
type statusSpy struct {
	repository.JobStore
	statuses []model.JobStatus
	failOn   model.JobStatus
}

func (s *statusSpy) UpdateJob(ctx context.Context, job *model.ImportJob) error {
	s.statuses = append(s.statuses, job.Status)
	if s.failOn != "" && job.Status == s.failOn {
		return errors.New("connection reset")
	}
	return s.JobStore.UpdateJob(ctx, job)
}

type jobFixture struct {
	repo     *repository.MemoryImportRepository
	blobs    *storage.LocalStorage
	importer *stubImporter
	queue    *recordingQueue
	svc      *JobService
	owner    uuid.UUID
	now      time.Time
}

func newJobFixture(t *testing.T, result *ImportResult, importErr error) *jobFixture {
	t.Helper()
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &jobFixture{
		repo:     repository.NewMemoryImportRepository(),
		blobs:    blobs,
		importer: &stubImporter{result: result, err: importErr},
		queue:    &recordingQueue{},
		owner:    uuid.New(),
		now:      time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewJobService(f.repo, f.importer, blobs, testLogger).WithQueue(f.queue)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *jobFixture) submit(t *testing.T) *model.ImportJob {
	t.Helper()
	job, err := f.svc.Submit(context.Background(), SubmitRequest{
		Owner:    f.owner,
		FileName: "extrato.csv",
		Content:  strings.NewReader("Data Lançamento;Descrição;Valor;Saldo\n"),
	})
	require.NoError(t, err)
	return job
}

func errorList(n int) []string {
	errs := make([]string, n)
	for i := range errs {
		errs[i] = fmt.Sprintf("transaction %d: invalid", i+1)
	}
	return errs
}

func TestSubmit(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	account := f.repo.AddAccount(f.owner, "Checking")

	job, err := f.svc.Submit(context.Background(), SubmitRequest{
		Owner:     f.owner,
		FileName:  "extrato.csv",
		Content:   strings.NewReader("content"),
		AccountID: &account.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusSent, job.Status)
	assert.NotZero(t, job.ID)
	assert.Equal(t, []int64{job.ID}, f.queue.ids)

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "extrato.csv", stored.FileName)
	require.NotNil(t, stored.AccountID)
	assert.Equal(t, account.ID, *stored.AccountID)

	path, release, err := f.blobs.Resolve(context.Background(), stored.FilePath)
	require.NoError(t, err)
	defer release()
	assert.FileExists(t, path)
}

func TestSubmitRejectsAccountAndCreditCard(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	one, two := int64(1), int64(2)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		Owner:        f.owner,
		FileName:     "extrato.csv",
		Content:      strings.NewReader("x"),
		AccountID:    &one,
		CreditCardID: &two,
	})
	assert.ErrorIs(t, err, model.ErrAccountAndCreditCard)
	assert.Empty(t, f.queue.ids)

	_, err = f.svc.Submit(context.Background(), SubmitRequest{Owner: f.owner, Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrEmptyFileName)
}

func TestSubmitRejectsOversizedUpload(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	f.svc.WithMaxFileSize(8)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{Owner: f.owner, FileName: "big.csv", Content: strings.NewReader("0123456789")})
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "8 bytes")
	assert.Empty(t, f.queue.ids)

	sent, err := f.repo.CountJobsByStatus(ctx, model.JobStatusSent)
	require.NoError(t, err)
	assert.Zero(t, sent, "no job is recorded for a rejected upload")

	job, err := f.svc.Submit(ctx, SubmitRequest{Owner: f.owner, FileName: "fits.csv", Content: strings.NewReader("01234567")})
	require.NoError(t, err, "a file of exactly the limit is accepted")

	path, release, err := f.blobs.Resolve(ctx, job.FilePath)
	require.NoError(t, err)
	defer release()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "01234567", string(content))
}

func TestSubmitEnqueueFailure(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	f.queue.err = errors.New("queue full")

	job, err := f.svc.Submit(context.Background(), SubmitRequest{Owner: f.owner, FileName: "a.csv", Content: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	require.NotNil(t, job, "the job is recorded even when scheduling fails")

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSent, stored.Status)
}

func TestProcessJob_Imported(t *testing.T) {
	f := newJobFixture(t, &ImportResult{SuccessCount: 2, HandlerType: "InterStatementCSVHandler"}, nil)
	job := f.submit(t)

	spy := &statusSpy{JobStore: f.repo}
	f.svc.jobs = spy

	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusImported, stored.Status)
	assert.Equal(t, "InterStatementCSVHandler", stored.HandlerType)
	assert.Equal(t, 2, stored.SuccessCount)
	assert.Zero(t, stored.ErrorCount)
	assert.Nil(t, stored.FailedReason)
	require.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, f.now, *stored.ProcessedAt)

	assert.Equal(t, []model.JobStatus{model.JobStatusProcessing, model.JobStatusImported}, spy.statuses)

	assert.Equal(t, 1, f.importer.calls)
	assert.Equal(t, "extrato.csv", f.importer.lastJob.FileName)
	assert.FileExists(t, f.importer.lastPath)
}

func TestProcessJob_RowErrorsFailTheJob(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 3, Errors: errorList(3), HandlerType: "GenericCSVHandler"}, nil)
	job := f.submit(t)

	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedReason)
	assert.Equal(t, "Import completed with 3 errors. See errors list for details.", *stored.FailedReason)
	assert.Equal(t, errorList(3), stored.Errors)
	assert.Equal(t, 3, stored.ErrorCount)
	require.NotNil(t, stored.ProcessedAt)
}

func TestProcessJob_NothingImported(t *testing.T) {
	f := newJobFixture(t, &ImportResult{HandlerType: "GenericCSVHandler", SkippedRows: 4}, nil)
	job := f.submit(t)

	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedReason)
	assert.Equal(t, "No transactions were imported", *stored.FailedReason)
}

func TestProcessJob_ImportErrorIsReturned(t *testing.T) {
	f := newJobFixture(t, nil, errors.New("no handler found for file: xlsx file"))
	job := f.submit(t)

	err := f.svc.ProcessJob(context.Background(), job.ID)
	require.Error(t, err)

	stored, getErr := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedReason)
	assert.Contains(t, *stored.FailedReason, "no handler found")
}

func TestProcessJob_MissingUpload(t *testing.T) {
	f := newJobFixture(t, &ImportResult{SuccessCount: 1}, nil)
	job := f.submit(t)
	require.NoError(t, f.blobs.Delete(context.Background(), job.FilePath))

	err := f.svc.ProcessJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.importer.calls)

	stored, getErr := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
}

func TestProcessJob_ProcessingNotPersisted(t *testing.T) {
	f := newJobFixture(t, &ImportResult{SuccessCount: 1}, nil)
	job := f.submit(t)
	f.svc.jobs = &statusSpy{JobStore: f.repo, failOn: model.JobStatusProcessing}

	err := f.svc.ProcessJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.Zero(t, f.importer.calls, "nothing is parsed before PROCESSING is recorded")
}

func TestProcessJob_UnknownJob(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	err := f.svc.ProcessJob(context.Background(), 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessJob_StoredErrorsAreBounded(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 30, Errors: errorList(30)}, nil)
	f.svc.WithMaxStoredErrors(20)
	job := f.submit(t)

	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Errors, 20)
	assert.Equal(t, 30, stored.ErrorCount)
}

func TestProcessJob_TerminalJobRunsAgain(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 1, Errors: errorList(1)}, nil)
	job := f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	f.importer.result = &ImportResult{SuccessCount: 5}
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusImported, stored.Status)
	assert.Empty(t, stored.Errors)
	assert.Nil(t, stored.FailedReason)
	assert.Equal(t, 2, f.importer.calls)
}

func TestProcessJob_PanicFailsTheJob(t *testing.T) {
	f := newJobFixture(t, nil, nil)
	f.importer.panicWith = "runtime error: index out of range [3] with length 3"
	job := f.submit(t)

	spy := &statusSpy{JobStore: f.repo}
	f.svc.jobs = spy

	assert.PanicsWithValue(t, f.importer.panicWith, func() {
		_ = f.svc.ProcessJob(context.Background(), job.ID)
	}, "the panic is re-raised once the job is recorded")

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedReason)
	assert.Equal(t, "runtime error: index out of range [3] with length 3", *stored.FailedReason)
	require.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, f.now, *stored.ProcessedAt)
	assert.Equal(t, []model.JobStatus{model.JobStatusProcessing, model.JobStatusFailed}, spy.statuses)
}

func TestProcessJob_FailedRerunClearsPreviousCounts(t *testing.T) {
	f := newJobFixture(t, &ImportResult{SuccessCount: 4, ErrorCount: 1, Errors: errorList(1), HandlerType: "GenericCSVHandler"}, nil)
	job := f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	f.importer.err = errors.New("connection refused")
	require.Error(t, f.svc.ProcessJob(context.Background(), job.ID))

	stored, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedReason)
	assert.Equal(t, "connection refused", *stored.FailedReason)
	assert.Empty(t, stored.HandlerType)
	assert.Zero(t, stored.SuccessCount)
	assert.Zero(t, stored.ErrorCount)
	assert.Empty(t, stored.Errors)
}

func TestResetAndRerun(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 1, Errors: errorList(1)}, nil)
	job := f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	reset, err := f.svc.ResetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSent, reset.Status)
	assert.Nil(t, reset.FailedReason)
	assert.Len(t, f.queue.ids, 1, "reset does not schedule")

	rerun, err := f.svc.Rerun(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSent, rerun.Status)
	assert.Equal(t, []int64{job.ID, job.ID}, f.queue.ids)

	_, err = f.svc.ResetJob(context.Background(), 12345)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSummary(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 15, Errors: errorList(15), HandlerType: "GenericJSONHandler"}, nil)
	job := f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	summary, err := f.svc.Summary(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusFailed, summary.Status)
	assert.Equal(t, "GenericJSONHandler", summary.HandlerType)
	assert.Equal(t, errorList(SummaryErrorLimit), summary.Errors)
	assert.True(t, summary.HasMoreErrors)
	assert.Equal(t, "Import completed with 15 errors. See errors list for details.", summary.FailedReason)
	assert.Equal(t, 15, summary.ErrorCount)
}

func TestSummaryWithFewErrors(t *testing.T) {
	f := newJobFixture(t, &ImportResult{ErrorCount: 2, Errors: errorList(2)}, nil)
	job := f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), job.ID))

	summary, err := f.svc.Summary(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, summary.Errors, 2)
	assert.False(t, summary.HasMoreErrors)
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	f := newJobFixture(t, &ImportResult{SuccessCount: 1}, nil)
	f.svc.WithMetrics(m)

	first := f.submit(t)
	f.submit(t)
	require.NoError(t, f.svc.ProcessJob(context.Background(), first.ID))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsProcessed.WithLabelValues(string(model.JobStatusImported))))

	require.NoError(t, f.svc.RefreshStatusGauges(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsByStatus.WithLabelValues(string(model.JobStatusSent))))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.JobsByStatus.WithLabelValues(string(model.JobStatusProcessing))))
}
