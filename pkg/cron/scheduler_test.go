package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
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
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingQueue struct {
	ids    []int64
	failID int64
}

func (q *recordingQueue) Enqueue(_ context.Context, id int64) error {
	if id == q.failID {
		return errors.New("queue full")
	}
	q.ids = append(q.ids, id)
	return nil
}

type countingGauges struct{ calls int }

func (g *countingGauges) RefreshStatusGauges(context.Context) error {
	g.calls++
	return nil
}

type brokenLister struct{}

func (brokenLister) ListJobsByStatus(context.Context, model.JobStatus, time.Time, int) ([]*model.ImportJob, error) {
	return nil, errors.New("database unavailable")
}

func seedJobs(t *testing.T, repo *repository.MemoryImportRepository, statuses ...model.JobStatus) []int64 {
	t.Helper()
	var ids []int64
	for _, status := range statuses {
		job := &model.ImportJob{UserID: uuid.New(), FileName: "a.csv", FilePath: "k", Status: status}
		require.NoError(t, repo.CreateJob(context.Background(), job))
		ids = append(ids, job.ID)
	}
	return ids
}

func TestSweepOrphans(t *testing.T) {
	repo := repository.NewMemoryImportRepository()
	ids := seedJobs(t, repo, model.JobStatusSent, model.JobStatusImported, model.JobStatusSent, model.JobStatusProcessing)

	queue := &recordingQueue{}
	gauges := &countingGauges{}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	s := NewScheduler(repo, queue, gauges, SweepConfig{Schedule: "@every 5m", OrphanAfter: time.Minute}, testLogger).WithMetrics(m)
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	assert.Equal(t, 2, s.SweepOrphans(context.Background()))
	assert.ElementsMatch(t, []int64{ids[0], ids[2]}, queue.ids)
	assert.Equal(t, 1, gauges.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OrphansRequeued))
}

func TestSweepOrphansIgnoresRecentJobs(t *testing.T) {
	repo := repository.NewMemoryImportRepository()
	seedJobs(t, repo, model.JobStatusSent)

	queue := &recordingQueue{}
	s := NewScheduler(repo, queue, nil, SweepConfig{OrphanAfter: 15 * time.Minute}, testLogger)

	assert.Zero(t, s.SweepOrphans(context.Background()))
	assert.Empty(t, queue.ids)
}

func TestSweepOrphansBatchAndFailures(t *testing.T) {
	repo := repository.NewMemoryImportRepository()
	ids := seedJobs(t, repo, model.JobStatusSent, model.JobStatusSent, model.JobStatusSent)

	queue := &recordingQueue{failID: ids[0]}
	s := NewScheduler(repo, queue, nil, SweepConfig{OrphanAfter: time.Minute, BatchSize: 2}, testLogger)
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	assert.Equal(t, 1, s.SweepOrphans(context.Background()))
	assert.Len(t, queue.ids, 1)
}

func TestSweepOrphansListFailure(t *testing.T) {
	queue := &recordingQueue{}
	s := NewScheduler(brokenLister{}, queue, nil, SweepConfig{OrphanAfter: time.Minute}, testLogger)
	assert.Zero(t, s.SweepOrphans(context.Background()))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(brokenLister{}, &recordingQueue{}, nil, SweepConfig{Schedule: "not a schedule"}, testLogger)
	assert.Error(t, s.Start())

	ok := NewScheduler(brokenLister{}, &recordingQueue{}, nil, SweepConfig{Schedule: "@every 1h"}, testLogger)
	require.NoError(t, ok.Start())
	<-ok.Stop().Done()
}
