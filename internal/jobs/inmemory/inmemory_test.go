package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-records-api/internal/jobs"
)

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.RefreshJob{}))

	started := time.Now()
	job := &jobs.RefreshJob{JobID: "a", Dataset: "rewards", Status: jobs.JobStatusRunning, StartedAt: &started}
	require.NoError(t, s.SaveJob(ctx, job))
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusRunning, got.Status, "store keeps its own copy")
	got.StartedAt = nil

	again, _ := s.GetJob(ctx, "a")
	assert.NotNil(t, again.StartedAt)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, _ = s.GetJob(ctx, "a")
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	for i, ds := range []string{"rewards", "travelbuddy", "rewards", "remittance"} {
		status := jobs.JobStatusCompleted
		if i == 2 {
			status = jobs.JobStatusFailed
		}
		require.NoError(t, s.SaveJob(ctx, &jobs.RefreshJob{
			JobID:     string(rune('a' + i)),
			Dataset:   ds,
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].JobID, "newest first")
	assert.Equal(t, "a", all[3].JobID)

	rewards, _ := s.ListJobs(ctx, jobs.JobFilter{Dataset: "rewards"})
	assert.Len(t, rewards, 2)

	failed, _ := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.Len(t, failed, 1)
	assert.Equal(t, "c", failed[0].JobID)

	page, _ := s.ListJobs(ctx, jobs.JobFilter{Limit: 2, Offset: 1})
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].JobID)

	empty, _ := s.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func startQueue(t *testing.T, store *Store, handler jobs.JobHandler) *Queue {
	t.Helper()
	q := NewQueue(10, 2, store, zerolog.Nop())
	q.RetryDelay = time.Millisecond
	require.NoError(t, q.Start(context.Background(), handler))
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func waitForStatus(t *testing.T, store *Store, id string, status jobs.JobStatus) *jobs.RefreshJob {
	t.Helper()
	var got *jobs.RefreshJob
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = job
		return job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_Completes(t *testing.T) {
	store := NewStore()
	q := startQueue(t, store, func(_ context.Context, job jobs.Job) error {
		refresh := job.(*jobs.RefreshJob)
		refresh.Records = 42
		return nil
	})

	job := &jobs.RefreshJob{Dataset: "rewards"}
	require.NoError(t, q.PublishRefresh(context.Background(), job))
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, jobs.DefaultMaxRetries, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 42, done.Records)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Zero(t, job.Records, "caller's copy is not touched by workers")
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	q := startQueue(t, store, func(context.Context, jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("bucket unavailable")
		}
		return nil
	})

	job := &jobs.RefreshJob{Dataset: "travelbuddy"}
	require.NoError(t, q.PublishRefresh(context.Background(), job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	q := startQueue(t, store, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return errors.New("wrong password")
	})

	job := &jobs.RefreshJob{Dataset: "remittance", MaxRetries: 1}
	require.NoError(t, q.PublishRefresh(context.Background(), job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "wrong password", failed.Error)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, 1, nil, zerolog.Nop())
	require.NoError(t, q.Close())
	require.NoError(t, q.Stop(context.Background()), "stopping twice is fine")

	err := q.PublishRefresh(context.Background(), &jobs.RefreshJob{Dataset: "rewards"})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
}
