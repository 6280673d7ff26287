package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-records-api/internal/config"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/jobs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Timezone = "UTC"
	return cfg
}

func TestNew_LocalOnly(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Storage, "local workbooks need no storage client")
	assert.False(t, a.Cache.Stats().Remote)
	assert.Len(t, a.Loader.Files(), 4)
	assert.Equal(t, "UTC", a.Dates.Location.String())
	assert.Equal(t, cfg.TripGap(), a.Engine.Segmenter.MaxGap)
	assert.Equal(t, "Bahrain", a.Engine.Segmenter.HomeCountry)
}

func TestNew_WithRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.RedisURL = "redis://" + srv.Addr()

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Cache.Stats().Remote)
}

func TestNew_RedisDownFallsBack(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := testConfig(t)
	cfg.Cache.RedisURL = "redis://" + addr
	buf := &bytes.Buffer{}

	a, err := New(context.Background(), cfg, zerolog.New(buf))
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.Cache.Stats().Remote)
	assert.Contains(t, buf.String(), "Redis unavailable")
}

func TestNew_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timezone = "Mars/Olympus"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

type mockRefresher struct {
	RefreshFunc func(ctx context.Context, name dataset.Name) (int, error)
}

func (m *mockRefresher) Refresh(ctx context.Context, name dataset.Name) (int, error) {
	return m.RefreshFunc(ctx, name)
}

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }

func TestRefreshHandler(t *testing.T) {
	ctx := context.Background()
	var got dataset.Name
	handler := RefreshHandler(&mockRefresher{RefreshFunc: func(_ context.Context, name dataset.Name) (int, error) {
		got = name
		if name == dataset.Remittance {
			return 0, errors.New("wrong password")
		}
		return 12, nil
	}}, zerolog.Nop())

	job := &jobs.RefreshJob{JobID: "1", Dataset: "rewards"}
	require.NoError(t, handler(ctx, job))
	assert.Equal(t, dataset.Rewards, got)
	assert.Equal(t, 12, job.Records)

	assert.EqualError(t, handler(ctx, &jobs.RefreshJob{Dataset: "remittance"}), "wrong password")
	assert.ErrorIs(t, handler(ctx, &jobs.RefreshJob{Dataset: "ledger"}), dataset.ErrUnknownDataset)
	assert.Error(t, handler(ctx, otherJob{}))
}

type recordingPublisher struct {
	published []string
	failOn    string
}

func (p *recordingPublisher) PublishRefresh(_ context.Context, job *jobs.RefreshJob) error {
	if job.Dataset == p.failOn {
		return jobs.ErrQueueClosed
	}
	job.JobID = "job-" + job.Dataset
	p.published = append(p.published, job.Dataset)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestEnqueueAll(t *testing.T) {
	pub := &recordingPublisher{}
	queued, err := EnqueueAll(context.Background(), pub, dataset.All)
	require.NoError(t, err)
	assert.Len(t, queued, 4)
	assert.Equal(t, "job-travelbuddy", queued[3].JobID)

	pub = &recordingPublisher{failOn: "rewards"}
	queued, err = EnqueueAll(context.Background(), pub, dataset.All)
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.Len(t, queued, 2)
}
