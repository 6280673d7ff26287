// Package app assembles the shared service components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-records-api/internal/analytics"
	"github.com/dvloznov/finance-records-api/internal/cache"
	"github.com/dvloznov/finance-records-api/internal/config"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/gcs"
	"github.com/dvloznov/finance-records-api/internal/jobs"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/trips"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

// App holds the components every command needs.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Storage *gcs.Client // nil unless a workbook lives in GCS
	Cache   *cache.Tiered
	Loader  *dataset.Loader
	Dates   *dates.Parser
	Periods *period.Resolver
	Engine  *analytics.Engine
}

// New builds an App from a validated configuration. A Redis outage at
// startup is logged and the service runs on the in-process cache alone.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	a := &App{Config: cfg, Log: log}

	if usesStorage(cfg.Workbooks.Files) {
		client, err := gcs.NewClient(ctx, gcs.Options{
			CredentialsFile: cfg.GCS.CredentialsFile,
			Endpoint:        cfg.GCS.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.Storage = client
	}

	var remote cache.Layer
	if cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.KeyPrefix)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process cache only")
		} else {
			remote = r
		}
	}
	a.Cache = cache.NewTiered(cache.NewMemory(), remote, cfg.Cache.MemoryTTL, cfg.Cache.RedisTTL, log)

	source := &gcs.Source{}
	if a.Storage != nil {
		source.Remote = a.Storage
	}
	reader := &workbook.Reader{Source: source, Password: cfg.Workbooks.Password}
	a.Loader = dataset.NewLoader(reader, a.Cache, cfg.Workbooks.Files, log)

	a.Dates = dates.New(loc)
	a.Periods = period.NewResolver(loc)
	a.Engine = &analytics.Engine{
		Dates: a.Dates,
		Segmenter: &trips.Segmenter{
			HomeCountry: cfg.Trips.HomeCountry,
			MaxGap:      cfg.TripGap(),
			Dates:       a.Dates,
		},
		FXRates: cfg.FXRates,
		Strategies: analytics.Strategies{
			Default:    cfg.Strategies.Default,
			Categories: cfg.Strategies.Categories,
		},
	}
	return a, nil
}

func usesStorage(files map[string]string) bool {
	for _, f := range files {
		if gcs.IsURI(f) {
			return true
		}
	}
	return false
}

// Close releases the cache and storage clients.
func (a *App) Close() error {
	var errs []error
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresher rereads one dataset into the cache.
type Refresher interface {
	Refresh(ctx context.Context, name dataset.Name) (int, error)
}

// RefreshHandler processes refresh jobs against r.
func RefreshHandler(r Refresher, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		refresh, ok := job.(*jobs.RefreshJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		name, err := dataset.ParseName(refresh.Dataset)
		if err != nil {
			return err
		}

		log.Info().
			Str("job_id", refresh.JobID).
			Str("dataset", refresh.Dataset).
			Msg("Processing refresh job")

		n, err := r.Refresh(ctx, name)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", refresh.JobID).
				Str("dataset", refresh.Dataset).
				Msg("Refresh failed")
			return err
		}
		refresh.Records = n
		return nil
	}
}

// EnqueueAll publishes a refresh job for every configured dataset and
// returns the jobs published.
func EnqueueAll(ctx context.Context, pub jobs.Publisher, names []dataset.Name) ([]*jobs.RefreshJob, error) {
	out := make([]*jobs.RefreshJob, 0, len(names))
	for _, name := range names {
		job := &jobs.RefreshJob{Dataset: string(name)}
		if err := pub.PublishRefresh(ctx, job); err != nil {
			return out, fmt.Errorf("EnqueueAll: %s: %w", name, err)
		}
		out = append(out, job)
	}
	return out, nil
}
