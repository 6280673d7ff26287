package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-records-api/internal/app"
	"github.com/dvloznov/finance-records-api/internal/config"
	"github.com/dvloznov/finance-records-api/internal/jobs"
	"github.com/dvloznov/finance-records-api/internal/jobs/inmemory"
	"github.com/dvloznov/finance-records-api/internal/logger"
)

func main() {
	var (
		configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config overlay (or set CONFIG_FILE env)")
		envFile    = flag.String("env", ".env", "dotenv file, skipped when missing")
		interval   = flag.Duration("interval", 0, "refresh interval, overrides config")
		once       = flag.Bool("once", false, "refresh every dataset once and exit")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *interval > 0 {
		cfg.Worker.RefreshInterval = *interval
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if log, err = logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stdout); err != nil {
		log = logger.New()
		log.Fatal().Err(err).Msg("Invalid log settings")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer svc.Close()

	if !svc.Cache.Stats().Remote {
		log.Warn().Msg("No Redis configured; refreshed data stays in this process")
	}

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(svc.Loader.Names())*2, cfg.Worker.Workers, jobStore, log)

	if err := jobQueue.Start(ctx, app.RefreshHandler(svc.Loader, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Dur("interval", cfg.Worker.RefreshInterval).
		Int("workers", cfg.Worker.Workers).
		Msg("Starting cache warmer")

	enqueue := func() {
		queued, err := app.EnqueueAll(ctx, jobQueue, svc.Loader.Names())
		if err != nil {
			log.Error().Err(err).Msg("Failed to enqueue refresh jobs")
		}
		log.Info().Int("jobs", len(queued)).Msg("Refresh jobs enqueued")
	}

	enqueue()
	if !*once {
		ticker := time.NewTicker(cfg.Worker.RefreshInterval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				enqueue()
			}
		}
		log.Info().Msg("Shutting down worker service...")
	} else {
		// Let the single round finish, including retries.
		waitIdle(ctx, jobStore, 10*time.Minute)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Worker service stopped")
}

// waitIdle polls the store until no job is pending, running or retrying.
func waitIdle(ctx context.Context, store *inmemory.Store, limit time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		all, err := store.ListJobs(ctx, jobs.JobFilter{})
		if err != nil {
			return
		}
		busy := false
		for _, job := range all {
			switch job.Status {
			case jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusRetrying:
				busy = true
			}
		}
		if !busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
