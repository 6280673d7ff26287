// Package handlers serves the finance workbooks and the assistant tools
// built on them over HTTP.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-records-api/internal/api/middleware"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/jobs"
	"github.com/dvloznov/finance-records-api/internal/logger"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

// DataSource reads the cached workbook datasets.
type DataSource interface {
	Sheets(ctx context.Context, name dataset.Name) ([]workbook.Sheet, error)
	FirstSheet(ctx context.Context, name dataset.Name) ([]domain.Record, error)
	Records(ctx context.Context, name dataset.Name) ([]domain.Record, error)
	SheetInfo(ctx context.Context) map[dataset.Name]dataset.FileInfo
	Files() map[dataset.Name]string
}

// PeriodResolver turns a period token into a date range.
type PeriodResolver interface {
	Resolve(token string) period.Period
}

var errBadParam = errors.New("bad parameter")

// queryInt reads an optional integer parameter. Absent or blank yields def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, errBadParam)
	}
	return n, nil
}

// required reads a mandatory parameter, writing a 400 when it is missing.
func required(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		middleware.WriteError(w, http.StatusBadRequest, name+" required")
		return "", false
	}
	return v, true
}

// loadFailed logs a dataset read failure and writes a 500.
func loadFailed(w http.ResponseWriter, r *http.Request, name dataset.Name, err error) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Str("dataset", string(name)).Msg("Failed to load dataset")
	middleware.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error fetching %s data: %v", name, err))
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     job,
	})
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Dataset: query.Get("dataset"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"jobs":    jobsList,
		"count":   len(jobsList),
	})
}

// CacheHandler schedules dataset refreshes.
type CacheHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(publisher jobs.Publisher, log zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		publisher: publisher,
		log:       log,
	}
}

// Refresh handles POST /api/cache/refresh. Without a dataset parameter every
// dataset is refreshed.
func (h *CacheHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	targets := dataset.All
	if raw := r.URL.Query().Get("dataset"); raw != "" {
		name, err := dataset.ParseName(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown dataset %q", raw))
			return
		}
		targets = []dataset.Name{name}
	}

	queued := make([]*jobs.RefreshJob, 0, len(targets))
	for _, name := range targets {
		job := &jobs.RefreshJob{Dataset: string(name)}
		if err := h.publisher.PublishRefresh(ctx, job); err != nil {
			h.log.Error().Err(err).Str("dataset", string(name)).Msg("Failed to enqueue refresh job")
			status := http.StatusInternalServerError
			if errors.Is(err, jobs.ErrQueueClosed) {
				status = http.StatusServiceUnavailable
			}
			middleware.WriteError(w, status, "Failed to enqueue refresh job")
			return
		}
		h.log.Info().Str("job_id", job.JobID).Str("dataset", job.Dataset).Msg("Refresh job enqueued")
		queued = append(queued, job)
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Refresh scheduled",
		"jobs":    queued,
	})
}
