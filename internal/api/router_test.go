package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-records-api/internal/analytics"
	"github.com/dvloznov/finance-records-api/internal/api/handlers"
	"github.com/dvloznov/finance-records-api/internal/cache"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/jobs"
	"github.com/dvloznov/finance-records-api/internal/jobs/inmemory"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

type emptyReader struct{}

func (emptyReader) ReadAll(context.Context, string) ([]workbook.Sheet, error) {
	return []workbook.Sheet{{Name: "Sheet1", Key: "sheet1"}}, nil
}

func (emptyReader) SheetNames(context.Context, string) ([]string, error) {
	return []string{"Sheet1"}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *inmemory.Store) {
	t.Helper()
	log := zerolog.Nop()

	tiered := cache.NewTiered(cache.NewMemory(), nil, time.Minute, time.Hour, log)
	loader := dataset.NewLoader(emptyReader{}, tiered, map[string]string{
		"remittance":   "r.xlsx",
		"transactions": "t.xlsx",
		"rewards":      "rw.xlsx",
		"travelbuddy":  "tb.xlsx",
	}, log)
	parser := dates.New(time.UTC)
	engine := &analytics.Engine{Dates: parser}

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, 1, store, log)
	t.Cleanup(func() { _ = queue.Close() })

	h := NewRouter(Handlers{
		Datasets: handlers.NewDatasetsHandler(loader, parser, tiered, log),
		Tools:    handlers.NewToolsHandler(loader, engine, period.NewResolver(time.UTC), log),
		Jobs:     handlers.NewJobsHandler(store, log),
		Cache:    handlers.NewCacheHandler(queue, log),
	}, log)
	return h, store
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRouter(t *testing.T) {
	h, store := newTestRouter(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodHead, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/all", http.StatusOK},
		{http.MethodGet, "/api/rewards?all=true", http.StatusOK},
		{http.MethodGet, "/api/mcp/rewards/expiry-alerts", http.StatusOK},
		{http.MethodGet, "/api/mcp/travel/trips", http.StatusOK},
		{http.MethodGet, "/api/mcp/period?period=2024", http.StatusOK},
		{http.MethodPost, "/api/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/cache/refresh", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/missing", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/a/b", http.StatusBadRequest},
		{http.MethodOptions, "/api/all", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(h, tt.method, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}

	rec := do(h, http.MethodPost, "/api/cache/refresh?dataset=rewards")
	require.Equal(t, http.StatusAccepted, rec.Code)

	listed, err := store.ListJobs(context.Background(), jobs.JobFilter{Dataset: "rewards"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	rec = do(h, http.MethodGet, "/api/jobs/"+listed[0].JobID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dataset":"rewards"`)

	rec = do(h, http.MethodGet, "/api/jobs?dataset=rewards")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}
