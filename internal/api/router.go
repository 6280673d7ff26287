// Package api wires the HTTP routes of the finance records service.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-records-api/internal/api/handlers"
	"github.com/dvloznov/finance-records-api/internal/api/middleware"
)

// Handlers groups every endpoint handler.
type Handlers struct {
	Datasets *handlers.DatasetsHandler
	Tools    *handlers.ToolsHandler
	Jobs     *handlers.JobsHandler
	Cache    *handlers.CacheHandler
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
			h(w, r)
		} else {
			middleware.MethodNotAllowed(w, method)
		}
	}
}

// NewRouter registers all routes and wraps them in the middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	get := func(path string, fn http.HandlerFunc) { mux.HandleFunc(path, only(http.MethodGet, fn)) }

	// Raw datasets
	get("/api/remittance", h.Datasets.Remittance)
	get("/api/transactions", h.Datasets.Transactions)
	get("/api/rewards", h.Datasets.Rewards)
	get("/api/travelbuddy", h.Datasets.TravelBuddy)
	get("/api/all", h.Datasets.All)
	get("/api/sheets", h.Datasets.Sheets)
	get("/api/health", h.Datasets.Health)

	// Spending tools
	get("/api/mcp/spend/summary", h.Tools.SpendSummary)
	get("/api/mcp/spend/by-category", h.Tools.SpendByCategory)
	get("/api/mcp/spend/top-merchants", h.Tools.TopMerchants)
	get("/api/mcp/spend/search", h.Tools.FindTransactions)
	get("/api/mcp/spend/daily", h.Tools.DailySpend)
	get("/api/mcp/spend/unusual", h.Tools.UnusualActivity)

	// Remittance tools
	get("/api/mcp/remittance/summary", h.Tools.RemittanceSummary)
	get("/api/mcp/remittance/recipient", h.Tools.RecipientStats)
	get("/api/mcp/remittance/trend", h.Tools.RemittanceTrend)
	get("/api/mcp/remittance/search", h.Tools.SearchRemittances)
	get("/api/mcp/remittance/fx-rate", h.Tools.FXRate)

	// Rewards tools
	get("/api/mcp/rewards/summary", h.Tools.RewardsSummary)
	get("/api/mcp/rewards/activity", h.Tools.RewardsActivity)
	get("/api/mcp/rewards/expiry-alerts", h.Tools.ExpiryAlerts)
	get("/api/mcp/rewards/best-strategy", h.Tools.BestStrategy)

	// Travel tools
	get("/api/mcp/travel/trips", h.Tools.Trips)
	get("/api/mcp/travel/trip-spend", h.Tools.TripSpend)
	get("/api/mcp/travel/load-vs-spend", h.Tools.LoadVsSpend)
	get("/api/mcp/travel/compare", h.Tools.CompareTrips)
	get("/api/mcp/travel/currency-mix", h.Tools.CurrencyMix)

	get("/api/mcp/period", h.Tools.Period)

	// Cache and jobs
	mux.HandleFunc("/api/cache/refresh", only(http.MethodPost, h.Cache.Refresh))
	get("/api/jobs", h.Jobs.ListJobs)
	get("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" || strings.Contains(jobID, "/") {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Jobs.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return middleware.Chain(mux, log)
}
