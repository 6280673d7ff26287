package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-records-api/internal/analytics"
	"github.com/dvloznov/finance-records-api/internal/api/middleware"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/trips"
)

// ToolsHandler serves the assistant tool endpoints under /api/mcp.
type ToolsHandler struct {
	data    DataSource
	engine  *analytics.Engine
	periods PeriodResolver
	log     zerolog.Logger
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(data DataSource, engine *analytics.Engine, periods PeriodResolver, log zerolog.Logger) *ToolsHandler {
	return &ToolsHandler{
		data:    data,
		engine:  engine,
		periods: periods,
		log:     log,
	}
}

func (h *ToolsHandler) period(r *http.Request) period.Period {
	return h.periods.Resolve(r.URL.Query().Get("period"))
}

func (h *ToolsHandler) records(w http.ResponseWriter, r *http.Request, name dataset.Name) ([]domain.Record, bool) {
	records, err := h.data.Records(r.Context(), name)
	if err != nil {
		loadFailed(w, r, name, err)
		return nil, false
	}
	return records, true
}

func (h *ToolsHandler) page(w http.ResponseWriter, r *http.Request, defLimit int) (analytics.Page, bool) {
	limit, err := queryInt(r, "limit", defLimit)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return analytics.Page{}, false
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return analytics.Page{}, false
	}
	return analytics.Page{Limit: limit, Offset: offset}, true
}

func (h *ToolsHandler) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	n, err := queryInt(r, name, def)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return n, true
}

// Spend tools.

// SpendSummary handles GET /api/mcp/spend/summary
func (h *ToolsHandler) SpendSummary(w http.ResponseWriter, r *http.Request) {
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	travel, ok := h.records(w, r, dataset.TravelBuddy)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.SpendSummary(main, travel, h.period(r)))
}

// SpendByCategory handles GET /api/mcp/spend/by-category
func (h *ToolsHandler) SpendByCategory(w http.ResponseWriter, r *http.Request) {
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.SpendByCategory(main, h.period(r)))
}

// TopMerchants handles GET /api/mcp/spend/top-merchants
func (h *ToolsHandler) TopMerchants(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intParam(w, r, "limit", analytics.DefaultMerchantLimit)
	if !ok {
		return
	}
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.TopMerchants(main, h.period(r), limit))
}

// FindTransactions handles GET /api/mcp/spend/search
func (h *ToolsHandler) FindTransactions(w http.ResponseWriter, r *http.Request) {
	query, ok := required(w, r, "query")
	if !ok {
		return
	}
	page, ok := h.page(w, r, analytics.DefaultSearchLimit)
	if !ok {
		return
	}
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.FindTransactions(main, query, h.period(r), page))
}

// DailySpend handles GET /api/mcp/spend/daily. The period defaults to the
// last week.
func (h *ToolsHandler) DailySpend(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("period")
	if token == "" {
		token = analytics.DefaultDailyPeriod
	}
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.DailySpendByDate(main, h.periods.Resolve(token)))
}

// UnusualActivity handles GET /api/mcp/spend/unusual
func (h *ToolsHandler) UnusualActivity(w http.ResponseWriter, r *http.Request) {
	main, ok := h.records(w, r, dataset.Transactions)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.UnusualActivity(main, h.period(r)))
}

// Remittance tools.

// RemittanceSummary handles GET /api/mcp/remittance/summary
func (h *ToolsHandler) RemittanceSummary(w http.ResponseWriter, r *http.Request) {
	year, ok := h.intParam(w, r, "year", 0)
	if !ok {
		return
	}
	month, ok := h.intParam(w, r, "month", 0)
	if !ok {
		return
	}
	records, ok := h.records(w, r, dataset.Remittance)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.RemittanceSummary(records, year, month))
}

// RecipientStats handles GET /api/mcp/remittance/recipient
func (h *ToolsHandler) RecipientStats(w http.ResponseWriter, r *http.Request) {
	name, ok := required(w, r, "recipient_name")
	if !ok {
		return
	}
	records, ok := h.records(w, r, dataset.Remittance)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.RecipientStats(records, name))
}

// RemittanceTrend handles GET /api/mcp/remittance/trend
func (h *ToolsHandler) RemittanceTrend(w http.ResponseWriter, r *http.Request) {
	years, ok := h.intParam(w, r, "years", analytics.DefaultTrendYears)
	if !ok {
		return
	}
	records, ok := h.records(w, r, dataset.Remittance)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.RemittanceTrend(records, years))
}

// SearchRemittances handles GET /api/mcp/remittance/search
func (h *ToolsHandler) SearchRemittances(w http.ResponseWriter, r *http.Request) {
	query, ok := required(w, r, "query")
	if !ok {
		return
	}
	page, ok := h.page(w, r, analytics.DefaultSearchLimit)
	if !ok {
		return
	}
	records, ok := h.records(w, r, dataset.Remittance)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.SearchRemittances(records, query, page))
}

// FXRate handles GET /api/mcp/remittance/fx-rate
func (h *ToolsHandler) FXRate(w http.ResponseWriter, r *http.Request) {
	currency, ok := required(w, r, "currency")
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.FXRate(currency))
}

// Rewards tools.

// RewardsSummary handles GET /api/mcp/rewards/summary
func (h *ToolsHandler) RewardsSummary(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.data.Sheets(r.Context(), dataset.Rewards)
	if err != nil {
		loadFailed(w, r, dataset.Rewards, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.RewardsSummary(sheets, r.URL.Query().Get("type"), h.period(r)))
}

// RewardsActivity handles GET /api/mcp/rewards/activity
func (h *ToolsHandler) RewardsActivity(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.data.Sheets(r.Context(), dataset.Rewards)
	if err != nil {
		loadFailed(w, r, dataset.Rewards, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.RewardsActivity(sheets, r.URL.Query().Get("type"), h.period(r)))
}

// ExpiryAlerts handles GET /api/mcp/rewards/expiry-alerts
func (h *ToolsHandler) ExpiryAlerts(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.engine.ExpiryAlerts())
}

// BestStrategy handles GET /api/mcp/rewards/best-strategy
func (h *ToolsHandler) BestStrategy(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.engine.BestStrategy(r.URL.Query().Get("category")))
}

// Travel tools.

// Trips handles GET /api/mcp/travel/trips
func (h *ToolsHandler) Trips(w http.ResponseWriter, r *http.Request) {
	records, ok := h.records(w, r, dataset.TravelBuddy)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.Trips(records, h.period(r)))
}

// trip resolves the trip named by param, writing 400 or 404 on failure.
func (h *ToolsHandler) trip(w http.ResponseWriter, r *http.Request, records []domain.Record, param string) (trips.Trip, bool) {
	id, ok := required(w, r, param)
	if !ok {
		return trips.Trip{}, false
	}
	trip, found := h.engine.FindTrip(records, id)
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "Trip not found")
		return trips.Trip{}, false
	}
	return trip, true
}

func (h *ToolsHandler) tripTool(w http.ResponseWriter, r *http.Request, run func(records []domain.Record, trip trips.Trip) any) {
	if _, ok := required(w, r, "trip_id"); !ok {
		return
	}
	records, ok := h.records(w, r, dataset.TravelBuddy)
	if !ok {
		return
	}
	trip, ok := h.trip(w, r, records, "trip_id")
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, run(records, trip))
}

// TripSpend handles GET /api/mcp/travel/trip-spend
func (h *ToolsHandler) TripSpend(w http.ResponseWriter, r *http.Request) {
	h.tripTool(w, r, func(records []domain.Record, trip trips.Trip) any {
		return h.engine.TripSpend(records, trip)
	})
}

// LoadVsSpend handles GET /api/mcp/travel/load-vs-spend
func (h *ToolsHandler) LoadVsSpend(w http.ResponseWriter, r *http.Request) {
	h.tripTool(w, r, func(records []domain.Record, trip trips.Trip) any {
		return h.engine.LoadVsSpend(records, trip)
	})
}

// CurrencyMix handles GET /api/mcp/travel/currency-mix
func (h *ToolsHandler) CurrencyMix(w http.ResponseWriter, r *http.Request) {
	h.tripTool(w, r, func(records []domain.Record, trip trips.Trip) any {
		return h.engine.CurrencyMix(records, trip)
	})
}

// CompareTrips handles GET /api/mcp/travel/compare
func (h *ToolsHandler) CompareTrips(w http.ResponseWriter, r *http.Request) {
	id1, ok := required(w, r, "trip_id_1")
	if !ok {
		return
	}
	id2, ok := required(w, r, "trip_id_2")
	if !ok {
		return
	}
	records, ok := h.records(w, r, dataset.TravelBuddy)
	if !ok {
		return
	}
	a, foundA := h.engine.FindTrip(records, id1)
	b, foundB := h.engine.FindTrip(records, id2)
	if !foundA || !foundB {
		middleware.WriteError(w, http.StatusNotFound, "One or both trips not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.engine.CompareTrips(a, b))
}

// PeriodResult echoes a resolved period token.
type PeriodResult struct {
	analytics.Header
	Token string `json:"token"`
	Label string `json:"label"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Period handles GET /api/mcp/period
func (h *ToolsHandler) Period(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("period")
	p := h.periods.Resolve(token)

	res := PeriodResult{
		Header: analytics.Header{Success: true, Tool: "period"},
		Token:  token,
		Label:  p.Label,
	}
	if !p.Start.IsZero() {
		res.Start = p.Start.Format(time.RFC3339)
	}
	if !p.End.IsZero() {
		res.End = p.End.Format(time.RFC3339)
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
