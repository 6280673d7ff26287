package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/finance-records-api/internal/analytics"
	"github.com/dvloznov/finance-records-api/internal/api/middleware"
	"github.com/dvloznov/finance-records-api/internal/cache"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

// Date and amount columns of the raw dataset listings.
var (
	remittanceDates   = domain.Fields{"timestamp_created"}
	remittanceAmounts = domain.Fields{"total_amount_in_BHD", "amount"}

	transactionDates   = domain.Fields{"transaction_date_time", "created_date"}
	transactionAmounts = domain.Fields{"transaction_amount", "amount", "Amount"}

	pointsSheetKey = "flyy_points"
	pointsDates    = domain.Fields{"Created_At"}
	pointsAmounts  = domain.Fields{"Points"}
	rewardDates    = domain.Fields{"Txn_Date"}
	rewardAmounts  = domain.Fields{"BHD_Amount", "Amount", "Txn_Amt", "amount"}

	travelDates   = domain.Fields{"Txn_Date"}
	travelAmounts = domain.Fields{"BHD_Amount", "Txn_Amt", "Amount", "amount", "txn_amt"}
)

// CacheStats reports cache hit counters.
type CacheStats interface {
	Stats() cache.Stats
}

// DatasetsHandler serves the raw workbook contents.
type DatasetsHandler struct {
	data  DataSource
	dates *dates.Parser
	now   func() time.Time
	cache CacheStats
	log   zerolog.Logger
}

// NewDatasetsHandler creates a new datasets handler. stats may be nil.
func NewDatasetsHandler(data DataSource, parser *dates.Parser, stats CacheStats, log zerolog.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		data:  data,
		dates: parser,
		now:   time.Now,
		cache: stats,
		log:   log,
	}
}

// monthFilter is the month/year/all selection of the raw listings.
type monthFilter struct {
	All    bool
	Period period.Period
	Month  int
	Year   int
}

func (h *DatasetsHandler) parseMonthFilter(r *http.Request) (monthFilter, error) {
	if strings.EqualFold(r.URL.Query().Get("all"), "true") {
		return monthFilter{All: true, Period: period.AllTime()}, nil
	}

	now := h.now().In(h.location())
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		return monthFilter{}, err
	}
	if month < 1 || month > 12 {
		return monthFilter{}, fmt.Errorf("month must be between 1 and 12: %w", errBadParam)
	}
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		return monthFilter{}, err
	}

	return monthFilter{
		Period: period.Month(year, time.Month(month), h.location()),
		Month:  month,
		Year:   year,
	}, nil
}

func (h *DatasetsHandler) location() *time.Location {
	if h.dates == nil || h.dates.Location == nil {
		return time.Local
	}
	return h.dates.Location
}

func (h *DatasetsHandler) inMonth(records []domain.Record, f monthFilter, fields domain.Fields) []domain.Record {
	if f.All {
		return records
	}
	return period.Filter(records, f.Period, func(rec domain.Record) (time.Time, bool) {
		raw, ok := rec.Value(fields)
		if !ok {
			return time.Time{}, false
		}
		return h.dates.Parse(raw)
	}, period.ExcludeUnparseable)
}

// DatasetResponse is a single-sheet listing.
type DatasetResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	FilterPeriod string          `json:"filter_period"`
	Month        *int            `json:"month"`
	Year         *int            `json:"year"`
	TotalRecords int             `json:"total_records"`
	Summary      analytics.Stats `json:"summary"`
	Data         []domain.Record `json:"data"`
}

// SheetsResponse is a per-sheet listing.
type SheetsResponse struct {
	Success      bool                       `json:"success"`
	Message      string                     `json:"message"`
	FilterPeriod string                     `json:"filter_period"`
	Month        *int                       `json:"month"`
	Year         *int                       `json:"year"`
	Sheets       []string                   `json:"sheets"`
	TotalRecords int                        `json:"total_records"`
	Summary      map[string]analytics.Stats `json:"summary"`
	Data         map[string][]domain.Record `json:"data"`
}

func (f monthFilter) fields() (string, *int, *int) {
	if f.All {
		return period.AllTimeLabel, nil, nil
	}
	month, year := f.Month, f.Year
	return f.Period.Label, &month, &year
}

type recordFilter func(domain.Record) bool

func apply(records []domain.Record, filters ...recordFilter) []domain.Record {
	out := make([]domain.Record, 0, len(records))
next:
	for _, rec := range records {
		for _, keep := range filters {
			if !keep(rec) {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out
}

// Query filters. Each returns nil when its parameter is absent.

func looseEquals(field, want string) recordFilter {
	if want == "" {
		return nil
	}
	return func(rec domain.Record) bool { return rec.Equals(field, want) }
}

func containsFold(field, needle string) recordFilter {
	if needle == "" {
		return nil
	}
	return func(rec domain.Record) bool { return rec.ContainsFold(domain.Fields{field}, needle) }
}

func equalFold(field, want string) recordFilter {
	if want == "" {
		return nil
	}
	return func(rec domain.Record) bool {
		v := rec.String(domain.Fields{field})
		return v != "" && strings.EqualFold(v, want)
	}
}

func boolEquals(r *http.Request, field string) recordFilter {
	if !r.URL.Query().Has(field) {
		return nil
	}
	want := r.URL.Query().Get(field) == "true"
	return func(rec domain.Record) bool {
		v, ok := rec.Bool(field)
		return ok && v == want
	}
}

func compact(filters ...recordFilter) []recordFilter {
	out := filters[:0]
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (h *DatasetsHandler) singleSheet(w http.ResponseWriter, r *http.Request, name dataset.Name, label string,
	dateFields, amountFields domain.Fields, filters func(*http.Request) []recordFilter) {
	f, err := h.parseMonthFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.data.FirstSheet(r.Context(), name)
	if err != nil {
		loadFailed(w, r, name, err)
		return
	}

	rows = h.inMonth(rows, f, dateFields)
	rows = apply(rows, filters(r)...)

	resp := DatasetResponse{
		Success:      true,
		Message:      label + " history fetched successfully",
		TotalRecords: len(rows),
		Summary:      analytics.CalculateStats(rows, amountFields),
		Data:         rows,
	}
	resp.FilterPeriod, resp.Month, resp.Year = f.fields()
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Remittance handles GET /api/remittance
func (h *DatasetsHandler) Remittance(w http.ResponseWriter, r *http.Request) {
	h.singleSheet(w, r, dataset.Remittance, "Remittance", remittanceDates, remittanceAmounts,
		func(r *http.Request) []recordFilter {
			q := r.URL.Query()
			return compact(
				looseEquals("cpr", q.Get("cpr")),
				containsFold("paymentmode", q.Get("paymentmode")),
				boolEquals(r, "status"),
			)
		})
}

// Transactions handles GET /api/transactions
func (h *DatasetsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	h.singleSheet(w, r, dataset.Transactions, "Transaction", transactionDates, transactionAmounts,
		func(r *http.Request) []recordFilter {
			q := r.URL.Query()
			return compact(
				looseEquals("sender_cr", q.Get("sender_cr")),
				containsFold("transaction_type", q.Get("transaction_type")),
				equalFold("transaction_status", q.Get("transaction_status")),
				equalFold("credit_debit", q.Get("credit_debit")),
			)
		})
}

// sheetRule picks the date and amount columns of one sheet.
type sheetRule func(key string) (dateFields, amountFields domain.Fields)

func (h *DatasetsHandler) multiSheet(w http.ResponseWriter, r *http.Request, name dataset.Name, label string,
	rule sheetRule, filters func(r *http.Request, key string) []recordFilter) {
	f, err := h.parseMonthFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sheets, err := h.data.Sheets(r.Context(), name)
	if err != nil {
		loadFailed(w, r, name, err)
		return
	}

	// An unknown type falls back to every sheet.
	if t := r.URL.Query().Get("type"); t != "" {
		want := workbook.SheetKey(t)
		for _, s := range sheets {
			if s.Key == want {
				sheets = []workbook.Sheet{s}
				break
			}
		}
	}

	resp := SheetsResponse{
		Success: true,
		Message: label + " history fetched successfully",
		Sheets:  make([]string, 0, len(sheets)),
		Summary: make(map[string]analytics.Stats, len(sheets)),
		Data:    make(map[string][]domain.Record, len(sheets)),
	}
	for _, s := range sheets {
		dateFields, amountFields := rule(s.Key)
		rows := h.inMonth(s.Rows, f, dateFields)
		rows = apply(rows, filters(r, s.Key)...)

		resp.Sheets = append(resp.Sheets, s.Key)
		resp.Data[s.Key] = rows
		resp.Summary[s.Key] = analytics.CalculateStats(rows, amountFields)
		resp.TotalRecords += len(rows)
	}
	resp.FilterPeriod, resp.Month, resp.Year = f.fields()
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Rewards handles GET /api/rewards
func (h *DatasetsHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	h.multiSheet(w, r, dataset.Rewards, "Rewards",
		func(key string) (domain.Fields, domain.Fields) {
			if key == pointsSheetKey {
				return pointsDates, pointsAmounts
			}
			return rewardDates, rewardAmounts
		},
		func(r *http.Request, _ string) []recordFilter {
			return compact(looseEquals("customerId", r.URL.Query().Get("customerId")))
		})
}

// TravelBuddy handles GET /api/travelbuddy
func (h *DatasetsHandler) TravelBuddy(w http.ResponseWriter, r *http.Request) {
	h.multiSheet(w, r, dataset.TravelBuddy, "TravelBuddy transaction",
		func(string) (domain.Fields, domain.Fields) { return travelDates, travelAmounts },
		func(r *http.Request, key string) []recordFilter {
			q := r.URL.Query()
			var country recordFilter
			if c := q.Get("country"); c != "" && strings.Contains(key, "transaction") {
				country = func(rec domain.Record) bool {
					return rec.ContainsFold(domain.Fields{"country", "Country"}, c)
				}
			}
			return compact(
				looseEquals("customerId", q.Get("customerId")),
				country,
				equalFold("transactionType_dsc", q.Get("transactionType")),
			)
		})
}

// AllData is every dataset unfiltered.
type AllData struct {
	Remittance   []domain.Record            `json:"remittance"`
	Transactions []domain.Record            `json:"transactions"`
	Rewards      map[string][]domain.Record `json:"rewards"`
	TravelBuddy  map[string][]domain.Record `json:"travelbuddy"`
}

func byKey(sheets []workbook.Sheet) map[string][]domain.Record {
	out := make(map[string][]domain.Record, len(sheets))
	for _, s := range sheets {
		out[s.Key] = s.Rows
	}
	return out
}

// All handles GET /api/all. The four datasets load concurrently; the first
// failure fails the request.
func (h *DatasetsHandler) All(w http.ResponseWriter, r *http.Request) {
	g, ctx := errgroup.WithContext(r.Context())

	var data AllData
	var rewards, travel []workbook.Sheet
	g.Go(func() error {
		rows, err := h.data.FirstSheet(ctx, dataset.Remittance)
		data.Remittance = rows
		return err
	})
	g.Go(func() error {
		rows, err := h.data.FirstSheet(ctx, dataset.Transactions)
		data.Transactions = rows
		return err
	})
	g.Go(func() error {
		sheets, err := h.data.Sheets(ctx, dataset.Rewards)
		rewards = sheets
		return err
	})
	g.Go(func() error {
		sheets, err := h.data.Sheets(ctx, dataset.TravelBuddy)
		travel = sheets
		return err
	})

	if err := g.Wait(); err != nil {
		h.log.Error().Err(err).Msg("Failed to load datasets")
		middleware.WriteError(w, http.StatusInternalServerError, "Error fetching all data: "+err.Error())
		return
	}
	data.Rewards = byKey(rewards)
	data.TravelBuddy = byKey(travel)

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All data fetched successfully",
		"data":    data,
	})
}

// Sheets handles GET /api/sheets
func (h *DatasetsHandler) Sheets(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Sheet information fetched successfully",
		"data":    h.data.SheetInfo(r.Context()),
	})
}

// Health handles GET /api/health
func (h *DatasetsHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"success":     true,
		"message":     "Server is running",
		"timestamp":   h.now().UTC().Format(time.RFC3339),
		"excel_files": h.data.Files(),
	}
	if h.cache != nil {
		body["cache"] = h.cache.Stats()
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}
