package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

// Remittance columns.
var (
	RemittanceDateFields   = domain.Fields{"timestamp_created"}
	RemittanceAmountFields = domain.Fields{"total_amount_in_BHD"}
	beneficiaryFields      = domain.Fields{"beneficiary_name"}
	remittanceSearchFields = domain.Fields{"purpose_of_payment", "beneficiary_name", "biller_name"}
	payeeFields            = domain.Fields{"beneficiary_name", "biller_name"}
	purposeFields          = domain.Fields{"purpose_of_payment"}
)

// Remittance defaults.
const (
	RemittanceStatusField = "status"
	DefaultTrendYears     = 3
	MaxTrendYears         = 100
	BaseCurrency          = "BHD"
)

func completed(r domain.Record) bool {
	return !r.IsFalse(RemittanceStatusField)
}

// RemittanceSummaryResult totals transfers for a year or one month of it.
type RemittanceSummaryResult struct {
	Header
	Period        string  `json:"period"`
	Year          int     `json:"year"`
	Month         *int    `json:"month"`
	TotalRemitted float64 `json:"total_remitted"`
	Count         int     `json:"count"`
	AverageAmount float64 `json:"average_amount"`
}

// RemittanceSummary totals completed transfers in year, or in month of year
// when month is 1-12. A zero year means the current year.
func (e *Engine) RemittanceSummary(records []domain.Record, year, month int) RemittanceSummaryResult {
	if year == 0 {
		year = e.now().Year()
	}
	if month < 1 || month > 12 {
		month = 0
	}

	dateOf := e.dateOf(RemittanceDateFields)
	total := decimal.Zero
	count := 0
	for _, r := range records {
		t, ok := dateOf(r)
		if !ok || !completed(r) || t.Year() != year {
			continue
		}
		if month != 0 && int(t.Month()) != month {
			continue
		}
		total = total.Add(r.Amount(RemittanceAmountFields))
		count++
	}

	res := RemittanceSummaryResult{
		Header:        header("remittance_summary"),
		Period:        fmt.Sprintf("Year %d", year),
		Year:          year,
		TotalRemitted: Money(total),
		Count:         count,
	}
	if month != 0 {
		res.Period = fmt.Sprintf("%s %d", time.Month(month), year)
		res.Month = &month
	}
	if count > 0 {
		res.AverageAmount = Money(total.Div(decimal.NewFromInt(int64(count))))
	}
	return res
}

// RecipientResult totals transfers to one beneficiary.
type RecipientResult struct {
	Header
	Recipient        string  `json:"recipient"`
	TotalSent        float64 `json:"total_sent"`
	TransactionCount int     `json:"transaction_count"`
	LastSent         *string `json:"last_sent"`
}

// RecipientStats totals completed transfers whose beneficiary contains name.
func (e *Engine) RecipientStats(records []domain.Record, name string) RecipientResult {
	dateOf := e.dateOf(RemittanceDateFields)
	total := decimal.Zero
	count := 0
	var last time.Time
	for _, r := range records {
		if !completed(r) || !containsFold(r.String(beneficiaryFields), name) {
			continue
		}
		total = total.Add(r.Amount(RemittanceAmountFields))
		count++
		if t, ok := dateOf(r); ok && t.After(last) {
			last = t
		}
	}

	res := RecipientResult{
		Header:           header("remittance_recipient"),
		Recipient:        name,
		TotalSent:        Money(total),
		TransactionCount: count,
	}
	if !last.IsZero() {
		s := last.Format(DayLayout)
		res.LastSent = &s
	}
	return res
}

// YearTotal is one year of a trend.
type YearTotal struct {
	Year          int     `json:"year"`
	TotalRemitted float64 `json:"total_remitted"`
	Count         int     `json:"count"`
}

// TrendResult lists yearly totals, oldest first.
type TrendResult struct {
	Header
	Trend []YearTotal `json:"trend"`
}

// RemittanceTrend totals completed transfers for each of the last years
// calendar years including the current one. A non-positive years uses
// DefaultTrendYears; more than MaxTrendYears is capped.
func (e *Engine) RemittanceTrend(records []domain.Record, years int) TrendResult {
	if years <= 0 {
		years = DefaultTrendYears
	}
	if years > MaxTrendYears {
		years = MaxTrendYears
	}
	current := e.now().Year()
	first := current - years + 1

	totals := make([]YearTotal, years)
	sums := make([]decimal.Decimal, years)
	for i := range totals {
		totals[i].Year = first + i
		sums[i] = decimal.Zero
	}

	dateOf := e.dateOf(RemittanceDateFields)
	for _, r := range records {
		t, ok := dateOf(r)
		if !ok || !completed(r) {
			continue
		}
		i := t.Year() - first
		if i < 0 || i >= years {
			continue
		}
		sums[i] = sums[i].Add(r.Amount(RemittanceAmountFields))
		totals[i].Count++
	}
	for i := range totals {
		totals[i].TotalRemitted = Money(sums[i])
	}
	return TrendResult{Header: header("remittance_trend"), Trend: totals}
}

// RemittanceMatch is one search hit.
type RemittanceMatch struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Beneficiary string  `json:"beneficiary"`
	Purpose     string  `json:"purpose"`
	Status      any     `json:"status"`
}

// RemittanceSearchResult is one page of search hits.
type RemittanceSearchResult struct {
	Header
	Query        string            `json:"query"`
	TotalMatches int               `json:"total_matches"`
	Showing      int               `json:"showing"`
	Offset       int               `json:"offset"`
	Results      []RemittanceMatch `json:"results"`
}

// SearchRemittances finds transfers of any status whose purpose, beneficiary
// or biller contains query.
func (e *Engine) SearchRemittances(records []domain.Record, query string, page Page) RemittanceSearchResult {
	var matches []domain.Record
	for _, r := range records {
		if r.ContainsFold(remittanceSearchFields, query) {
			matches = append(matches, r)
		}
	}

	start, end := page.apply(len(matches))
	results := make([]RemittanceMatch, 0, end-start)
	for _, r := range matches[start:end] {
		var status any
		if v, ok := r.Bool(RemittanceStatusField); ok {
			status = v
		}
		results = append(results, RemittanceMatch{
			Date:        e.displayDate(r, RemittanceDateFields, DateTimeLayout),
			Amount:      Money(r.Amount(RemittanceAmountFields)),
			Beneficiary: r.String(payeeFields),
			Purpose:     r.String(purposeFields),
			Status:      status,
		})
	}

	return RemittanceSearchResult{
		Header:       header("remittance_search"),
		Query:        query,
		TotalMatches: len(matches),
		Showing:      len(results),
		Offset:       start,
		Results:      results,
	}
}

// FXRateResult reports a static exchange rate from BHD.
type FXRateResult struct {
	Header
	BaseCurrency   string   `json:"base_currency"`
	TargetCurrency string   `json:"target_currency"`
	Rate           *float64 `json:"rate"`
	Message        string   `json:"message"`
	Available      []string `json:"available_currencies,omitempty"`
}

// FXRate looks up the configured rate for currency, case-insensitively.
func (e *Engine) FXRate(currency string) FXRateResult {
	code := strings.ToUpper(strings.TrimSpace(currency))
	res := FXRateResult{
		Header:         header("remittance_fx_rate"),
		BaseCurrency:   BaseCurrency,
		TargetCurrency: code,
		Message:        "Currency not found",
	}
	if rate, ok := e.fxRate(code); ok {
		res.Rate = &rate
		res.Message = fmt.Sprintf("1 %s = %s %s", BaseCurrency, decimal.NewFromFloat(rate).String(), code)
	} else {
		res.Available = e.Currencies()
	}
	return res
}

func (e *Engine) fxRate(code string) (float64, bool) {
	for k, v := range e.FXRates {
		if strings.EqualFold(k, code) && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// Currencies lists the configured currency codes in order.
func (e *Engine) Currencies() []string {
	out := make([]string, 0, len(e.FXRates))
	for k := range e.FXRates {
		out = append(out, strings.ToUpper(k))
	}
	sort.Strings(out)
	return out
}
