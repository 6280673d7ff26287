package analytics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
)

// Card transaction columns.
var (
	TxnDateFields     = domain.Fields{"transaction_date_time"}
	TravelDateFields  = domain.Fields{"Txn_Date"}
	TxnAmountFields   = domain.Fields{"transaction_amount", "amount", "Amount", "txn_amt", "BHD_Amount", "bill_amt"}
	CategoryFields    = domain.Fields{"mcc_category", "MCC_Category", "category"}
	MerchantFields    = domain.Fields{"merchant_name", "other_party_name", "description"}
	SearchFields      = domain.Fields{"merchant_name", "other_party_name", "description", "mcc_category"}
	resultMerchant    = domain.Fields{"merchant_name", "other_party_name"}
	resultCategory    = domain.Fields{"mcc_category"}
	resultDebitCredit = domain.Fields{"credit_debit"}
)

// Defaults for the spend tools.
const (
	DefaultMerchantLimit = 10
	DefaultSearchLimit   = 5
	DefaultDailyPeriod   = "week"
	UnusualLimit         = 10
)

func spends(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.IsDebit() && r.AbsAmount(TxnAmountFields).IsPositive() {
			out = append(out, r)
		}
	}
	return out
}

func travelSpends(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if !r.IsLoad() && r.AbsAmount(TxnAmountFields).IsPositive() {
			out = append(out, r)
		}
	}
	return out
}

func credits(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.IsCredit() {
			out = append(out, r)
		}
	}
	return out
}

func sumAmounts(records []domain.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.AbsAmount(TxnAmountFields))
	}
	return total
}

// SpendTotals is the body of a spend summary.
type SpendTotals struct {
	TotalSpent       float64 `json:"total_spent"`
	TotalIncome      float64 `json:"total_income"`
	Net              float64 `json:"net"`
	TransactionCount int     `json:"transaction_count"`
}

// SpendSummaryResult answers "how much did I spend".
type SpendSummaryResult struct {
	Header
	Period  string      `json:"period"`
	Summary SpendTotals `json:"summary"`
}

// SpendSummary totals card debits and travel-card spends in p, and card
// credits as income.
func (e *Engine) SpendSummary(main, travel []domain.Record, p period.Period) SpendSummaryResult {
	mainSpend := e.within(spends(main), p, TxnDateFields, period.ExcludeUnparseable)
	travelSpend := e.within(travelSpends(travel), p, TravelDateFields, period.ExcludeUnparseable)
	income := e.within(credits(main), p, TxnDateFields, period.ExcludeUnparseable)

	spent := sumAmounts(mainSpend).Add(sumAmounts(travelSpend))
	earned := sumAmounts(income)

	return SpendSummaryResult{
		Header: header("spend_summary"),
		Period: p.Label,
		Summary: SpendTotals{
			TotalSpent:       Money(spent),
			TotalIncome:      Money(earned),
			Net:              Money(earned.Sub(spent)),
			TransactionCount: len(mainSpend) + len(travelSpend),
		},
	}
}

// CategorySpend is one category total.
type CategorySpend struct {
	Category         string  `json:"category"`
	TotalSpent       float64 `json:"total_spent"`
	TransactionCount int     `json:"transaction_count"`
}

// SpendByCategoryResult lists category totals, largest first.
type SpendByCategoryResult struct {
	Header
	Period     string          `json:"period"`
	Categories []CategorySpend `json:"categories"`
}

// SpendByCategory groups card debits in p by merchant category.
func (e *Engine) SpendByCategory(main []domain.Record, p period.Period) SpendByCategoryResult {
	groups := buckets{}
	for _, r := range e.within(spends(main), p, TxnDateFields, period.ExcludeUnparseable) {
		cat := r.String(CategoryFields)
		if cat == "" {
			cat = "Other"
		}
		groups.add(cat, r.AbsAmount(TxnAmountFields))
	}

	out := make([]CategorySpend, 0, len(groups))
	for _, k := range groups.sortedDesc() {
		out = append(out, CategorySpend{Category: k, TotalSpent: Money(groups[k].total), TransactionCount: groups[k].count})
	}
	return SpendByCategoryResult{Header: header("spend_by_category"), Period: p.Label, Categories: out}
}

// MerchantSpend is one merchant total.
type MerchantSpend struct {
	Merchant         string  `json:"merchant"`
	TotalSpent       float64 `json:"total_spent"`
	TransactionCount int     `json:"transaction_count"`
}

// TopMerchantsResult lists the merchants with the most spend.
type TopMerchantsResult struct {
	Header
	Period    string          `json:"period"`
	Merchants []MerchantSpend `json:"merchants"`
}

// TopMerchants groups card debits in p by merchant and keeps the top limit.
// A non-positive limit uses DefaultMerchantLimit.
func (e *Engine) TopMerchants(main []domain.Record, p period.Period, limit int) TopMerchantsResult {
	if limit <= 0 {
		limit = DefaultMerchantLimit
	}

	groups := buckets{}
	for _, r := range e.within(spends(main), p, TxnDateFields, period.ExcludeUnparseable) {
		m := r.String(MerchantFields)
		if m == "" {
			m = "Unknown"
		}
		groups.add(m, r.AbsAmount(TxnAmountFields))
	}

	keys := groups.sortedDesc()
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]MerchantSpend, 0, len(keys))
	for _, k := range keys {
		out = append(out, MerchantSpend{Merchant: k, TotalSpent: Money(groups[k].total), TransactionCount: groups[k].count})
	}
	return TopMerchantsResult{Header: header("top_merchants"), Period: p.Label, Merchants: out}
}

// TransactionMatch is one search hit.
type TransactionMatch struct {
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
	Type     string  `json:"type"`
}

// FindTransactionsResult is one page of search hits.
type FindTransactionsResult struct {
	Header
	Query        string             `json:"query"`
	Period       string             `json:"period"`
	TotalMatches int                `json:"total_matches"`
	Showing      int                `json:"showing"`
	Offset       int                `json:"offset"`
	Results      []TransactionMatch `json:"results"`
}

// FindTransactions searches every card transaction, debit or credit, whose
// merchant, counterparty, description or category contains query. Undated
// matches are kept.
func (e *Engine) FindTransactions(main []domain.Record, query string, p period.Period, page Page) FindTransactionsResult {
	var matches []domain.Record
	for _, r := range main {
		if r.ContainsFold(SearchFields, query) {
			matches = append(matches, r)
		}
	}
	matches = e.within(matches, p, TxnDateFields, period.IncludeUnparseable)

	start, end := page.apply(len(matches))
	results := make([]TransactionMatch, 0, end-start)
	for _, r := range matches[start:end] {
		results = append(results, TransactionMatch{
			Date:     e.displayDate(r, TxnDateFields, DateTimeLayout),
			Amount:   Money(r.AbsAmount(TxnAmountFields)),
			Merchant: r.String(resultMerchant),
			Category: r.String(resultCategory),
			Type:     r.String(resultDebitCredit),
		})
	}

	return FindTransactionsResult{
		Header:       header("find_transactions"),
		Query:        query,
		Period:       p.Label,
		TotalMatches: len(matches),
		Showing:      len(results),
		Offset:       start,
		Results:      results,
	}
}

// DailySpend is one day's total.
type DailySpend struct {
	Date             string  `json:"date"`
	TotalSpent       float64 `json:"total_spent"`
	TransactionCount int     `json:"transaction_count"`
}

// DailySpendResult lists days in ascending order.
type DailySpendResult struct {
	Header
	Period string       `json:"period"`
	Daily  []DailySpend `json:"daily"`
}

// DailySpendByDate groups card debits in p by calendar day. Undated debits
// are skipped.
func (e *Engine) DailySpendByDate(main []domain.Record, p period.Period) DailySpendResult {
	dateOf := e.dateOf(TxnDateFields)
	groups := buckets{}
	for _, r := range e.within(spends(main), p, TxnDateFields, period.ExcludeUnparseable) {
		t, ok := dateOf(r)
		if !ok {
			continue
		}
		groups.add(t.Format(DayLayout), r.AbsAmount(TxnAmountFields))
	}

	days := make([]string, 0, len(groups))
	for k := range groups {
		days = append(days, k)
	}
	sort.Strings(days)

	out := make([]DailySpend, 0, len(days))
	for _, d := range days {
		out = append(out, DailySpend{Date: d, TotalSpent: Money(groups[d].total), TransactionCount: groups[d].count})
	}
	return DailySpendResult{Header: header("daily_spend"), Period: p.Label, Daily: out}
}

// UnusualTransaction is a spend well above average.
type UnusualTransaction struct {
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
	Reason   string  `json:"reason"`
}

// UnusualActivityResult lists outlier spends, largest first.
type UnusualActivityResult struct {
	Header
	Period       string               `json:"period"`
	AverageSpend float64              `json:"average_spend"`
	Threshold    float64              `json:"threshold"`
	UnusualCount int                  `json:"unusual_count"`
	Transactions []UnusualTransaction `json:"unusual_transactions"`
}

// UnusualActivity flags card debits in p above the mean plus two population
// standard deviations. At most UnusualLimit are listed; UnusualCount is the
// full count.
func (e *Engine) UnusualActivity(main []domain.Record, p period.Period) UnusualActivityResult {
	filtered := e.within(spends(main), p, TxnDateFields, period.ExcludeUnparseable)

	amounts := make([]float64, len(filtered))
	var sum float64
	for i, r := range filtered {
		amounts[i], _ = r.AbsAmount(TxnAmountFields).Float64()
		sum += amounts[i]
	}
	var avg, stdDev float64
	if n := float64(len(amounts)); n > 0 {
		avg = sum / n
		var sq float64
		for _, a := range amounts {
			sq += (a - avg) * (a - avg)
		}
		stdDev = math.Sqrt(sq / n)
	}
	threshold := avg + 2*stdDev

	type flagged struct {
		record domain.Record
		amount float64
	}
	var hits []flagged
	for i, r := range filtered {
		if amounts[i] > threshold {
			hits = append(hits, flagged{record: r, amount: amounts[i]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].amount > hits[j].amount })

	out := make([]UnusualTransaction, 0, UnusualLimit)
	for i, h := range hits {
		if i == UnusualLimit {
			break
		}
		out = append(out, UnusualTransaction{
			Date:     e.displayDate(h.record, TxnDateFields, DateTimeLayout),
			Amount:   Money(decimal.NewFromFloat(h.amount)),
			Merchant: h.record.String(resultMerchant),
			Category: h.record.String(resultCategory),
			Reason:   "Amount significantly above average",
		})
	}

	return UnusualActivityResult{
		Header:       header("unusual_activity"),
		Period:       p.Label,
		AverageSpend: Money(decimal.NewFromFloat(avg)),
		Threshold:    Money(decimal.NewFromFloat(threshold)),
		UnusualCount: len(hits),
		Transactions: out,
	}
}
