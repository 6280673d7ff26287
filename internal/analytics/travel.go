package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/trips"
)

// Travel card columns.
var (
	TravelCategoryFields = domain.Fields{"MCC_Category", "mcc_description"}
	TravelSpendFields    = domain.Fields{"amount", "txn_amt", "bill_amt"}
	LoadAmountFields     = domain.Fields{"amount", "txn_amt"}
	ForeignAmountFields  = domain.Fields{"txn_amt", "amount"}
	CurrencyFields       = domain.Fields{"txn_curr"}
)

// LoadLeadTime is how long before a trip a wallet load still counts
// towards it.
const LoadLeadTime = 7 * 24 * time.Hour

// TripSummary is one line of the trips list.
type TripSummary struct {
	TripID  string  `json:"trip_id"`
	Country string  `json:"country"`
	Dates   string  `json:"dates"`
	Spend   float64 `json:"spend"`
}

// TripsResult lists trips, newest first.
type TripsResult struct {
	Header
	Period string        `json:"period"`
	Count  int           `json:"count"`
	Trips  []TripSummary `json:"trips"`
}

// Trips segments the travel-card records dated in p into trips. For a
// bounded period undated records are dropped before segmenting.
func (e *Engine) Trips(records []domain.Record, p period.Period) TripsResult {
	seg := e.segmenter()
	found := seg.Segment(e.within(records, p, dateFieldsOr(seg.DateFields), period.ExcludeUnparseable))

	out := make([]TripSummary, 0, len(found))
	for i := len(found) - 1; i >= 0; i-- {
		t := found[i]
		out = append(out, TripSummary{
			TripID:  t.ID,
			Country: t.Country,
			Dates:   fmt.Sprintf("%s to %s", t.Start.Format(DayLayout), t.End.Format(DayLayout)),
			Spend:   Money(t.TotalSpend),
		})
	}
	return TripsResult{Header: header("travel_trips"), Period: p.Label, Count: len(out), Trips: out}
}

// FindTrip segments all records and looks up id.
func (e *Engine) FindTrip(records []domain.Record, id string) (trips.Trip, bool) {
	return trips.FindByID(e.segmenter().Segment(records), id)
}

// tripSpends returns the non-load records of trip: same country, dated
// within the trip.
func (e *Engine) tripSpends(records []domain.Record, trip trips.Trip) []domain.Record {
	seg := e.segmenter()
	dateOf := e.dateOf(dateFieldsOr(seg.DateFields))
	var out []domain.Record
	for _, r := range records {
		if r.IsLoad() || r.Country(countryFieldsOr(seg.CountryFields)) != trip.Country {
			continue
		}
		if t, ok := dateOf(r); ok && trip.Contains(t) {
			out = append(out, r)
		}
	}
	return out
}

func dateFieldsOr(f domain.Fields) domain.Fields {
	if len(f) == 0 {
		return trips.DefaultDateFields
	}
	return f
}

func countryFieldsOr(f domain.Fields) domain.Fields {
	if len(f) == 0 {
		return domain.CountryFields
	}
	return f
}

// TripOverview describes a trip in the spend breakdown.
type TripOverview struct {
	TripID       string  `json:"trip_id"`
	Country      string  `json:"country"`
	TotalSpend   float64 `json:"total_spend"`
	DurationDays int     `json:"duration_days"`
}

// CategoryAmount is one category of a trip.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// TripSpendResult breaks a trip's spend down by category.
type TripSpendResult struct {
	Header
	Trip       TripOverview     `json:"trip"`
	Categories []CategoryAmount `json:"categories"`
}

// TripSpend breaks trip down by merchant category, largest first.
func (e *Engine) TripSpend(records []domain.Record, trip trips.Trip) TripSpendResult {
	groups := buckets{}
	for _, r := range e.tripSpends(records, trip) {
		cat := r.String(TravelCategoryFields)
		if cat == "" {
			cat = "General"
		}
		groups.add(cat, r.AbsAmount(TravelSpendFields))
	}

	cats := make([]CategoryAmount, 0, len(groups))
	for _, k := range groups.sortedDesc() {
		cats = append(cats, CategoryAmount{Name: k, Amount: Money(groups[k].total)})
	}
	return TripSpendResult{
		Header: header("travel_trip_spend"),
		Trip: TripOverview{
			TripID:       trip.ID,
			Country:      trip.Country,
			TotalSpend:   Money(trip.TotalSpend),
			DurationDays: trip.DurationDays(),
		},
		Categories: cats,
	}
}

// LoadVsSpendResult compares wallet loads with trip spend.
type LoadVsSpendResult struct {
	Header
	TripID         string  `json:"trip_id"`
	TotalLoaded    float64 `json:"total_loaded"`
	TotalSpent     float64 `json:"total_spent"`
	Remaining      float64 `json:"remaining"`
	UtilizationPct int64   `json:"utilization_pct"`
}

// LoadVsSpend totals wallet loads from LoadLeadTime before the trip to its
// end, in any country, against the trip's spend.
func (e *Engine) LoadVsSpend(records []domain.Record, trip trips.Trip) LoadVsSpendResult {
	window := period.Period{Start: trip.Start.Add(-LoadLeadTime), End: trip.End}
	dateOf := e.dateOf(dateFieldsOr(e.segmenter().DateFields))

	loaded := decimal.Zero
	for _, r := range records {
		if !r.IsLoad() {
			continue
		}
		if t, ok := dateOf(r); ok && window.Contains(t) {
			loaded = loaded.Add(r.AbsAmount(LoadAmountFields))
		}
	}

	res := LoadVsSpendResult{
		Header:      header("travel_load_vs_spend"),
		TripID:      trip.ID,
		TotalLoaded: Money(loaded),
		TotalSpent:  Money(trip.TotalSpend),
		Remaining:   Money(loaded.Sub(trip.TotalSpend)),
	}
	if loaded.IsPositive() {
		res.UtilizationPct = trip.TotalSpend.Div(loaded).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	}
	return res
}

// TripComparison is one side of a comparison.
type TripComparison struct {
	TripID     string  `json:"trip_id"`
	Country    string  `json:"country"`
	TotalSpend float64 `json:"total_spend"`
	DailyAvg   float64 `json:"daily_avg"`
}

// Comparison compares two trips.
type Comparison struct {
	Trip1           TripComparison `json:"trip_1"`
	Trip2           TripComparison `json:"trip_2"`
	DifferenceSpend float64        `json:"difference_spend"`
}

// CompareResult wraps a Comparison.
type CompareResult struct {
	Header
	Comparison Comparison `json:"comparison"`
}

// CompareTrips compares spend and daily average of two trips. The daily
// average divides by the exact elapsed days plus one.
func (e *Engine) CompareTrips(a, b trips.Trip) CompareResult {
	return CompareResult{
		Header: header("travel_compare"),
		Comparison: Comparison{
			Trip1:           comparison(a),
			Trip2:           comparison(b),
			DifferenceSpend: Money(a.TotalSpend.Sub(b.TotalSpend)),
		},
	}
}

func comparison(t trips.Trip) TripComparison {
	days := decimal.NewFromFloat(t.End.Sub(t.Start).Hours() / 24).Add(decimal.NewFromInt(1))
	return TripComparison{
		TripID:     t.ID,
		Country:    t.Country,
		TotalSpend: Money(t.TotalSpend),
		DailyAvg:   Money(t.TotalSpend.Div(days)),
	}
}

// CurrencyAmount is the foreign-currency total of one currency.
type CurrencyAmount struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

// CurrencyMixResult lists the currencies spent on a trip.
type CurrencyMixResult struct {
	Header
	TripID     string           `json:"trip_id"`
	Currencies []CurrencyAmount `json:"currencies"`
}

// CurrencyMix totals a trip's spends in their transaction currency, ordered
// by currency code. A missing currency is BHD.
func (e *Engine) CurrencyMix(records []domain.Record, trip trips.Trip) CurrencyMixResult {
	groups := buckets{}
	for _, r := range e.tripSpends(records, trip) {
		code := r.String(CurrencyFields)
		if code == "" {
			code = BaseCurrency
		}
		groups.add(code, r.Amount(ForeignAmountFields))
	}

	codes := make([]string, 0, len(groups))
	for k := range groups {
		codes = append(codes, k)
	}
	sort.Strings(codes)

	out := make([]CurrencyAmount, 0, len(codes))
	for _, c := range codes {
		out = append(out, CurrencyAmount{Code: c, Amount: Money(groups[c].total)})
	}
	return CurrencyMixResult{Header: header("travel_currency_mix"), TripID: trip.ID, Currencies: out}
}
