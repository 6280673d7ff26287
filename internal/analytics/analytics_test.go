package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
)

var fixedNow = time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)

func testEngine() *Engine {
	return &Engine{
		Dates:   dates.New(time.UTC),
		Now:     func() time.Time { return fixedNow },
		FXRates: map[string]float64{"INR": 22.15, "usd": 0.376},
	}
}

func resolve(token string) period.Period {
	r := &period.Resolver{Location: time.UTC, Now: func() time.Time { return fixedNow }}
	return r.Resolve(token)
}

func TestCalculateStats(t *testing.T) {
	records := []domain.Record{
		{"amount": 10.0},
		{"Amount": "2,500.25"},
		{"amount": -4.5},
		{"other": 1.0},
	}

	got := CalculateStats(records, domain.Fields{"transaction_amount", "amount", "Amount"})
	assert.Equal(t, Stats{Count: 4, Total: 2505.75, Average: 626.44, Min: -4.5, Max: 2500.25}, got)

	assert.Equal(t, Stats{}, CalculateStats(nil, domain.Fields{"amount"}))
}

func TestPage(t *testing.T) {
	tests := []struct {
		page       Page
		n          int
		start, end int
	}{
		{Page{Limit: 5}, 3, 0, 3},
		{Page{Limit: 2, Offset: 1}, 5, 1, 3},
		{Page{Limit: 2, Offset: 9}, 5, 5, 5},
		{Page{Limit: 0}, 5, 0, 0},
		{Page{Limit: -1, Offset: -3}, 4, 0, 4},
		{Page{Limit: math.MaxInt, Offset: 1}, 5, 1, 5},
		{Page{Limit: math.MaxInt, Offset: math.MaxInt}, 5, 5, 5},
	}
	for _, tt := range tests {
		start, end := tt.page.apply(tt.n)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestWithin_UnboundedKeepsUndated(t *testing.T) {
	e := testEngine()
	records := []domain.Record{
		{"transaction_date_time": "2026-10-10"},
		{"transaction_date_time": "not a date"},
	}

	assert.Len(t, e.within(records, period.AllTime(), TxnDateFields, period.ExcludeUnparseable), 2)
	assert.Len(t, e.within(records, resolve("this_month"), TxnDateFields, period.ExcludeUnparseable), 1)
	assert.Len(t, e.within(records, resolve("this_month"), TxnDateFields, period.IncludeUnparseable), 2)
}
