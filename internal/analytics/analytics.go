// Package analytics aggregates workbook records into the answers served to
// the financial assistant: spend, remittance, rewards and travel summaries.
// Every function is pure over its inputs; the Engine only carries settings.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/trips"
)

// Display layouts.
const (
	DayLayout      = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Header opens every tool response.
type Header struct {
	Success bool   `json:"success"`
	Tool    string `json:"tool"`
}

func header(tool string) Header {
	return Header{Success: true, Tool: tool}
}

// Strategies maps spend categories to card recommendations.
type Strategies struct {
	Default    string
	Categories map[string]string
}

// Engine holds the settings shared by the analytics functions.
type Engine struct {
	Dates      *dates.Parser
	Now        func() time.Time
	Segmenter  *trips.Segmenter
	FXRates    map[string]float64
	Strategies Strategies
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) segmenter() *trips.Segmenter {
	if e.Segmenter == nil {
		return &trips.Segmenter{Dates: e.Dates}
	}
	return e.Segmenter
}

// dateOf parses the first populated field of fields.
func (e *Engine) dateOf(fields domain.Fields) period.DateFunc {
	return func(r domain.Record) (time.Time, bool) {
		raw, ok := r.Value(fields)
		if !ok {
			return time.Time{}, false
		}
		return e.Dates.Parse(raw)
	}
}

// within keeps the records dated inside p. An unbounded period keeps
// everything, dated or not.
func (e *Engine) within(records []domain.Record, p period.Period, fields domain.Fields, policy period.Policy) []domain.Record {
	if p.IsUnbounded() {
		return records
	}
	return period.Filter(records, p, e.dateOf(fields), policy)
}

// displayDate renders a record date for output, falling back to the raw
// text when it cannot be parsed.
func (e *Engine) displayDate(r domain.Record, fields domain.Fields, layout string) string {
	if t, ok := e.dateOf(fields)(r); ok {
		return t.Format(layout)
	}
	return r.String(fields)
}

// Money rounds to two places for output.
func Money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Page selects a window of search results.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(n int) (int, int) {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.Limit >= 0 && p.Limit < n-start {
		end = start + p.Limit
	}
	return start, end
}

// bucket accumulates a total and a count.
type bucket struct {
	total decimal.Decimal
	count int
}

type buckets map[string]*bucket

func (b buckets) add(key string, amount decimal.Decimal) {
	acc, ok := b[key]
	if !ok {
		acc = &bucket{total: decimal.Zero}
		b[key] = acc
	}
	acc.total = acc.total.Add(amount)
	acc.count++
}

// sortedDesc returns the keys ordered by total descending, then by key.
func (b buckets) sortedDesc() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := b[keys[i]].total, b[keys[j]].total
		if !ti.Equal(tj) {
			return ti.GreaterThan(tj)
		}
		return keys[i] < keys[j]
	})
	return keys
}

func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}
