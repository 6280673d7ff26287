package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

// Stats summarizes the amounts of a record set.
type Stats struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// CalculateStats reads each record's first non-zero amount among fields.
// Records without one count as zero.
func CalculateStats(records []domain.Record, fields domain.Fields) Stats {
	if len(records) == 0 {
		return Stats{}
	}

	total := decimal.Zero
	lo, hi := decimal.Zero, decimal.Zero
	for i, r := range records {
		amt := r.Amount(fields)
		total = total.Add(amt)
		if i == 0 || amt.LessThan(lo) {
			lo = amt
		}
		if i == 0 || amt.GreaterThan(hi) {
			hi = amt
		}
	}

	return Stats{
		Count:   len(records),
		Total:   Money(total),
		Average: Money(total.Div(decimal.NewFromInt(int64(len(records))))),
		Min:     Money(lo),
		Max:     Money(hi),
	}
}
