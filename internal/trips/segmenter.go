// Package trips reconstructs trips abroad from travel-card transactions.
//
// Transactions are ordered by date and grouped into runs of the same foreign
// country. A run ends when the country changes or when the gap since the
// previous transaction of the run exceeds the configured maximum.
package trips

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/domain"
)

// Defaults used when the Segmenter fields are left empty.
const (
	DefaultHomeCountry = "Bahrain"
	DefaultMaxGap      = 7 * 24 * time.Hour
)

// Default candidate columns.
var (
	DefaultDateFields   = domain.Fields{"Txn_Date"}
	DefaultAmountFields = domain.Fields{"Amount", "BHD_Amount", "amount", "txn_amt", "bill_amt"}
)

// Trip is a run of same-country transactions.
type Trip struct {
	ID               string          `json:"trip_id"`
	Country          string          `json:"country"`
	Start            time.Time       `json:"start_date"`
	End              time.Time       `json:"end_date"`
	TransactionCount int             `json:"transaction_count"`
	TotalSpend       decimal.Decimal `json:"total_spend"`
}

// DurationDays is the number of calendar days the trip touches, counting
// partial days at both ends.
func (t Trip) DurationDays() int {
	return int(math.Ceil(t.End.Sub(t.Start).Hours()/24)) + 1
}

// Contains reports whether ts falls inside the trip, bounds included.
func (t Trip) Contains(ts time.Time) bool {
	return !ts.Before(t.Start) && !ts.After(t.End)
}

// Segmenter groups transactions into trips. The zero value uses the
// defaults above and the local time zone.
type Segmenter struct {
	HomeCountry   string
	MaxGap        time.Duration
	Dates         *dates.Parser
	DateFields    domain.Fields
	CountryFields domain.Fields
	AmountFields  domain.Fields
}

type dated struct {
	record domain.Record
	date   time.Time
}

// Segment returns the trips found in records ordered by start date. Records
// without a parseable date, without a usable country, or in the home country
// are ignored. records is not modified.
func (s *Segmenter) Segment(records []domain.Record) []Trip {
	sorted := s.sortByDate(records)

	home := s.homeCountry()
	maxGap := s.maxGap()
	amountFields := s.amountFields()
	countryFields := s.countryFields()

	var out []Trip
	var open *Trip
	for _, d := range sorted {
		country := d.record.Country(countryFields)
		if country == domain.UnknownCountry || country == home {
			continue
		}

		if open == nil || open.Country != country || d.date.Sub(open.End) > maxGap {
			if open != nil {
				out = append(out, *open)
			}
			open = &Trip{
				ID:         TripID(country, d.date),
				Country:    country,
				Start:      d.date,
				TotalSpend: decimal.Zero,
			}
		}

		open.End = d.date
		open.TransactionCount++
		if !d.record.IsLoad() {
			open.TotalSpend = open.TotalSpend.Add(d.record.AbsAmount(amountFields))
		}
	}
	if open != nil {
		out = append(out, *open)
	}
	return out
}

func (s *Segmenter) sortByDate(records []domain.Record) []dated {
	fields := s.dateFields()
	out := make([]dated, 0, len(records))
	for _, r := range records {
		raw, ok := r.Value(fields)
		if !ok {
			continue
		}
		t, ok := s.Dates.Parse(raw)
		if !ok {
			continue
		}
		out = append(out, dated{record: r, date: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].date.Before(out[j].date)
	})
	return out
}

func (s *Segmenter) homeCountry() string {
	if s.HomeCountry == "" {
		return DefaultHomeCountry
	}
	return s.HomeCountry
}

func (s *Segmenter) maxGap() time.Duration {
	if s.MaxGap <= 0 {
		return DefaultMaxGap
	}
	return s.MaxGap
}

func (s *Segmenter) dateFields() domain.Fields {
	if len(s.DateFields) == 0 {
		return DefaultDateFields
	}
	return s.DateFields
}

func (s *Segmenter) countryFields() domain.Fields {
	if len(s.CountryFields) == 0 {
		return domain.CountryFields
	}
	return s.CountryFields
}

func (s *Segmenter) amountFields() domain.Fields {
	if len(s.AmountFields) == 0 {
		return DefaultAmountFields
	}
	return s.AmountFields
}

var whitespace = regexp.MustCompile(`\s+`)

// TripID builds the identifier of a trip starting at start in country, for
// example "SaudiArabia_202411_5". The day is not zero padded.
func TripID(country string, start time.Time) string {
	id := fmt.Sprintf("%s_%04d%02d_%d", country, start.Year(), int(start.Month()), start.Day())
	return whitespace.ReplaceAllString(id, "")
}

// FindByID returns the trip with exactly the given id.
func FindByID(trips []Trip, id string) (Trip, bool) {
	for _, t := range trips {
		if t.ID == id {
			return t, true
		}
	}
	return Trip{}, false
}
