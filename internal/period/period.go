// Package period resolves loose time expressions such as "last_month" or
// "week_2_november_2024" into concrete date ranges.
package period

import (
	"fmt"
	"time"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

// AllTimeLabel is the label of the unbounded period.
const AllTimeLabel = "All Time"

// Period is a closed interval. A zero Start or End leaves that side open.
type Period struct {
	Start time.Time
	End   time.Time
	Label string
}

// AllTime returns the unbounded period.
func AllTime() Period {
	return Period{Label: AllTimeLabel}
}

// Month returns a whole calendar month labelled like "October 2026". A nil
// loc means time.Local.
func Month(year int, month time.Month, loc *time.Location) Period {
	if loc == nil {
		loc = time.Local
	}
	start, end := monthRange(year, month, loc)
	return Period{Start: start, End: end, Label: fmt.Sprintf("%s %d", month, year)}
}

// IsUnbounded reports whether neither side is bounded.
func (p Period) IsUnbounded() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// Contains reports whether t lies inside p, bounds included.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && t.After(p.End) {
		return false
	}
	return true
}

// Policy decides what Filter does with records whose date cannot be parsed.
type Policy int

const (
	// ExcludeUnparseable drops records without a usable date.
	ExcludeUnparseable Policy = iota
	// IncludeUnparseable keeps records without a usable date.
	IncludeUnparseable
)

// DateFunc extracts a record's date.
type DateFunc func(domain.Record) (time.Time, bool)

// Filter returns the records whose date lies inside p. The input slice is
// not modified.
func Filter(records []domain.Record, p Period, dateOf DateFunc, policy Policy) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		t, ok := dateOf(r)
		if !ok {
			if policy == IncludeUnparseable {
				out = append(out, r)
			}
			continue
		}
		if p.Contains(t) {
			out = append(out, r)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func monthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, endOfDay(start.AddDate(0, 1, -1))
}
