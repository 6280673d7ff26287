package period

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-records-api/internal/dates"
	"github.com/dvloznov/finance-records-api/internal/domain"
)

// Thursday.
var fixedNow = time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)

func testResolver() *Resolver {
	return &Resolver{Location: time.UTC, Now: func() time.Time { return fixedNow }}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func eod(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		token string
		start time.Time
		end   time.Time
		label string
	}{
		{"today", day(2026, 10, 15), eod(2026, 10, 15), "Today"},
		{"yesterday", day(2026, 10, 14), eod(2026, 10, 14), "Yesterday"},
		{"week", fixedNow.AddDate(0, 0, -7), fixedNow, "Last 7 Days"},
		{"this_week", fixedNow.AddDate(0, 0, -7), fixedNow, "Last 7 Days"},
		{"last_7_days", fixedNow.AddDate(0, 0, -7), fixedNow, "Last 7 Days"},
		{"last_week", day(2026, 10, 4), eod(2026, 10, 10), "Last Week"},
		{"previous_week", day(2026, 10, 4), eod(2026, 10, 10), "Last Week"},
		{"month", day(2026, 10, 1), fixedNow, "This Month"},
		{"this_month", day(2026, 10, 1), fixedNow, "This Month"},
		{"last_month", day(2026, 9, 1), eod(2026, 9, 30), "Last Month"},
		{"previous_month", day(2026, 9, 1), eod(2026, 9, 30), "Last Month"},
		{"last_3_months", time.Date(2026, 7, 15, 14, 30, 0, 0, time.UTC), fixedNow, "Last 3 Months"},
		{"last_6_months", time.Date(2026, 4, 15, 14, 30, 0, 0, time.UTC), fixedNow, "Last 6 Months"},
		{"year", day(2026, 1, 1), fixedNow, "This Year"},
		{"this_year", day(2026, 1, 1), fixedNow, "This Year"},
		{"last_year", day(2025, 1, 1), eod(2025, 12, 31), "Last Year"},
		{"previous_year", day(2025, 1, 1), eod(2025, 12, 31), "Last Year"},
		{"last_30_days", fixedNow.AddDate(0, 0, -30), fixedNow, "Last 30 Days"},
		{"last_90_days", fixedNow.AddDate(0, 0, -90), fixedNow, "Last 90 Days"},

		{"week_2_november_2024", day(2024, 11, 8), eod(2024, 11, 14), "Week 2 of November 2024"},
		{"2nd_week_of_november_2024", day(2024, 11, 8), eod(2024, 11, 14), "Week 2 of November 2024"},
		{"october_week_2", day(2026, 10, 8), eod(2026, 10, 14), "Week 2 of October 2026"},
		{"october_2024_week_3", day(2024, 10, 15), eod(2024, 10, 21), "Week 3 of October 2024"},
		{"2024_october_week_first", day(2024, 10, 1), eod(2024, 10, 7), "Week 1 of October 2024"},
		{"week_5_march_2026", day(2026, 3, 29), eod(2026, 3, 31), "Week 5 of March 2026"},
		{"last_week_of_february_2024", day(2024, 2, 23), eod(2024, 2, 29), "Last Week of February 2024"},
		{"week_1_december", day(2025, 12, 1), eod(2025, 12, 7), "Week 1 of December 2025"},

		{"november_2024", day(2024, 11, 1), eod(2024, 11, 30), "November 2024"},
		{"2024_11", day(2024, 11, 1), eod(2024, 11, 30), "November 2024"},
		{"11_2024", day(2024, 11, 1), eod(2024, 11, 30), "November 2024"},
		{"dec-2024", day(2024, 12, 1), eod(2024, 12, 31), "December 2024"},
		{"2024", day(2024, 1, 1), eod(2024, 12, 31), "Year 2024"},
		{"march", day(2026, 3, 1), eod(2026, 3, 31), "March 2026"},
		{"october", day(2026, 10, 1), eod(2026, 10, 31), "October 2026"},
		{"november", day(2025, 11, 1), eod(2025, 11, 30), "November 2025"},
		{"sept", day(2026, 9, 1), eod(2026, 9, 30), "September 2026"},
	}

	r := testResolver()
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := r.Resolve(tt.token)
			assert.True(t, tt.start.Equal(got.Start), "start: got %v want %v", got.Start, tt.start)
			assert.True(t, tt.end.Equal(got.End), "end: got %v want %v", got.End, tt.end)
			assert.Equal(t, tt.label, got.Label)
		})
	}
}

func TestResolve_AllTime(t *testing.T) {
	tokens := []string{
		"",
		"   ",
		"all",
		"all_time",
		"gibberish",
		"1999",
		"2101",
		"13_2024",
		"november_1999",
		"week_1_october_1999",
		"week_5_february_2025",
		"week_6_march_2025",
	}

	r := testResolver()
	for _, tok := range tokens {
		t.Run(tok, func(t *testing.T) {
			got := r.Resolve(tok)
			assert.True(t, got.IsUnbounded())
			assert.Equal(t, AllTimeLabel, got.Label)
		})
	}
}

func TestResolve_Normalization(t *testing.T) {
	r := testResolver()
	want := r.Resolve("last_month")

	for _, tok := range []string{"Last Month", "  LAST-MONTH ", "last  month", "last__month"} {
		assert.Equal(t, want, r.Resolve(tok), tok)
	}
}

func TestResolve_Invariants(t *testing.T) {
	tokens := []string{
		"today", "yesterday", "week", "last_week", "month", "last_month",
		"last_3_months", "last_6_months", "year", "last_year", "last_30_days",
		"last_90_days", "week_2_november_2024", "last_week_of_february_2025",
		"november_2024", "2024", "march", "december",
	}

	r := testResolver()
	for _, tok := range tokens {
		p := r.Resolve(tok)
		require.False(t, p.Start.IsZero(), tok)
		require.False(t, p.End.IsZero(), tok)
		assert.False(t, p.End.Before(p.Start), tok)
		assert.Equal(t, time.UTC, p.Start.Location(), tok)
	}
}

func TestResolve_FreshPerCall(t *testing.T) {
	r := testResolver()
	a := r.Resolve("last_month")
	a.Start = time.Time{}
	b := r.Resolve("last_month")
	assert.False(t, b.Start.IsZero())
}

func TestResolve_NilClockDefaults(t *testing.T) {
	var r Resolver
	p := r.Resolve("today")
	assert.Equal(t, "Today", p.Label)
	assert.True(t, p.Contains(time.Now()))
}

func TestPeriodContains(t *testing.T) {
	p := Period{Start: day(2024, 11, 1), End: eod(2024, 11, 30)}

	assert.True(t, p.Contains(p.Start))
	assert.True(t, p.Contains(p.End))
	assert.True(t, p.Contains(time.Date(2024, 11, 30, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(p.Start.Add(-time.Nanosecond)))
	assert.False(t, p.Contains(day(2024, 12, 1)))

	openEnded := Period{Start: day(2024, 11, 1)}
	assert.True(t, openEnded.Contains(day(2099, 1, 1)))
	assert.True(t, AllTime().Contains(day(1900, 1, 1)))
}

func TestFilter(t *testing.T) {
	parser := dates.New(time.UTC)
	dateOf := func(r domain.Record) (time.Time, bool) {
		return parser.Parse(r["Txn_Date"])
	}

	records := []domain.Record{
		{"id": "a", "Txn_Date": "2024-11-05 10:00:00"},
		{"id": "b", "Txn_Date": "2024-12-01 00:00:00"},
		{"id": "c", "Txn_Date": "garbage"},
		{"id": "d", "Txn_Date": 45609.0}, // 2024-11-13
	}
	p := Period{Start: day(2024, 11, 1), End: eod(2024, 11, 30)}

	ids := func(rs []domain.Record) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r["id"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"a", "d"}, ids(Filter(records, p, dateOf, ExcludeUnparseable)))
	assert.Equal(t, []string{"a", "c", "d"}, ids(Filter(records, p, dateOf, IncludeUnparseable)))
	assert.Equal(t, []string{"a", "b", "d"}, ids(Filter(records, AllTime(), dateOf, ExcludeUnparseable)))
	assert.Len(t, records, 4)
}

func TestFilter_RoundTrip(t *testing.T) {
	parser := dates.New(time.UTC)
	dateOf := func(r domain.Record) (time.Time, bool) {
		return parser.Parse(r["date"])
	}
	r := testResolver()

	for _, tok := range []string{"last_month", "week_2_november_2024", "2024", "today", "last_week"} {
		p := r.Resolve(tok)
		inside := []domain.Record{{"date": p.End.Format("2006-01-02 15:04:05")}}
		before := []domain.Record{{"date": p.Start.Add(-time.Second).Format("2006-01-02 15:04:05")}}
		after := []domain.Record{{"date": p.End.Add(time.Second).Format("2006-01-02 15:04:05")}}

		assert.Len(t, Filter(inside, p, dateOf, ExcludeUnparseable), 1, tok)
		assert.Empty(t, Filter(before, p, dateOf, ExcludeUnparseable), tok)
		assert.Empty(t, Filter(after, p, dateOf, ExcludeUnparseable), tok)
	}
}

func TestResolve_MonthYearAllYears(t *testing.T) {
	r := testResolver()
	for y := 2000; y <= 2100; y++ {
		for m := time.January; m <= time.December; m++ {
			p := r.Resolve(m.String() + "_" + strconv.Itoa(y))
			last := dates.DaysIn(y, m)
			require.True(t, day(y, m, 1).Equal(p.Start), "%s %d", m, y)
			require.True(t, eod(y, m, last).Equal(p.End), "%s %d", m, y)
		}
	}
}

func TestResolve_DocumentedExamples(t *testing.T) {
	r := testResolver()

	p := r.Resolve("week_1_november_2024")
	assert.True(t, day(2024, 11, 1).Equal(p.Start))
	assert.True(t, eod(2024, 11, 7).Equal(p.End))
	assert.Equal(t, "Week 1 of November 2024", p.Label)

	p = r.Resolve("last_week_of_december_2023")
	assert.True(t, day(2023, 12, 25).Equal(p.Start))
	assert.True(t, eod(2023, 12, 31).Equal(p.End))
	assert.Equal(t, "Last Week of December 2023", p.Label)

	p = r.Resolve("not_a_real_token")
	assert.True(t, p.IsUnbounded())
	assert.Equal(t, AllTimeLabel, p.Label)
}

func TestMonth(t *testing.T) {
	p := Month(2024, time.February, time.UTC)
	assert.Equal(t, "February 2024", p.Label)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.True(t, p.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	local := Month(2026, time.October, nil)
	assert.Equal(t, time.Local, local.Start.Location())
}
