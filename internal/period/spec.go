package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-records-api/internal/dates"
)

// Kind identifies the shape of a parsed period expression.
type Kind int

const (
	KindAllTime Kind = iota
	KindToday
	KindYesterday
	KindRolling     // N units back from now
	KindLastWeek    // previous Sunday..Saturday week
	KindThisMonth   // month to date
	KindLastMonth   // previous calendar month
	KindThisYear    // year to date
	KindLastYear    // previous calendar year
	KindWeekOfMonth // Week of Month/Year, Week -1 means last
	KindMonth       // whole Month of Year
	KindYear        // whole Year
)

// Unit is the step of a rolling window.
type Unit int

const (
	UnitDay Unit = iota
	UnitMonth
)

// LastWeekOfMonth is the Week value selecting the final seven days.
const LastWeekOfMonth = -1

const (
	minYear = 2000
	maxYear = 2100
)

// Spec is a parsed period expression, not yet anchored to a clock.
type Spec struct {
	Kind  Kind
	N     int
	Unit  Unit
	Year  int
	Month time.Month
	Week  int
}

var keywords = map[string]Spec{
	"today":          {Kind: KindToday},
	"yesterday":      {Kind: KindYesterday},
	"week":           {Kind: KindRolling, N: 7, Unit: UnitDay},
	"this_week":      {Kind: KindRolling, N: 7, Unit: UnitDay},
	"last_7_days":    {Kind: KindRolling, N: 7, Unit: UnitDay},
	"last_week":      {Kind: KindLastWeek},
	"previous_week":  {Kind: KindLastWeek},
	"month":          {Kind: KindThisMonth},
	"this_month":     {Kind: KindThisMonth},
	"last_month":     {Kind: KindLastMonth},
	"previous_month": {Kind: KindLastMonth},
	"last_3_months":  {Kind: KindRolling, N: 3, Unit: UnitMonth},
	"last_6_months":  {Kind: KindRolling, N: 6, Unit: UnitMonth},
	"year":           {Kind: KindThisYear},
	"this_year":      {Kind: KindThisYear},
	"last_year":      {Kind: KindLastYear},
	"previous_year":  {Kind: KindLastYear},
	"last_30_days":   {Kind: KindRolling, N: 30, Unit: UnitDay},
	"last_90_days":   {Kind: KindRolling, N: 90, Unit: UnitDay},
	"all":            {Kind: KindAllTime},
	"all_time":       {Kind: KindAllTime},
}

var months = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		months[full] = m
		months[full[:3]] = m
	}
	months["sept"] = time.September
}

var weekSelectors = map[string]int{
	"first": 1, "1st": 1, "1": 1,
	"second": 2, "2nd": 2, "2": 2,
	"third": 3, "3rd": 3, "3": 3,
	"fourth": 4, "4th": 4, "4": 4,
	"fifth": 5, "5th": 5, "5": 5,
	"last": LastWeekOfMonth,
}

var separators = regexp.MustCompile(`[\s_\-]+`)

// Normalize lowercases token and joins its words with underscores.
func Normalize(token string) string {
	s := strings.ToLower(strings.TrimSpace(token))
	s = separators.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

const (
	sel   = `(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th|[1-5]|last)`
	name  = `([a-z]+)`
	year4 = `(\d{4})`
	num12 = `([a-z]+|\d{1,2})`
)

// weekPattern captures the selector, month and year groups of one surface
// syntax. Index 0 means the group is absent.
type weekPattern struct {
	re    *regexp.Regexp
	sel   int
	month int
	year  int
}

var weekPatterns = []weekPattern{
	{regexp.MustCompile(`^week_` + sel + `_` + name + `(?:_` + year4 + `)?$`), 1, 2, 3},
	{regexp.MustCompile(`^` + sel + `_week_` + name + `(?:_` + year4 + `)?$`), 1, 2, 3},
	{regexp.MustCompile(`^` + name + `_week_` + sel + `(?:_` + year4 + `)?$`), 2, 1, 3},
	{regexp.MustCompile(`^` + name + `_` + year4 + `_week_` + sel + `$`), 3, 1, 2},
	{regexp.MustCompile(`^` + year4 + `_` + name + `_week_` + sel + `$`), 3, 2, 1},
}

var (
	monthYear = regexp.MustCompile(`^` + num12 + `_` + year4 + `$`)
	yearMonth = regexp.MustCompile(`^` + year4 + `_` + num12 + `$`)
	yearOnly  = regexp.MustCompile(`^` + year4 + `$`)
)

// matcher recognises one family of expressions.
type matcher func(token string, now time.Time) (Spec, bool)

var matchers = []matcher{
	matchKeyword,
	matchWeekOfMonth,
	matchMonthYear,
	matchYear,
	matchBareMonth,
}

// Parse turns token into a Spec. Anything unrecognised is all time.
func Parse(token string, now time.Time) Spec {
	t := Normalize(token)
	if t == "" {
		return Spec{Kind: KindAllTime}
	}
	for _, m := range matchers {
		if s, ok := m(t, now); ok {
			return s
		}
	}
	return Spec{Kind: KindAllTime}
}

func matchKeyword(token string, _ time.Time) (Spec, bool) {
	s, ok := keywords[token]
	return s, ok
}

// fillerWords are dropped from week-of-month expressions.
var fillerWords = map[string]bool{"of": true, "in": true, "the": true}

func dropFiller(token string) string {
	parts := strings.Split(token, "_")
	kept := parts[:0]
	for _, p := range parts {
		if !fillerWords[p] {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

func matchWeekOfMonth(token string, now time.Time) (Spec, bool) {
	token = dropFiller(token)
	for _, p := range weekPatterns {
		m := p.re.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		month, ok := months[m[p.month]]
		if !ok {
			continue
		}
		year := defaultYear(month, now)
		if m[p.year] != "" {
			y, ok := parseYear(m[p.year])
			if !ok {
				continue
			}
			year = y
		}
		week := weekSelectors[m[p.sel]]
		if week != LastWeekOfMonth && (week-1)*7+1 > dates.DaysIn(year, month) {
			continue
		}
		return Spec{Kind: KindWeekOfMonth, Year: year, Month: month, Week: week}, true
	}
	return Spec{}, false
}

func matchMonthYear(token string, _ time.Time) (Spec, bool) {
	var monthPart, yearPart string
	if m := monthYear.FindStringSubmatch(token); m != nil {
		monthPart, yearPart = m[1], m[2]
	} else if m := yearMonth.FindStringSubmatch(token); m != nil {
		yearPart, monthPart = m[1], m[2]
	} else {
		return Spec{}, false
	}

	month, ok := parseMonth(monthPart)
	if !ok {
		return Spec{}, false
	}
	year, ok := parseYear(yearPart)
	if !ok {
		return Spec{}, false
	}
	return Spec{Kind: KindMonth, Year: year, Month: month}, true
}

func matchYear(token string, _ time.Time) (Spec, bool) {
	if !yearOnly.MatchString(token) {
		return Spec{}, false
	}
	year, ok := parseYear(token)
	if !ok {
		return Spec{}, false
	}
	return Spec{Kind: KindYear, Year: year}, true
}

func matchBareMonth(token string, now time.Time) (Spec, bool) {
	month, ok := months[token]
	if !ok {
		return Spec{}, false
	}
	return Spec{Kind: KindMonth, Year: defaultYear(month, now), Month: month}, true
}

func parseMonth(s string) (time.Month, bool) {
	if m, ok := months[s]; ok {
		return m, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0, false
	}
	return time.Month(n), true
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil || y < minYear || y > maxYear {
		return 0, false
	}
	return y, true
}

// defaultYear picks the most recent occurrence of month: this year, or last
// year when month has not started yet.
func defaultYear(month time.Month, now time.Time) int {
	if month > now.Month() {
		return now.Year() - 1
	}
	return now.Year()
}

// Interval anchors s to now.
func (s Spec) Interval(now time.Time) Period {
	loc := now.Location()
	switch s.Kind {
	case KindToday:
		return Period{Start: startOfDay(now), End: endOfDay(now), Label: "Today"}
	case KindYesterday:
		y := now.AddDate(0, 0, -1)
		return Period{Start: startOfDay(y), End: endOfDay(y), Label: "Yesterday"}
	case KindRolling:
		if s.Unit == UnitMonth {
			return Period{Start: now.AddDate(0, -s.N, 0), End: now, Label: fmt.Sprintf("Last %d Months", s.N)}
		}
		return Period{Start: now.AddDate(0, 0, -s.N), End: now, Label: fmt.Sprintf("Last %d Days", s.N)}
	case KindLastWeek:
		sunday := startOfDay(now).AddDate(0, 0, -int(now.Weekday())-7)
		return Period{Start: sunday, End: endOfDay(sunday.AddDate(0, 0, 6)), Label: "Last Week"}
	case KindThisMonth:
		return Period{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc), End: now, Label: "This Month"}
	case KindLastMonth:
		first := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, loc)
		start, end := monthRange(first.Year(), first.Month(), loc)
		return Period{Start: start, End: end, Label: "Last Month"}
	case KindThisYear:
		return Period{Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc), End: now, Label: "This Year"}
	case KindLastYear:
		y := now.Year() - 1
		return Period{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   endOfDay(time.Date(y, time.December, 31, 0, 0, 0, 0, loc)),
			Label: "Last Year",
		}
	case KindWeekOfMonth:
		return s.weekInterval(loc)
	case KindMonth:
		start, end := monthRange(s.Year, s.Month, loc)
		return Period{Start: start, End: end, Label: fmt.Sprintf("%s %d", s.Month, s.Year)}
	case KindYear:
		return Period{
			Start: time.Date(s.Year, time.January, 1, 0, 0, 0, 0, loc),
			End:   endOfDay(time.Date(s.Year, time.December, 31, 0, 0, 0, 0, loc)),
			Label: fmt.Sprintf("Year %d", s.Year),
		}
	}
	return AllTime()
}

func (s Spec) weekInterval(loc *time.Location) Period {
	days := dates.DaysIn(s.Year, s.Month)
	if s.Week == LastWeekOfMonth {
		first := days - 6
		if first < 1 {
			first = 1
		}
		return Period{
			Start: time.Date(s.Year, s.Month, first, 0, 0, 0, 0, loc),
			End:   endOfDay(time.Date(s.Year, s.Month, days, 0, 0, 0, 0, loc)),
			Label: fmt.Sprintf("Last Week of %s %d", s.Month, s.Year),
		}
	}

	first := (s.Week-1)*7 + 1
	last := s.Week * 7
	if last > days {
		last = days
	}
	return Period{
		Start: time.Date(s.Year, s.Month, first, 0, 0, 0, 0, loc),
		End:   endOfDay(time.Date(s.Year, s.Month, last, 0, 0, 0, 0, loc)),
		Label: fmt.Sprintf("Week %d of %s %d", s.Week, s.Month, s.Year),
	}
}
