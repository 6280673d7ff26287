// Package dates turns spreadsheet cell values into timestamps.
//
// Cells arrive either as serial day numbers (days since 1899-12-30) or as
// text in one of a handful of layouts. All results are naive wall-clock
// times in the parser's location; nothing is converted between zones.
//
// Slash dates are always day-first: 05/11/2025 is 5 November. The workbooks
// come from a DD/MM locale, so month-first is never tried.
package dates

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialUnixEpoch is the serial day number of 1970-01-01.
const serialUnixEpoch = 25569

// layouts are tried in order against trimmed text values.
var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01-02T15:04:05.000Z",
	"Jan 2, 2006, 3:04 PM",
	"January 2, 2006, 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006, 3:04 pm",
	"January 2, 2006, 3:04 pm",
	"Jan 2, 2006 3:04 pm",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// zonedLayouts carry an offset that is dropped, keeping the wall clock.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var dayFirst = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

// Parser converts raw cell values to timestamps in Location.
type Parser struct {
	Location *time.Location
}

// New returns a parser bound to loc. A nil loc means time.Local.
func New(loc *time.Location) *Parser {
	return &Parser{Location: loc}
}

var local = &Parser{}

// ParseTimestamp parses raw using the local time zone.
func ParseTimestamp(raw any) (time.Time, bool) {
	return local.Parse(raw)
}

func (p *Parser) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Parse returns the timestamp for raw, or false when raw is empty, of an
// unsupported type, or text that matches no known layout.
func (p *Parser) Parse(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case float64:
		return p.fromSerial(v)
	case float32:
		return p.fromSerial(float64(v))
	case int:
		return p.fromSerial(float64(v))
	case int8:
		return p.fromSerial(float64(v))
	case int16:
		return p.fromSerial(float64(v))
	case int32:
		return p.fromSerial(float64(v))
	case int64:
		return p.fromSerial(float64(v))
	case uint:
		return p.fromSerial(float64(v))
	case uint8:
		return p.fromSerial(float64(v))
	case uint16:
		return p.fromSerial(float64(v))
	case uint32:
		return p.fromSerial(float64(v))
	case uint64:
		return p.fromSerial(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return p.fromSerial(f)
	case string:
		return p.fromText(v)
	}
	return time.Time{}, false
}

// fromSerial floors fractional serials to whole days.
func (p *Parser) fromSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, false
	}
	// Keep well inside time.Time's range.
	if serial < -1e7 || serial > 1e7 {
		return time.Time{}, false
	}
	days := int(math.Floor(serial)) - serialUnixEpoch
	return time.Date(1970, time.January, 1+days, 0, 0, 0, 0, p.location()), true
}

func (p *Parser) fromText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	loc := p.location()
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return wallClock(t, loc), true
		}
	}

	return p.fromDayFirst(s)
}

func (p *Parser) fromDayFirst(s string) (time.Time, bool) {
	m := dayFirst.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, minute, sec := 0, 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	if m[6] != "" {
		sec, _ = strconv.Atoi(m[6])
	}

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	if day > DaysIn(year, time.Month(month)) {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, p.location()), true
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
