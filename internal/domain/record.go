package domain

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Record represents one spreadsheet row keyed by normalized column name.
// Values are nil, string, float64, bool, decoded JSON (map/slice) or a
// spreadsheet error cell.
type Record map[string]any

// Fields is an ordered list of candidate column names for one logical value.
// Workbooks are not consistent about headers, so lookups walk the list and
// take the first populated column.
type Fields []string

const (
	// SheetKey tags merged rows with the sheet they were read from.
	SheetKey = "_sheet"

	// UnknownCountry is the sentinel for missing or garbage country values.
	UnknownCountry = "Unknown"
)

// Common field lists shared across datasets.
var (
	CountryFields  = Fields{"Country", "country"}
	TxnTypeFields  = Fields{"transactionType_dsc"}
	DebitFlagField = Fields{"credit_debit"}
)

// CellError is a spreadsheet error value such as #N/A or #VALUE!.
type CellError struct {
	Code string `json:"_error"`
}

// IsCellError reports whether v is an error cell, either as read from the
// workbook or after a JSON round trip through the cache.
func IsCellError(v any) bool {
	switch x := v.(type) {
	case CellError, *CellError:
		return true
	case map[string]any:
		_, ok := x["_error"]
		return ok
	}
	return false
}

// populated mirrors the spreadsheet convention that empty strings, zero and
// false mean "no value" when choosing between candidate columns.
func populated(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0
	case bool:
		return x
	case json.Number:
		return x.String() != "" && x.String() != "0"
	}
	return true
}

// Value returns the first populated value among fields.
func (r Record) Value(fields Fields) (any, bool) {
	for _, f := range fields {
		if v, ok := r[f]; ok && populated(v) {
			return v, true
		}
	}
	return nil, false
}

// String returns the first populated value among fields rendered as text.
// Error cells and structured values render as "".
func (r Record) String(fields Fields) string {
	for _, f := range fields {
		v, ok := r[f]
		if !ok || !populated(v) || IsCellError(v) {
			continue
		}
		if s := formatScalar(v); s != "" {
			return s
		}
	}
	return ""
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	}
	return ""
}

var leadingNumber = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)`)

// ParseAmount converts a cell value to a decimal. Thousands separators and a
// BHD currency marker are ignored; anything unparseable is zero.
func ParseAmount(v any) decimal.Decimal {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		s := strings.ReplaceAll(x, ",", "")
		s = strings.TrimSpace(strings.ReplaceAll(s, "BHD", ""))
		m := leadingNumber.FindString(s)
		if m == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(m)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// Amount returns the first non-zero amount among fields.
func (r Record) Amount(fields Fields) decimal.Decimal {
	for _, f := range fields {
		v, ok := r[f]
		if !ok || !populated(v) {
			continue
		}
		if d := ParseAmount(v); !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

// AbsAmount is Amount without sign.
func (r Record) AbsAmount(fields Fields) decimal.Decimal {
	return r.Amount(fields).Abs()
}

// Bool interprets a boolean column. Workbooks store booleans as TRUE/FALSE,
// 1/0 or real booleans depending on how the cell was typed.
func (r Record) Bool(field string) (value bool, ok bool) {
	switch x := r[field].(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

// IsFalse reports whether field holds an explicit false.
func (r Record) IsFalse(field string) bool {
	v, ok := r.Bool(field)
	return ok && !v
}

// Equals compares a column against a query string the way a loosely typed
// filter would: 123 equals "123".
func (r Record) Equals(field, want string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	return formatScalar(v) == want
}

// ContainsFold reports whether any of fields contains needle, ignoring case.
func (r Record) ContainsFold(fields Fields, needle string) bool {
	needle = strings.ToLower(needle)
	for _, f := range fields {
		v, ok := r[f]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(formatScalar(v)), needle) {
			return true
		}
	}
	return false
}

// Country returns the normalized country of a record, or UnknownCountry when
// the column is missing, empty, an error cell or not text.
func (r Record) Country(fields Fields) string {
	v, ok := r.Value(fields)
	if !ok {
		return UnknownCountry
	}
	s, isString := v.(string)
	if !isString {
		return UnknownCountry
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return UnknownCountry
	}
	return s
}

// IsLoad reports whether the record is a wallet top-up rather than a spend.
func (r Record) IsLoad() bool {
	return strings.EqualFold(strings.TrimSpace(r.String(TxnTypeFields)), "LOAD")
}

// IsDebit reports whether a card transaction moved money out.
func (r Record) IsDebit() bool {
	switch strings.ToUpper(strings.TrimSpace(r.String(DebitFlagField))) {
	case "DEBIT", "DR", "D":
		return true
	}
	return false
}

// IsCredit reports whether a card transaction moved money in.
func (r Record) IsCredit() bool {
	switch strings.ToUpper(strings.TrimSpace(r.String(DebitFlagField))) {
	case "CREDIT", "CR", "C":
		return true
	}
	return false
}

// Sheet returns the sheet a merged row came from.
func (r Record) Sheet() string {
	s, _ := r[SheetKey].(string)
	return s
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
