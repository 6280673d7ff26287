package workbook

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

var headerSeparators = regexp.MustCompile(`[\s/]+`)

// NormalizeHeader trims a column header and replaces runs of whitespace and
// slashes with a single underscore. Case is kept.
func NormalizeHeader(h string) string {
	return headerSeparators.ReplaceAllString(strings.TrimSpace(h), "_")
}

// CellValue types a raw cell string using its spreadsheet cell type.
// Numbers become float64, booleans bool, error cells domain.CellError and
// text that looks like a JSON object or array is decoded when valid.
func CellValue(ct excelize.CellType, raw string) any {
	switch ct {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeError:
		return domain.CellError{Code: raw}
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return textValue(raw)
	}
	return textValue(raw)
}

func textValue(s string) any {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SheetKey is the response key for a sheet name: lower case with whitespace
// runs replaced by underscores, so "Flyy points" becomes "flyy_points".
func SheetKey(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}
