package workbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

const testPassword = "open-sesame"

type mockSource struct {
	ReadFunc func(ctx context.Context, location string) ([]byte, error)
}

func (m *mockSource) Read(ctx context.Context, location string) ([]byte, error) {
	return m.ReadFunc(ctx, location)
}

func fileSource() *mockSource {
	return &mockSource{ReadFunc: func(_ context.Context, location string) ([]byte, error) {
		return os.ReadFile(location)
	}}
}

// writeTestWorkbook builds an encrypted workbook with a "Transactions" sheet
// holding two data rows and a header-only "Load" sheet.
func writeTestWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Transactions"))
	require.NoError(t, f.SetSheetRow("Transactions", "A1", &[]any{"Txn Date", "Country", "BHD / Amount", "Active", "Meta", ""}))
	require.NoError(t, f.SetSheetRow("Transactions", "A2", &[]any{45587.0, "India", 12.5, true, `{"k":"v"}`}))
	require.NoError(t, f.SetSheetRow("Transactions", "A4", &[]any{"2024-10-22 10:00:00", "Thailand", "1,200.50", false, "[1,2"}))

	_, err := f.NewSheet("Load")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Load", "A1", &[]any{"Txn_Date", "Amount"}))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path, excelize.Options{Password: testPassword}))
	return path
}

func TestReader_Rows(t *testing.T) {
	path := writeTestWorkbook(t)
	r := &Reader{Source: fileSource(), Password: testPassword}

	rows, err := r.Rows(context.Background(), path, "Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank rows are skipped")

	first := rows[0]
	assert.Equal(t, 45587.0, first["Txn_Date"])
	assert.Equal(t, "India", first["Country"])
	assert.Equal(t, 12.5, first["BHD_Amount"])
	assert.Equal(t, true, first["Active"])
	assert.Equal(t, map[string]any{"k": "v"}, first["Meta"])
	assert.NotContains(t, first, "")

	second := rows[1]
	assert.Equal(t, "2024-10-22 10:00:00", second["Txn_Date"])
	assert.Equal(t, "1,200.50", second["BHD_Amount"])
	assert.Equal(t, false, second["Active"])
	assert.Equal(t, "[1,2", second["Meta"])
	assert.True(t, second.AbsAmount(domain.Fields{"BHD_Amount"}).Equal(domain.ParseAmount("1200.5")))
}

func TestReader_FirstSheetByDefault(t *testing.T) {
	path := writeTestWorkbook(t)
	r := &Reader{Source: fileSource(), Password: testPassword}

	rows, err := r.Rows(context.Background(), path, "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReader_HeaderOnlySheet(t *testing.T) {
	path := writeTestWorkbook(t)
	r := &Reader{Source: fileSource(), Password: testPassword}

	rows, err := r.Rows(context.Background(), path, "Load")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReader_SheetNames(t *testing.T) {
	path := writeTestWorkbook(t)
	r := &Reader{Source: fileSource(), Password: testPassword}

	names, err := r.SheetNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Transactions", "Load"}, names)
}

func TestReader_Errors(t *testing.T) {
	path := writeTestWorkbook(t)
	ctx := context.Background()

	wrong := &Reader{Source: fileSource(), Password: "nope"}
	_, err := wrong.Rows(ctx, path, "")
	assert.Error(t, err)

	r := &Reader{Source: fileSource(), Password: testPassword}
	_, err = r.Rows(ctx, path, "Flyy points")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	boom := errors.New("bucket unavailable")
	failing := &Reader{Source: &mockSource{ReadFunc: func(context.Context, string) ([]byte, error) {
		return nil, boom
	}}}
	_, err = failing.SheetNames(ctx, "gs://b/book.xlsx")
	assert.ErrorIs(t, err, boom)

	garbage := &Reader{Source: &mockSource{ReadFunc: func(context.Context, string) ([]byte, error) {
		return []byte("not a workbook"), nil
	}}}
	_, err = garbage.SheetNames(ctx, "junk.xlsx")
	assert.Error(t, err)
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Txn Date":        "Txn_Date",
		"  BHD / Amount ": "BHD_Amount",
		"Created_At":      "Created_At",
		"a\tb  c":         "a_b_c",
		"in/out":          "in_out",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestCellValue(t *testing.T) {
	tests := []struct {
		name string
		ct   excelize.CellType
		raw  string
		want any
	}{
		{"number", excelize.CellTypeNumber, "45587", 45587.0},
		{"untyped number", excelize.CellTypeUnset, "12.5", 12.5},
		{"untyped text", excelize.CellTypeUnset, "abc", "abc"},
		{"numeric shared string stays text", excelize.CellTypeSharedString, "45587", "45587"},
		{"bool true", excelize.CellTypeBool, "1", true},
		{"bool false", excelize.CellTypeBool, "0", false},
		{"error", excelize.CellTypeError, "#N/A", domain.CellError{Code: "#N/A"}},
		{"json object", excelize.CellTypeSharedString, `{"a":1}`, map[string]any{"a": 1.0}},
		{"json array", excelize.CellTypeInlineString, `["x"]`, []any{"x"}},
		{"broken json", excelize.CellTypeSharedString, `{oops`, `{oops`},
		{"formula text", excelize.CellTypeFormula, "Bahrain", "Bahrain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CellValue(tt.ct, tt.raw))
		})
	}
}

func TestReader_ReadAll(t *testing.T) {
	path := writeTestWorkbook(t)
	r := &Reader{Source: fileSource(), Password: testPassword}

	sheets, err := r.ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "Transactions", sheets[0].Name)
	assert.Equal(t, "transactions", sheets[0].Key)
	assert.Len(t, sheets[0].Rows, 2)
	assert.Equal(t, "load", sheets[1].Key)
	assert.Empty(t, sheets[1].Rows)
}

func TestSheetKey(t *testing.T) {
	assert.Equal(t, "flyy_points", SheetKey("Flyy points"))
	assert.Equal(t, "load", SheetKey(" Load "))
	assert.Equal(t, "txn_history_2024", SheetKey("Txn  History\t2024"))
}
