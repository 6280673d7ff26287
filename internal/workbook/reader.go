// Package workbook reads password-protected xlsx workbooks into records.
package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-records-api/internal/domain"
)

// ErrSheetNotFound is returned when a named sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// ByteSource loads raw workbook bytes from a path or URI.
type ByteSource interface {
	Read(ctx context.Context, location string) ([]byte, error)
}

// Reader opens workbooks from Source with one shared password.
type Reader struct {
	Source   ByteSource
	Password string
}

// Workbook is an opened workbook. Close it when done.
type Workbook struct {
	name string
	file *excelize.File
}

// Open fetches and decrypts the workbook at location.
func (r *Reader) Open(ctx context.Context, location string) (*Workbook, error) {
	data, err := r.Source.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("Open: fetching %s: %w", location, err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{Password: r.Password})
	if err != nil {
		return nil, fmt.Errorf("Open: decoding %s: %w", location, err)
	}
	return &Workbook{name: location, file: f}, nil
}

// SheetNames lists the sheets of the workbook at location in tab order.
func (r *Reader) SheetNames(ctx context.Context, location string) ([]string, error) {
	wb, err := r.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.SheetNames(), nil
}

// Rows reads one sheet of the workbook at location. An empty sheet name
// reads the first sheet.
func (r *Reader) Rows(ctx context.Context, location, sheet string) ([]domain.Record, error) {
	wb, err := r.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.Rows(sheet)
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames lists sheets in tab order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Rows converts a sheet to records keyed by normalized header. The first row
// is the header; columns with a blank header are skipped, as are rows with no
// values at all. An empty sheet name selects the first sheet.
func (w *Workbook) Rows(sheet string) ([]domain.Record, error) {
	sheets := w.SheetNames()
	if sheet == "" {
		if len(sheets) == 0 {
			return nil, fmt.Errorf("Rows: %s has no sheets: %w", w.name, ErrSheetNotFound)
		}
		sheet = sheets[0]
	} else if !contains(sheets, sheet) {
		return nil, fmt.Errorf("Rows: %q in %s: %w", sheet, w.name, ErrSheetNotFound)
	}

	grid, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("Rows: reading %q: %w", sheet, err)
	}
	if len(grid) < 2 {
		return []domain.Record{}, nil
	}

	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = NormalizeHeader(h)
	}

	records := make([]domain.Record, 0, len(grid)-1)
	for i, row := range grid[1:] {
		rowNum := i + 2
		rec := make(domain.Record, len(headers))
		empty := true
		for col, key := range headers {
			if key == "" {
				continue
			}
			if col >= len(row) || row[col] == "" {
				rec[key] = nil
				continue
			}
			empty = false

			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return nil, fmt.Errorf("Rows: addressing column %d row %d: %w", col+1, rowNum, err)
			}
			ct, err := w.file.GetCellType(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("Rows: typing %s!%s: %w", sheet, cell, err)
			}
			rec[key] = CellValue(ct, row[col])
		}
		if !empty {
			records = append(records, rec)
		}
	}
	return records, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Sheet is one sheet of a workbook with its rows.
type Sheet struct {
	Name string          `json:"name"`
	Key  string          `json:"key"`
	Rows []domain.Record `json:"rows"`
}

// ReadAll reads every sheet of the workbook at location in tab order,
// opening and decrypting it once.
func (r *Reader) ReadAll(ctx context.Context, location string) ([]Sheet, error) {
	wb, err := r.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	names := wb.SheetNames()
	out := make([]Sheet, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := wb.Rows(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Sheet{Name: name, Key: SheetKey(name), Rows: rows})
	}
	return out, nil
}
