// Package dataset loads the four finance workbooks through the tiered cache.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

// Name identifies one workbook.
type Name string

const (
	Remittance   Name = "remittance"
	Transactions Name = "transactions"
	Rewards      Name = "rewards"
	TravelBuddy  Name = "travelbuddy"
)

// All lists every dataset in response order.
var All = []Name{Remittance, Transactions, Rewards, TravelBuddy}

// ErrUnknownDataset is returned for names outside All or without a file.
var ErrUnknownDataset = errors.New("unknown dataset")

// ParseName validates a dataset name, ignoring case and surrounding space.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("ParseName: %q: %w", s, ErrUnknownDataset)
}

// WorkbookReader reads whole workbooks.
type WorkbookReader interface {
	ReadAll(ctx context.Context, location string) ([]workbook.Sheet, error)
	SheetNames(ctx context.Context, location string) ([]string, error)
}

// Cache stores decoded JSON values. Failures are misses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any)
}

// Loader serves workbook contents from cache, reading the workbook on a miss.
// Concurrent misses for one dataset share a single read.
type Loader struct {
	reader WorkbookReader
	cache  Cache
	files  map[Name]string
	log    zerolog.Logger
	group  singleflight.Group
}

// NewLoader builds a loader for the given dataset files. Unknown names in
// files are ignored.
func NewLoader(reader WorkbookReader, cache Cache, files map[string]string, log zerolog.Logger) *Loader {
	known := make(map[Name]string, len(files))
	for k, v := range files {
		if n, err := ParseName(k); err == nil && v != "" {
			known[n] = v
		}
	}
	return &Loader{
		reader: reader,
		cache:  cache,
		files:  known,
		log:    log.With().Str("component", "dataset").Logger(),
	}
}

// File returns the workbook location of a dataset.
func (l *Loader) File(name Name) (string, error) {
	f, ok := l.files[name]
	if !ok {
		return "", fmt.Errorf("File: %q: %w", name, ErrUnknownDataset)
	}
	return f, nil
}

// Files returns the configured workbook locations keyed by dataset.
func (l *Loader) Files() map[Name]string {
	out := make(map[Name]string, len(l.files))
	for k, v := range l.files {
		out[k] = v
	}
	return out
}

// Names lists the configured datasets in All order.
func (l *Loader) Names() []Name {
	out := make([]Name, 0, len(l.files))
	for _, n := range All {
		if _, ok := l.files[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func sheetsKey(name Name) string  { return "sheets:" + string(name) }
func recordsKey(name Name) string { return "records:" + string(name) }

// Sheets returns every sheet of a dataset in tab order.
func (l *Loader) Sheets(ctx context.Context, name Name) ([]workbook.Sheet, error) {
	var sheets []workbook.Sheet
	if l.cache.GetJSON(ctx, sheetsKey(name), &sheets) {
		return sheets, nil
	}

	sheets, err := l.read(ctx, name)
	if err != nil {
		return nil, err
	}
	l.cache.SetJSON(ctx, sheetsKey(name), sheets)
	return sheets, nil
}

// FirstSheet returns the rows of the first sheet of a dataset.
func (l *Loader) FirstSheet(ctx context.Context, name Name) ([]domain.Record, error) {
	sheets, err := l.Sheets(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return []domain.Record{}, nil
	}
	return sheets[0].Rows, nil
}

// Records returns the rows of every sheet of a dataset merged in tab order,
// each tagged with its sheet name under domain.SheetKey.
func (l *Loader) Records(ctx context.Context, name Name) ([]domain.Record, error) {
	var records []domain.Record
	if l.cache.GetJSON(ctx, recordsKey(name), &records) {
		return records, nil
	}

	sheets, err := l.Sheets(ctx, name)
	if err != nil {
		return nil, err
	}
	records = Merge(sheets)
	l.cache.SetJSON(ctx, recordsKey(name), records)
	return records, nil
}

// Refresh rereads a dataset from its workbook, replaces both cache entries
// and returns the merged record count.
func (l *Loader) Refresh(ctx context.Context, name Name) (int, error) {
	sheets, err := l.read(ctx, name)
	if err != nil {
		return 0, err
	}
	records := Merge(sheets)
	l.cache.SetJSON(ctx, sheetsKey(name), sheets)
	l.cache.SetJSON(ctx, recordsKey(name), records)

	l.log.Info().
		Str("dataset", string(name)).
		Int("sheets", len(sheets)).
		Int("records", len(records)).
		Msg("Dataset refreshed")
	return len(records), nil
}

func (l *Loader) read(ctx context.Context, name Name) ([]workbook.Sheet, error) {
	file, err := l.File(name)
	if err != nil {
		return nil, err
	}

	// The shared read outlives any single caller; each caller waits on its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(string(name), func() (any, error) {
		return l.reader.ReadAll(detached, file)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read: loading %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("read: loading %s: %w", name, res.Err)
		}
		l.log.Debug().Str("dataset", string(name)).Bool("shared", res.Shared).Msg("Workbook read")
		return res.Val.([]workbook.Sheet), nil
	}
}

// Merge flattens sheets into one slice, tagging each row with its sheet.
// Rows are copied; the sheets are left untouched.
func Merge(sheets []workbook.Sheet) []domain.Record {
	n := 0
	for _, s := range sheets {
		n += len(s.Rows)
	}
	out := make([]domain.Record, 0, n)
	for _, s := range sheets {
		for _, row := range s.Rows {
			rec := row.Clone()
			rec[domain.SheetKey] = s.Name
			out = append(out, rec)
		}
	}
	return out
}

// FileInfo describes one workbook for the sheets listing.
type FileInfo struct {
	File   string   `json:"file"`
	Sheets []string `json:"sheets,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// SheetInfo lists the sheet names of every configured workbook. A workbook
// that cannot be read reports its error instead of failing the listing.
func (l *Loader) SheetInfo(ctx context.Context) map[Name]FileInfo {
	out := make(map[Name]FileInfo, len(l.files))
	for _, name := range All {
		file, ok := l.files[name]
		if !ok {
			continue
		}
		names, err := l.reader.SheetNames(ctx, file)
		if err != nil {
			l.log.Warn().Err(err).Str("dataset", string(name)).Msg("Failed to list sheets")
			out[name] = FileInfo{File: file, Error: err.Error()}
			continue
		}
		out[name] = FileInfo{File: file, Sheets: names}
	}
	return out
}
