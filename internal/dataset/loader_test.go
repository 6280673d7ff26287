package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-records-api/internal/cache"
	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

type mockReader struct {
	ReadAllFunc    func(ctx context.Context, location string) ([]workbook.Sheet, error)
	SheetNamesFunc func(ctx context.Context, location string) ([]string, error)
}

func (m *mockReader) ReadAll(ctx context.Context, location string) ([]workbook.Sheet, error) {
	return m.ReadAllFunc(ctx, location)
}

func (m *mockReader) SheetNames(ctx context.Context, location string) ([]string, error) {
	return m.SheetNamesFunc(ctx, location)
}

var travelSheets = []workbook.Sheet{
	{Name: "Load", Key: "load", Rows: []domain.Record{
		{"Txn_Date": 45587.0, "transactionType_dsc": "LOAD", "amount": 100.0},
	}},
	{Name: "Transactions", Key: "transactions", Rows: []domain.Record{
		{"Txn_Date": 45588.0, "Country": "India", "Amount": 12.5},
		{"Txn_Date": 45589.0, "Country": "India", "Amount": 7.5},
	}},
}

func testFiles() map[string]string {
	return map[string]string{
		"remittance":  "data/remittance.xlsx",
		"travelbuddy": "gs://bucket/travel.xlsx",
		"bogus":       "ignored.xlsx",
	}
}

func newTestLoader(reader WorkbookReader) *Loader {
	tiered := cache.NewTiered(cache.NewMemory(), nil, time.Minute, time.Hour, zerolog.Nop())
	return NewLoader(reader, tiered, testFiles(), zerolog.Nop())
}

func TestParseName(t *testing.T) {
	n, err := ParseName(" TravelBuddy ")
	require.NoError(t, err)
	assert.Equal(t, TravelBuddy, n)

	_, err = ParseName("payroll")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestLoader_RecordsAreMergedAndCached(t *testing.T) {
	var reads atomic.Int32
	reader := &mockReader{ReadAllFunc: func(_ context.Context, location string) ([]workbook.Sheet, error) {
		reads.Add(1)
		assert.Equal(t, "gs://bucket/travel.xlsx", location)
		return travelSheets, nil
	}}
	l := newTestLoader(reader)
	ctx := context.Background()

	records, err := l.Records(ctx, TravelBuddy)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Load", records[0].Sheet())
	assert.Equal(t, "Transactions", records[2].Sheet())
	assert.NotContains(t, travelSheets[0].Rows[0], domain.SheetKey, "source rows untouched")

	again, err := l.Records(ctx, TravelBuddy)
	require.NoError(t, err)
	assert.Len(t, again, 3)

	sheets, err := l.Sheets(ctx, TravelBuddy)
	require.NoError(t, err)
	assert.Len(t, sheets, 2)
	assert.Equal(t, int32(1), reads.Load(), "workbook read once")
}

func TestLoader_FirstSheet(t *testing.T) {
	reader := &mockReader{ReadAllFunc: func(context.Context, string) ([]workbook.Sheet, error) {
		return travelSheets, nil
	}}
	l := newTestLoader(reader)

	rows, err := l.FirstSheet(context.Background(), TravelBuddy)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoader_Refresh(t *testing.T) {
	var reads atomic.Int32
	reader := &mockReader{ReadAllFunc: func(context.Context, string) ([]workbook.Sheet, error) {
		if reads.Add(1) == 1 {
			return travelSheets[:1], nil
		}
		return travelSheets, nil
	}}
	l := newTestLoader(reader)
	ctx := context.Background()

	records, err := l.Records(ctx, TravelBuddy)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	n, err := l.Refresh(ctx, TravelBuddy)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err = l.Records(ctx, TravelBuddy)
	require.NoError(t, err)
	assert.Len(t, records, 3, "refresh replaced the cached records")
	assert.Equal(t, int32(2), reads.Load())
}

func TestLoader_Errors(t *testing.T) {
	boom := errors.New("decrypt failed")
	reader := &mockReader{ReadAllFunc: func(context.Context, string) ([]workbook.Sheet, error) {
		return nil, boom
	}}
	l := newTestLoader(reader)
	ctx := context.Background()

	_, err := l.Records(ctx, TravelBuddy)
	assert.ErrorIs(t, err, boom)

	_, err = l.Sheets(ctx, Rewards)
	assert.ErrorIs(t, err, ErrUnknownDataset, "rewards has no file configured")

	_, err = l.Refresh(ctx, Name("bogus"))
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestLoader_ConcurrentMissesShareRead(t *testing.T) {
	var reads atomic.Int32
	release := make(chan struct{})
	reader := &mockReader{ReadAllFunc: func(context.Context, string) ([]workbook.Sheet, error) {
		reads.Add(1)
		<-release
		return travelSheets, nil
	}}
	l := newTestLoader(reader)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Sheets(context.Background(), TravelBuddy)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), reads.Load())
}

func TestLoader_SheetInfo(t *testing.T) {
	reader := &mockReader{SheetNamesFunc: func(_ context.Context, location string) ([]string, error) {
		if location == "data/remittance.xlsx" {
			return nil, errors.New("wrong password")
		}
		return []string{"Load", "Transactions"}, nil
	}}
	l := newTestLoader(reader)

	info := l.SheetInfo(context.Background())
	require.Len(t, info, 2)
	assert.Equal(t, FileInfo{File: "data/remittance.xlsx", Error: "wrong password"}, info[Remittance])
	assert.Equal(t, []string{"Load", "Transactions"}, info[TravelBuddy].Sheets)

	files := l.Files()
	assert.Len(t, files, 2)
	assert.NotContains(t, files, Name("bogus"))
	assert.Equal(t, []Name{Remittance, TravelBuddy}, l.Names())
}

func TestLoader_SharedReadSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reader := &mockReader{ReadAllFunc: func(ctx context.Context, _ string) ([]workbook.Sheet, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return travelSheets, nil
	}}
	l := newTestLoader(reader)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Sheets(first, TravelBuddy)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := l.Sheets(context.Background(), TravelBuddy)
		second <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-second, "other callers keep the shared read")
}
