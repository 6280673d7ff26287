package gcs

import (
	"context"
	"fmt"
	"os"
)

// Fetcher is the read side of StorageService.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Source reads workbook bytes from gs:// URIs through Remote, or from the
// local filesystem for any other location.
type Source struct {
	Remote Fetcher
}

// Read returns the bytes stored at location.
func (s *Source) Read(ctx context.Context, location string) ([]byte, error) {
	if IsURI(location) {
		if s.Remote == nil {
			return nil, fmt.Errorf("Read: %s: no storage client configured", location)
		}
		return s.Remote.Fetch(ctx, location)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	return data, nil
}
