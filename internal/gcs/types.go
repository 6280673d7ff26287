package gcs

import (
	"context"
)

// StorageService provides an interface for the object storage operations the
// workbook loader and CLI need. It enables mocking in tests.
type StorageService interface {
	// Fetch downloads object bytes from the given gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// Upload copies a local file to the given gs:// URI.
	Upload(ctx context.Context, uri, filePath string) error

	// List returns the gs:// URIs of objects under a gs://bucket/prefix URI.
	List(ctx context.Context, prefixURI string) ([]string, error)
}
