package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const scheme = "gs://"

// Options configure the storage client. Both fields are optional; without
// them Application Default Credentials are used.
type Options struct {
	CredentialsFile string
	// Endpoint points the client at an emulator such as fake-gcs-server.
	Endpoint string
}

// Client is a StorageService backed by Google Cloud Storage. One client is
// shared by all calls.
type Client struct {
	storage *storage.Client
}

var _ StorageService = (*Client)(nil)

// NewClient creates a storage client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}

	sc, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating storage client: %w", err)
	}
	return &Client{storage: sc}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.storage.Close()
}

// Fetch downloads the object at uri.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := c.storage.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Upload copies the local file at filePath to uri.
func (c *Client) Upload(ctx context.Context, uri, filePath string) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("Upload: opening %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.storage.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copying to %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalizing %s: %w", uri, err)
	}
	return nil
}

// List returns the URIs of all objects whose name starts with the prefix of
// prefixURI. "gs://bucket" lists the whole bucket.
func (c *Client) List(ctx context.Context, prefixURI string) ([]string, error) {
	bucket, prefix, err := splitURI(prefixURI)
	if err != nil {
		return nil, err
	}

	var out []string
	it := c.storage.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: listing %s: %w", prefixURI, err)
		}
		out = append(out, scheme+bucket+"/"+attrs.Name)
	}
	return out, nil
}

// IsURI reports whether location is a gs:// URI rather than a local path.
func IsURI(location string) bool {
	return strings.HasPrefix(location, scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	bucket, object, err = splitURI(uri)
	if err != nil {
		return "", "", err
	}
	if object == "" {
		return "", "", fmt.Errorf("ParseURI: no object path in %q", uri)
	}
	return bucket, object, nil
}

func splitURI(uri string) (string, string, error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %q", uri)
	}
	trimmed := strings.TrimPrefix(uri, scheme)
	bucket, object, _ := strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %q", uri)
	}
	return bucket, object, nil
}

// Filename returns the last path element of a URI or local path.
// e.g., "gs://bucket/folder/file.xlsx" → "file.xlsx"
func Filename(location string) string {
	if IsURI(location) {
		_, object, _ := strings.Cut(strings.TrimPrefix(location, scheme), "/")
		if object == "" {
			return strings.TrimPrefix(location, scheme)
		}
		return path.Base(object)
	}
	return path.Base(strings.ReplaceAll(location, "\\", "/"))
}
