package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"slidecast/internal/logging"
	"slidecast/internal/services"
)

const gcsWriteTimeout = 2 * time.Minute

// GCSOptions configures the Google Cloud Storage store.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	PublicBaseURL   string
	Logger          *slog.Logger
	ClientOptions   []option.ClientOption
}

// GCS writes artifacts to a Cloud Storage bucket.
type GCS struct {
	client        *storage.Client
	bucket        string
	prefix        string
	publicBaseURL string
	logger        *slog.Logger
}

// NewGCS creates a storage client. STORAGE_EMULATOR_HOST is honoured by the
// client library.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "gcs", "gcs_bucket is required", nil)
	}
	clientOpts := append([]option.ClientOption{}, opts.ClientOptions...)
	if creds := strings.TrimSpace(opts.CredentialsFile); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}
	clientOpts = append(clientOpts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "gcs", "create storage client", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GCS{
		client:        client,
		bucket:        bucket,
		prefix:        strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
		publicBaseURL: strings.TrimSpace(opts.PublicBaseURL),
		logger:        logging.NewComponentLogger(logger, "gcs"),
	}, nil
}

// Put uploads data and returns its public URL.
func (g *GCS) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	object, err := g.objectName(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, gcsWriteTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", services.Wrap(services.ErrTransient, "storage", "gcs put", object, err)
	}
	if err := w.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "gcs put", object, err)
	}
	g.logger.Debug("object uploaded",
		logging.String("bucket", g.bucket),
		logging.String("object", object),
		logging.Int("bytes", len(data)),
	)
	return g.ObjectURL(object), nil
}

// Delete removes an object; missing objects are not an error.
func (g *GCS) Delete(ctx context.Context, key string) error {
	object, err := g.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = g.client.Bucket(g.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %q: %w", object, err)
	}
	return nil
}

// ObjectURL returns the fetch URL for an object name.
func (g *GCS) ObjectURL(object string) string {
	if g.publicBaseURL != "" {
		return joinURL(g.publicBaseURL, object)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, object)
}

// Check verifies the bucket exists and the credentials can read it.
func (g *GCS) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %q: %w", g.bucket, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) objectName(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if g.prefix == "" {
		return cleaned, nil
	}
	return path.Join(g.prefix, cleaned), nil
}

var _ Store = (*GCS)(nil)
