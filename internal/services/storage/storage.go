package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/services"
	"slidecast/internal/textutil"
)

// Store persists artifacts by key.
type Store interface {
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Open builds the store selected by configuration.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal, "":
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	case config.StorageGCS:
		return NewGCS(ctx, GCSOptions{
			Bucket:          cfg.Storage.GCSBucket,
			Prefix:          cfg.Storage.GCSPrefix,
			CredentialsFile: cfg.Storage.GCSCredentialsFile,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
			Logger:          logger,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", fmt.Sprintf("unknown backend %q", cfg.Storage.Backend), nil)
	}
}

// CleanKey normalizes a caller supplied key and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "key", "empty key", nil)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("invalid key %q", key), nil)
	}
	return cleaned, nil
}

// RenderKey is the object key for a job's rendered output.
func RenderKey(jobID, format string) string {
	return path.Join("renders", jobID+"."+textutil.SanitizeToken(format))
}

// UploadKey is the object key for an ingested source deck.
func UploadKey(timelineID, fileName string) string {
	base := textutil.SanitizeFileName(path.Base(strings.ReplaceAll(fileName, "\\", "/")))
	if base == "." || base == "/" || base == "" {
		base = "deck.pptx"
	}
	return path.Join("uploads", timelineID, base)
}

// ThumbnailKey is the object key for a slide thumbnail.
func ThumbnailKey(timelineID string, slideIndex int) string {
	return path.Join("thumbnails", timelineID, fmt.Sprintf("slide-%03d.png", slideIndex))
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
