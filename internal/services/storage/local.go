package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"slidecast/internal/services"
)

// Local writes artifacts beneath a directory on disk.
type Local struct {
	root          string
	publicBaseURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, publicBaseURL string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "local", "local_dir is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{root: root, publicBaseURL: strings.TrimSpace(publicBaseURL)}, nil
}

// Put writes data atomically via a temp file and rename.
func (l *Local) Put(ctx context.Context, data []byte, key, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrCancelled, "storage", "put", key, err)
	}
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return l.url(cleaned, target), nil
}

// Delete removes an object; missing objects are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.root, filepath.FromSlash(cleaned)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Root returns the storage directory.
func (l *Local) Root() string { return l.root }

func (l *Local) url(key, target string) string {
	if l.publicBaseURL != "" {
		return joinURL(l.publicBaseURL, key)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

var _ Store = (*Local)(nil)
