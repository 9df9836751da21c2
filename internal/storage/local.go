package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket stores objects on disk. The web server exposes Dir under
// URLPrefix.
type LocalBucket struct {
	Dir       string
	URLPrefix string
}

// NewLocalBucket creates a bucket rooted at dir, creating it if needed.
func NewLocalBucket(dir, urlPrefix string) (*LocalBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return &LocalBucket{Dir: dir, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Put writes the object and returns its URL.
func (b *LocalBucket) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}

	data, err := readLimited(r)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(b.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("writing object: %w", err)
	}

	return b.URLPrefix + "/" + key, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (b *LocalBucket) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(b.Dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}
