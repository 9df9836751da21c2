// Package storage stores listing images in a local directory or an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxObjectSize is the largest object Put accepts.
const MaxObjectSize = 8 << 20

// ErrTooLarge is returned when an object exceeds MaxObjectSize.
var ErrTooLarge = fmt.Errorf("object exceeds %d bytes", MaxObjectSize)

// Bucket stores objects and returns their public URL.
type Bucket interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds a unique key under prefix, keeping the file extension.
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

// readLimited reads r fully, failing with ErrTooLarge past MaxObjectSize.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	if len(data) > MaxObjectSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// validKey rejects keys that could escape the bucket root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
