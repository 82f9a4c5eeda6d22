package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskStore saves uploaded files under a base directory and serves them from
// a static URL prefix.
type DiskStore struct {
	basePath  string
	urlPrefix string
}

// NewDiskStore creates the base directory if missing.
func NewDiskStore(basePath, urlPrefix string) (*DiskStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/files"
	}
	return &DiskStore{basePath: basePath, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Put writes a file under the key's directory.
func (d *DiskStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target := d.targetPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// URL returns the static serving path for the key.
func (d *DiskStore) URL(_ context.Context, key string) (string, error) {
	return d.urlPrefix + "/" + sanitizeKey(key), nil
}

// Delete removes the stored file.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	target := d.targetPath(key)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(target)
}

func (d *DiskStore) targetPath(key string) string {
	return filepath.Join(d.basePath, filepath.FromSlash(sanitizeKey(key)))
}

// sanitizeKey flattens traversal segments so keys stay inside the base dir.
func sanitizeKey(key string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(cleaned, "/")
}
