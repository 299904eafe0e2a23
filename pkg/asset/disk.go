// ABOUTME: On-disk cache of raw asset bytes in front of a remote fetcher
// ABOUTME: Files are keyed by a hash of the URL
package asset

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DiskCache stores downloaded bytes in dir so later runs skip the
// network. Local files are passed straight through.
type DiskCache struct {
	dir    string
	next   Fetcher
	logger *zap.Logger
}

// NewDiskCache creates dir if needed and wraps next
func NewDiskCache(dir string, next Fetcher, logger *zap.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{dir: dir, next: next, logger: logger}, nil
}

// Dir returns the cache directory
func (d *DiskCache) Dir() string {
	return d.dir
}

// Path returns the cache file path for url
func (d *DiskCache) Path(url string) string {
	hash := sha256.Sum256([]byte(url))
	return filepath.Join(d.dir, fmt.Sprintf("%x%s", hash[:8], extension(url)))
}

// Fetch returns cached bytes for url or fetches and stores them
func (d *DiskCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if IsLocal(url) {
		return d.next.Fetch(ctx, url)
	}

	path := d.Path(url)
	if data, err := os.ReadFile(path); err == nil {
		d.logger.Debug("disk cache hit", zap.String("url", url), zap.String("path", path))
		return data, nil
	}

	data, err := d.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	// Write then rename so a crash never leaves a truncated entry
	tmp, err := os.CreateTemp(d.dir, ".partial-*")
	if err != nil {
		d.logger.Warn("failed to create cache file", zap.Error(err))
		return data, nil
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		d.logger.Warn("failed to write cache file", zap.Error(err))
		return data, nil
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		d.logger.Warn("failed to store cache file", zap.Error(err))
		return data, nil
	}

	d.logger.Debug("disk cache stored", zap.String("url", url), zap.String("path", path))
	return data, nil
}

// Remove deletes the cached bytes for url
func (d *DiskCache) Remove(url string) error {
	err := os.Remove(d.Path(url))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Cleanup removes the whole cache directory
func (d *DiskCache) Cleanup() error {
	return os.RemoveAll(d.dir)
}

func extension(url string) string {
	url = strings.Split(url, "?")[0]
	ext := filepath.Ext(url)
	if len(ext) > 6 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
