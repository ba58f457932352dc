package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"go.uber.org/zap"
)

const downloadTimeout = 300 * time.Second

// Cache is a local content-addressable store of downloaded update
// artifacts, keyed by package id. Every artifact is verified against the
// package's SHA-256 checksum before use; a cached file whose bytes no
// longer match is discarded and re-downloaded.
type Cache struct {
	dir        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCache(dir string, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: downloadTimeout},
		logger:     logger,
	}, nil
}

// Fetch returns the verified artifact bytes for a package, reusing the
// cached copy when its checksum still matches and streaming a fresh
// download otherwise.
func (c *Cache) Fetch(ctx context.Context, pkg *domain.UpdatePackage) ([]byte, error) {
	path := c.path(pkg.ID)

	if _, err := os.Stat(path); err == nil {
		ok, err := checksumMatches(path, pkg.Checksum)
		if err == nil && ok {
			return os.ReadFile(path)
		}
		// Corrupted or stale cache entry: discard and re-download.
		c.logger.Warn("cached artifact failed checksum, discarding",
			zap.String("package_id", pkg.ID),
			zap.String("path", path))
		_ = os.Remove(path)
	}

	if err := c.download(ctx, pkg, path); err != nil {
		return nil, err
	}

	ok, err := checksumMatches(path, pkg.Checksum)
	if err != nil {
		return nil, fmt.Errorf("verify artifact %s: %w", pkg.ID, err)
	}
	if !ok {
		_ = os.Remove(path)
		return nil, fmt.Errorf("artifact %s checksum mismatch", pkg.ID)
	}

	return os.ReadFile(path)
}

func (c *Cache) path(packageID string) string {
	return filepath.Join(c.dir, packageID)
}

func (c *Cache) download(ctx context.Context, pkg *domain.UpdatePackage, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", pkg.ID, resp.StatusCode)
	}

	// Stream into a temp file, rename into place once complete so a
	// half-written download never looks like a cached artifact.
	tmp, err := os.CreateTemp(c.dir, pkg.ID+".part-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("stream artifact %s: %w", pkg.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store artifact %s: %w", pkg.ID, err)
	}

	c.logger.Info("artifact downloaded",
		zap.String("package_id", pkg.ID),
		zap.String("url", pkg.DownloadURL))
	return nil
}

func checksumMatches(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}
