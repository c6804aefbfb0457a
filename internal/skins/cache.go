// Package skins caches profile skin and cape textures on disk.
package skins

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/quasar/craftlauncher/internal/core"
)

// Cache stores textures keyed by their texture id (the last path segment
// of the texture URL, itself a content hash), so a texture is fetched at
// most once.
type Cache struct {
	httpClient *http.Client
	dir        string
	logger     *slog.Logger
}

// NewCache creates a cache rooted at dir
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 1 * time.Minute

	return &Cache{
		httpClient: retryClient.StandardClient(),
		dir:        dir,
		logger:     logger,
	}
}

// Sync fetches the account's active skin and capes into the cache.
// Textures are cosmetic: failures are logged, not fatal.
func (c *Cache) Sync(ctx context.Context, acc *core.Account) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	var firstErr error
	if skin, ok := acc.Profile.ActiveSkin(); ok {
		if err := c.fetch(ctx, skin.URL); err != nil {
			c.logger.Warn("skin download failed", "username", acc.Username, "err", err)
			firstErr = err
		}
	}
	for _, cape := range acc.Profile.Capes {
		if cape.State != "ACTIVE" {
			continue
		}
		if err := c.fetch(ctx, cape.URL); err != nil {
			c.logger.Warn("cape download failed", "username", acc.Username, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Path returns the cached file for a texture URL and whether it exists
func (c *Cache) Path(textureURL string) (string, bool) {
	id := textureID(textureURL)
	if id == "" {
		return "", false
	}
	p := filepath.Join(c.dir, id+".png")
	_, err := os.Stat(p)
	return p, err == nil
}

func (c *Cache) fetch(ctx context.Context, textureURL string) error {
	id := textureID(textureURL)
	if id == "" {
		return fmt.Errorf("texture url has no id: %q", textureURL)
	}

	dest := filepath.Join(c.dir, id+".png")
	if _, err := os.Stat(dest); err == nil {
		return nil // already cached
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textureURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("texture download failed: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, id+".*.tmp")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	c.logger.Debug("texture cached", "id", id, "size", humanize.Bytes(uint64(n)))
	return nil
}

// textureID extracts the content-hash segment of a texture URL
func textureID(textureURL string) string {
	id := path.Base(textureURL)
	if id == "." || id == "/" {
		return ""
	}
	return id
}
