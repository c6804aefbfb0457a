// Package api contains HTTP clients for external services.
// Each API client is self-contained and handles its own caching.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/quasar/craftlauncher/internal/core"
)

var mojangProfileLookupURL = "https://api.mojang.com/users/profiles/minecraft"

// MojangClient resolves usernames to profile UUIDs. Used when creating an
// offline account so a name already taken on Mojang keeps its real UUID.
type MojangClient struct {
	httpClient *http.Client

	mu       sync.Mutex
	cache    map[string]mojangCacheEntry
	cacheTTL time.Duration
}

type mojangCacheEntry struct {
	uuid     string
	notFound bool
	fetched  time.Time
}

// NewMojangClient creates a new Mojang API client
func NewMojangClient() *MojangClient {
	return &MojangClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      map[string]mojangCacheEntry{},
		cacheTTL:   5 * time.Minute,
	}
}

type mojangProfileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LookupUUID returns the profile UUID for a username, or "" when no such
// profile exists. Results are cached briefly, keyed case-insensitively.
func (c *MojangClient) LookupUUID(ctx context.Context, username string) (string, error) {
	key := strings.ToLower(username)

	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && time.Since(entry.fetched) < c.cacheTTL {
		return entry.uuid, nil
	}

	url := fmt.Sprintf("%s/%s", mojangProfileLookupURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", oops.Code(core.CodeTransientNetwork).Wrapf(err, "profile lookup failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var profile mojangProfileResponse
		if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
			return "", oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding profile lookup")
		}
		c.store(key, mojangCacheEntry{uuid: profile.ID, fetched: time.Now()})
		return profile.ID, nil
	case http.StatusNotFound, http.StatusNoContent:
		c.store(key, mojangCacheEntry{notFound: true, fetched: time.Now()})
		return "", nil
	default:
		return "", oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("profile lookup failed (%d)", resp.StatusCode)
	}
}

func (c *MojangClient) store(key string, entry mojangCacheEntry) {
	c.mu.Lock()
	c.cache[key] = entry
	c.mu.Unlock()
}
