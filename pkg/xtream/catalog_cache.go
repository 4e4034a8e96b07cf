/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package xtream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// DefaultCatalogTTL is how long a downloaded listing is reused.
const DefaultCatalogTTL = 15 * time.Minute

type cachedCatalog struct {
	entries []CatalogEntry
	fetched time.Time
}

// CachingClient is a Client whose catalog listings are kept in memory per
// account and kind. Concurrent misses share one download.
type CachingClient struct {
	*Client
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedCatalog
	group   singleflight.Group
}

// NewCachingClient wraps c. A ttl <= 0 uses DefaultCatalogTTL.
func NewCachingClient(c *Client, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CachingClient{Client: c, ttl: ttl, now: time.Now, entries: make(map[string]cachedCatalog)}
}

// Catalog returns the cached listing of kind, downloading it when missing
// or older than the TTL. Failed downloads are not cached.
func (c *CachingClient) Catalog(ctx context.Context, creds *types.Credentials, kind types.Kind) ([]CatalogEntry, error) {
	if creds == nil || creds.BaseURL == nil {
		return nil, types.ErrNotLinked
	}
	key := creds.BaseURL.String() + "|" + creds.Username + "|" + string(kind)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.fetched) < c.ttl {
		return cached.entries, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		entries, err := c.Client.Catalog(ctx, creds, kind)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cachedCatalog{entries: entries, fetched: c.now()}
		c.mu.Unlock()
		utils.DebugLog("Cached %d %s entries for %s", len(entries), kind, utils.MaskURL(creds.BaseURL.String()))
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]CatalogEntry), nil
}

// Forget drops every cached listing.
func (c *CachingClient) Forget() {
	c.mu.Lock()
	c.entries = make(map[string]cachedCatalog)
	c.mu.Unlock()
}
