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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// ErrCacheMiss is returned by MetadataCache.Get for missing or stale rows.
var ErrCacheMiss = errors.New("metadata cache miss")

// MetadataCache stores resolved metadata records keyed by (kind, upstream id).
// The raw upstream payload is kept in its own column so it is returned
// exactly as written.
type MetadataCache struct {
	m   *DBManager
	ttl time.Duration
	now func() time.Time
}

// MetadataCache returns the cache view of the database with the given TTL.
func (m *DBManager) MetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{m: m, ttl: ttl, now: time.Now}
}

// TTL returns the freshness window of cached records.
func (c *MetadataCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a fresh record, or ErrCacheMiss.
func (c *MetadataCache) Get(ctx context.Context, kind types.Kind, upstreamID string) (*types.MetadataRecord, error) {
	rec, err := c.GetStale(ctx, kind, upstreamID)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 && rec.IsStale(c.now(), c.ttl) {
		utils.DebugLog("Database: metadata %s/%s is stale (cached %s)", kind, upstreamID, rec.CachedAt.Format(time.RFC3339))
		return nil, ErrCacheMiss
	}
	return rec, nil
}

// GetStale returns the stored record regardless of its age.
func (c *MetadataCache) GetStale(ctx context.Context, kind types.Kind, upstreamID string) (*types.MetadataRecord, error) {
	m := c.m
	if m == nil || m.db == nil {
		return nil, errNotInitialized
	}

	var (
		payload  string
		raw      sql.NullString
		cachedAt int64
	)
	err := m.db.QueryRowContext(ctx, m.rebind(`
        SELECT payload, raw, cached_at FROM metadata_cache
        WHERE kind = ? AND upstream_id = ?`), string(kind), upstreamID).Scan(&payload, &raw, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		utils.ErrorLog("Database error reading metadata %s/%s: %v", kind, upstreamID, err)
		return nil, err
	}

	var rec types.MetadataRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		utils.WarnLog("Discarding unreadable metadata row %s/%s: %v", kind, upstreamID, err)
		return nil, ErrCacheMiss
	}
	rec.Kind = kind
	rec.UpstreamID = upstreamID
	rec.Raw = nil
	if raw.Valid {
		rec.Raw = json.RawMessage(raw.String)
	}
	rec.CachedAt = time.UnixMilli(cachedAt)
	return &rec, nil
}

// Put upserts a record. A zero CachedAt is stamped with the current time.
func (c *MetadataCache) Put(ctx context.Context, rec *types.MetadataRecord) error {
	m := c.m
	if m == nil || m.db == nil {
		return errNotInitialized
	}
	if rec == nil || rec.Kind == "" || rec.UpstreamID == "" {
		return fmt.Errorf("metadata record without key")
	}
	if rec.CachedAt.IsZero() {
		rec.CachedAt = c.now()
	}

	row := *rec
	row.Raw = nil
	payload, err := json.Marshal(&row)
	if err != nil {
		return fmt.Errorf("encode metadata %s/%s: %w", rec.Kind, rec.UpstreamID, err)
	}
	var raw sql.NullString
	if len(rec.Raw) > 0 {
		raw = sql.NullString{String: string(rec.Raw), Valid: true}
	}
	var providerID sql.NullInt64
	if rec.ProviderID != nil {
		providerID = sql.NullInt64{Int64: *rec.ProviderID, Valid: true}
	}

	_, err = m.db.ExecContext(ctx, m.rebind(`
        INSERT INTO metadata_cache (kind, upstream_id, provider_id, payload, raw, cached_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (kind, upstream_id) DO UPDATE SET
          provider_id = EXCLUDED.provider_id,
          payload = EXCLUDED.payload,
          raw = EXCLUDED.raw,
          cached_at = EXCLUDED.cached_at`),
		string(rec.Kind), rec.UpstreamID, providerID, string(payload), raw, rec.CachedAt.UnixMilli())
	if err != nil {
		utils.ErrorLog("Database error storing metadata %s/%s: %v", rec.Kind, rec.UpstreamID, err)
		return err
	}
	utils.DebugLog("Database: cached metadata %s/%s (match=%s)", rec.Kind, rec.UpstreamID, rec.Match)
	return nil
}

// Invalidate removes one record.
func (c *MetadataCache) Invalidate(ctx context.Context, kind types.Kind, upstreamID string) error {
	m := c.m
	if m == nil || m.db == nil {
		return errNotInitialized
	}
	_, err := m.db.ExecContext(ctx, m.rebind(`DELETE FROM metadata_cache WHERE kind = ? AND upstream_id = ?`),
		string(kind), upstreamID)
	return err
}

// PurgeExpired deletes rows older than maxAge.
func (c *MetadataCache) PurgeExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	m := c.m
	if m == nil || m.db == nil {
		return 0, errNotInitialized
	}
	cutoff := c.now().Add(-maxAge).UnixMilli()
	res, err := m.db.ExecContext(ctx, m.rebind(`DELETE FROM metadata_cache WHERE cached_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		utils.InfoLog("Cleaned up %d expired metadata_cache entries", n)
	}
	return n, nil
}
