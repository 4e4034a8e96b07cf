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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

func newTestDB(t *testing.T) *DBManager {
	t.Helper()
	m, err := NewDBManager(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRebind(t *testing.T) {
	pg := &DBManager{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &DBManager{driver: DriverSQLite}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewDBManager("mysql", "")
	assert.Error(t, err)
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *DBManager
	assert.False(t, m.IsInitialized())
	assert.NoError(t, m.Close())
	_, err := m.GetLinkedAccount(context.Background(), "u")
	assert.Error(t, err)
}

func TestMetadataCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newTestDB(t).MetadataCache(time.Hour)

	raw := json.RawMessage(`{"info": {"name":"FR | Matrix Reloaded 2003 1080p",  "tmdb_id": ""}, "extra" : [1,2 ,3]}`)
	providerID := int64(604)
	rec := &types.MetadataRecord{
		Kind:       types.KindMovie,
		UpstreamID: "42",
		ProviderID: &providerID,
		Title:      types.StringPtr("The Matrix Reloaded"),
		Match:      types.MatchFuzzy,
		MatchScore: 1,
		Raw:        raw,
	}
	require.NoError(t, cache.Put(ctx, rec))
	require.False(t, rec.CachedAt.IsZero(), "Put stamps CachedAt")

	got, err := cache.Get(ctx, types.KindMovie, "42")
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(got.Raw), "raw payload must round-trip byte for byte")
	require.NotNil(t, got.ProviderID)
	assert.Equal(t, providerID, *got.ProviderID)
	assert.Equal(t, "The Matrix Reloaded", *got.Title)
	assert.Equal(t, rec.CachedAt.UnixMilli(), got.CachedAt.UnixMilli())

	_, err = cache.Get(ctx, types.KindSeries, "42")
	assert.True(t, errors.Is(err, ErrCacheMiss), "kind is part of the key")
}

func TestMetadataCacheStaleIsMiss(t *testing.T) {
	ctx := context.Background()
	m := newTestDB(t)
	cache := m.MetadataCache(time.Hour)

	rec := &types.MetadataRecord{Kind: types.KindSeries, UpstreamID: "7", Match: types.MatchUpstreamOnly, Raw: json.RawMessage(`{}`)}
	require.NoError(t, cache.Put(ctx, rec))

	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	_, err := m.db.Exec(`UPDATE metadata_cache SET cached_at = ? WHERE kind = ? AND upstream_id = ?`, old, "series", "7")
	require.NoError(t, err)

	_, err = cache.Get(ctx, types.KindSeries, "7")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	stale, err := cache.GetStale(ctx, types.KindSeries, "7")
	require.NoError(t, err)
	assert.True(t, stale.UpstreamOnly())
	assert.Equal(t, old, stale.CachedAt.UnixMilli())

	n, err := cache.PurgeExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = cache.GetStale(ctx, types.KindSeries, "7")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestMetadataCacheUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	cache := newTestDB(t).MetadataCache(time.Hour)

	first := &types.MetadataRecord{Kind: types.KindMovie, UpstreamID: "1", Match: types.MatchUpstreamOnly, Raw: json.RawMessage(`{"v":1}`)}
	require.NoError(t, cache.Put(ctx, first))

	id := int64(9)
	second := &types.MetadataRecord{Kind: types.KindMovie, UpstreamID: "1", ProviderID: &id, Match: types.MatchProviderID}
	require.NoError(t, cache.Put(ctx, second))

	got, err := cache.Get(ctx, types.KindMovie, "1")
	require.NoError(t, err)
	assert.Equal(t, types.MatchProviderID, got.Match)
	assert.Nil(t, got.Raw)

	require.NoError(t, cache.Invalidate(ctx, types.KindMovie, "1"))
	_, err = cache.Get(ctx, types.KindMovie, "1")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestLinkedAccounts(t *testing.T) {
	ctx := context.Background()
	m := newTestDB(t)

	_, err := m.GetLinkedAccount(ctx, "alice")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, m.UpsertLinkedAccount(ctx, LinkedAccount{
		UserID: "alice", BaseURL: "http://panel.example:8080", Username: "u1", PasswordEnc: "sealed-1",
	}))
	require.NoError(t, m.UpsertLinkedAccount(ctx, LinkedAccount{
		UserID: "alice", BaseURL: "http://panel.example:8080", Username: "u2", PasswordEnc: "sealed-2",
	}))

	a, err := m.GetLinkedAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u2", a.Username)
	assert.Equal(t, "sealed-2", a.PasswordEnc)

	require.NoError(t, m.DeleteLinkedAccount(ctx, "alice"))
	_, err = m.GetLinkedAccount(ctx, "alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}
