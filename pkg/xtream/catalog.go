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
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/jamesnetherton/m3u"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/titles"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// CatalogEntry is one stream of a panel listing.
type CatalogEntry struct {
	StreamID   string
	Name       string
	Year       int
	ProviderID int64
	Extension  string
}

var catalogNameFields = []FieldPath{{"name"}, {"title"}}

// ParseCatalog reads a get_vod_streams or get_series array. Entries without
// an id or a name are skipped.
func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	var itemErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if err != nil {
			itemErr = err
			return
		}
		if dataType != jsonparser.Object {
			return
		}
		id, ok := FirstString(value, StreamIDFields...)
		if !ok {
			return
		}
		name, ok := FirstString(value, catalogNameFields...)
		if !ok {
			return
		}
		entry := CatalogEntry{StreamID: id, Name: name}
		entry.Year = FirstYear(value, YearFields...)
		if entry.Year == 0 {
			entry.Year = titles.ExtractYear(name)
		}
		entry.ProviderID, _ = FirstInt(value, ProviderIDFields...)
		entry.Extension, _ = FirstString(value, ExtensionFields...)
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if itemErr != nil {
		return nil, fmt.Errorf("parse catalog entry: %w", itemErr)
	}
	return entries, nil
}

// Catalog lists every stream of a kind. When the JSON listing is empty the
// m3u_plus playlist is used instead.
func (c *Client) Catalog(ctx context.Context, creds *types.Credentials, kind types.Kind) ([]CatalogEntry, error) {
	action := getVodStreams
	if kind == types.KindSeries {
		action = getSeries
	}

	body, err := c.Action(ctx, creds, action, nil)
	if err == nil {
		entries, perr := ParseCatalog(body)
		if perr == nil && len(entries) > 0 {
			return entries, nil
		}
		if perr != nil {
			utils.WarnLog("Catalog %s is not a JSON list: %v", action, perr)
		}
	} else {
		utils.WarnLog("Catalog %s failed: %v", action, err)
	}

	if kind == types.KindSeries {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	entries, m3uErr := c.playlistCatalog(ctx, creds, kind)
	if m3uErr != nil {
		if err != nil {
			return nil, err
		}
		// The JSON listing answered, so an empty catalog is the answer.
		utils.WarnLog("Catalog playlist fallback failed: %v", m3uErr)
		return nil, nil
	}
	return entries, nil
}

// playlistCatalog extracts the streams of a kind from get.php. The stream
// id is the last path segment of each track URI.
func (c *Client) playlistCatalog(ctx context.Context, creds *types.Credentials, kind types.Kind) ([]CatalogEntry, error) {
	file, err := c.downloadPlaylist(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer os.Remove(file)

	playlist, err := m3u.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse m3u catalog: %w", err)
	}

	marker := "/" + string(kind) + "/"
	var entries []CatalogEntry
	for _, track := range playlist.Tracks {
		if !strings.Contains(track.URI, marker) {
			continue
		}
		base := path.Base(track.URI)
		ext := strings.TrimPrefix(path.Ext(base), ".")
		id := strings.TrimSuffix(base, path.Ext(base))
		if id == "" {
			continue
		}
		name := track.Name
		for _, tag := range track.Tags {
			if tag.Name == "tvg-name" && strings.TrimSpace(tag.Value) != "" {
				name = tag.Value
			}
		}
		entries = append(entries, CatalogEntry{
			StreamID:  id,
			Name:      strings.TrimSpace(name),
			Year:      titles.ExtractYear(name),
			Extension: ext,
		})
	}
	utils.DebugLog("m3u catalog fallback produced %d %s entries", len(entries), kind)
	return entries, nil
}
