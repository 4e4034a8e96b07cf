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
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/titles"
)

// FieldPath is a key path into a panel JSON payload.
type FieldPath []string

// Panels disagree on field names, so each value is looked up through a
// priority list and the first usable candidate wins.
var (
	ProviderIDFields = []FieldPath{
		{"info", "tmdb_id"},
		{"info", "tmdb"},
		{"movie_data", "tmdb_id"},
		{"movie_data", "tmdb"},
		{"tmdb_id"},
		{"tmdb"},
	}
	TitleFields = []FieldPath{
		{"info", "name"},
		{"info", "title"},
		{"movie_data", "name"},
		{"info", "o_name"},
		{"info", "original_name"},
		{"name"},
		{"title"},
	}
	YearFields = []FieldPath{
		{"info", "year"},
		{"info", "releasedate"},
		{"info", "releaseDate"},
		{"info", "release_date"},
		{"movie_data", "year"},
		{"movie_data", "releasedate"},
		{"year"},
		{"releaseDate"},
		{"release_date"},
	}
	ExtensionFields = []FieldPath{
		{"movie_data", "container_extension"},
		{"info", "container_extension"},
		{"container_extension"},
	}
	StreamIDFields = []FieldPath{
		{"stream_id"},
		{"series_id"},
		{"movie_data", "stream_id"},
		{"id"},
	}
	EpisodeNumberFields = []FieldPath{
		{"episode_num"},
		{"episode_number"},
		{"episode"},
		{"info", "episode_num"},
	}
)

// FirstString returns the first non-blank string or number value found.
func FirstString(data []byte, paths ...FieldPath) (string, bool) {
	for _, p := range paths {
		value, dataType, _, err := jsonparser.Get(data, p...)
		if err != nil {
			continue
		}
		var s string
		switch dataType {
		case jsonparser.String:
			if s, err = jsonparser.ParseString(value); err != nil {
				continue
			}
		case jsonparser.Number:
			s = string(value)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// FirstInt returns the first strictly positive integer found. Numeric
// strings such as "603" are accepted.
func FirstInt(data []byte, paths ...FieldPath) (int64, bool) {
	for _, p := range paths {
		value, dataType, _, err := jsonparser.Get(data, p...)
		if err != nil {
			continue
		}
		var raw string
		switch dataType {
		case jsonparser.Number:
			raw = string(value)
		case jsonparser.String:
			if raw, err = jsonparser.ParseString(value); err != nil {
				continue
			}
		default:
			continue
		}
		if n, ok := parsePositiveInt(raw); ok {
			return n, true
		}
	}
	return 0, false
}

// FirstYear returns the first plausible year among the paths, reading both
// bare years and dates.
func FirstYear(data []byte, paths ...FieldPath) int {
	for _, p := range paths {
		s, ok := FirstString(data, p)
		if !ok {
			continue
		}
		if y := titles.YearFromDate(s); y >= 1900 && y <= 2100 {
			return y
		}
		if y := titles.ExtractYear(s); y > 0 {
			return y
		}
	}
	return 0
}

func parsePositiveInt(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, n > 0
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		return int64(f), f > 0
	}
	return 0, false
}
