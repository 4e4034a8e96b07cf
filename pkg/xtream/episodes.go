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
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

// Episode is one playable entry of get_series_info.
type Episode struct {
	StreamID  string
	Season    int
	Number    int
	Title     string
	Extension string
}

var (
	episodeIDFields     = []FieldPath{{"id"}, {"stream_id"}}
	episodeSeasonFields = []FieldPath{{"season"}, {"season_number"}}
	episodeTitleFields  = []FieldPath{{"title"}, {"name"}, {"info", "name"}}
)

// ParseEpisodes groups the episodes of a series info payload by season,
// keeping panel order inside each season. Both the object form
// {"1":[...]} and the array-of-seasons form are read.
func ParseEpisodes(data []byte) (map[int][]Episode, error) {
	seasons := make(map[int][]Episode)

	value, dataType, _, err := jsonparser.Get(data, "episodes")
	if err != nil || dataType == jsonparser.Null {
		return seasons, nil
	}

	switch dataType {
	case jsonparser.Object:
		err = jsonparser.ObjectEach(value, func(key, list []byte, t jsonparser.ValueType, _ int) error {
			season, _ := strconv.Atoi(string(key))
			if t == jsonparser.Array {
				appendSeason(seasons, season, list)
			}
			return nil
		})
	case jsonparser.Array:
		index := 0
		_, err = jsonparser.ArrayEach(value, func(list []byte, t jsonparser.ValueType, _ int, _ error) {
			index++
			if t == jsonparser.Array {
				appendSeason(seasons, index, list)
			}
		})
	default:
		return seasons, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse episodes: %w", err)
	}
	return seasons, nil
}

func appendSeason(seasons map[int][]Episode, fallbackSeason int, list []byte) {
	jsonparser.ArrayEach(list, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
		if t != jsonparser.Object {
			return
		}
		id, ok := FirstString(item, episodeIDFields...)
		if !ok {
			return
		}
		season := fallbackSeason
		if n, ok := FirstInt(item, episodeSeasonFields...); ok {
			season = int(n)
		}
		ep := Episode{StreamID: id, Season: season}
		if n, ok := FirstInt(item, EpisodeNumberFields...); ok {
			ep.Number = int(n)
		}
		ep.Title, _ = FirstString(item, episodeTitleFields...)
		ep.Extension, _ = FirstString(item, ExtensionFields...)
		seasons[season] = append(seasons[season], ep)
	})
}

// FindEpisode locates an episode by its explicit number, falling back to
// its position within the season.
func FindEpisode(data []byte, season, episode int) (*Episode, error) {
	seasons, err := ParseEpisodes(data)
	if err != nil {
		return nil, err
	}
	list := seasons[season]
	for i := range list {
		if list[i].Number == episode {
			return &list[i], nil
		}
	}
	if episode >= 1 && episode <= len(list) {
		return &list[episode-1], nil
	}
	return nil, fmt.Errorf("%w: season %d episode %d", types.ErrEpisodeNotFound, season, episode)
}

// EpisodeSummaries flattens parsed seasons for display, keyed by season number.
func EpisodeSummaries(seasons map[int][]Episode) map[string][]types.EpisodeSummary {
	if len(seasons) == 0 {
		return nil
	}
	out := make(map[string][]types.EpisodeSummary, len(seasons))
	for season, list := range seasons {
		key := strconv.Itoa(season)
		for _, ep := range list {
			out[key] = append(out[key], types.EpisodeSummary{
				StreamID:  ep.StreamID,
				Episode:   ep.Number,
				Title:     ep.Title,
				Extension: ep.Extension,
			})
		}
	}
	return out
}
