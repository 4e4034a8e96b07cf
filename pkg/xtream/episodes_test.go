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
	"errors"
	"testing"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

const seriesInfoObject = `{
  "info": {"name": "Dark", "tmdb": "70523"},
  "episodes": {
    "1": [
      {"id": "9001", "episode_num": 1, "title": "Secrets", "container_extension": "mkv", "season": 1},
      {"id": "9002", "episode_num": "2", "title": "Lies", "container_extension": "mkv", "season": 1}
    ],
    "2": [
      {"id": "9101", "episode_num": 3, "title": "Ghosts", "season": 2},
      {"id": "9102", "title": "Unnumbered"}
    ]
  }
}`

const seriesInfoArray = `{
  "episodes": [
    [{"id": 11, "episode_num": 1}, {"id": 12, "episode_num": 2}],
    [{"id": 21}, {"id": 22}]
  ]
}`

func TestFindEpisode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		season  int
		episode int
		wantID  string
		wantErr error
	}{
		{"explicit number", seriesInfoObject, 1, 2, "9002", nil},
		{"explicit number beats position", seriesInfoObject, 2, 3, "9101", nil},
		{"positional fallback", seriesInfoObject, 2, 2, "9102", nil},
		{"array of seasons", seriesInfoArray, 2, 1, "21", nil},
		{"numeric ids", seriesInfoArray, 1, 2, "12", nil},
		{"unknown season", seriesInfoObject, 5, 1, "", types.ErrEpisodeNotFound},
		{"episode out of range", seriesInfoObject, 1, 9, "", types.ErrEpisodeNotFound},
		{"no episodes", `{"info":{}}`, 1, 1, "", types.ErrEpisodeNotFound},
		{"null episodes", `{"episodes":null}`, 1, 1, "", types.ErrEpisodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := FindEpisode([]byte(tt.data), tt.season, tt.episode)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FindEpisode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindEpisode() error = %v", err)
			}
			if ep.StreamID != tt.wantID {
				t.Errorf("FindEpisode() id = %q, want %q", ep.StreamID, tt.wantID)
			}
		})
	}
}

func TestEpisodeSummaries(t *testing.T) {
	seasons, err := ParseEpisodes([]byte(seriesInfoObject))
	if err != nil {
		t.Fatal(err)
	}
	summaries := EpisodeSummaries(seasons)
	if len(summaries["1"]) != 2 || len(summaries["2"]) != 2 {
		t.Fatalf("summaries = %+v", summaries)
	}
	if summaries["1"][0].Extension != "mkv" || summaries["1"][0].Title != "Secrets" {
		t.Errorf("first episode = %+v", summaries["1"][0])
	}
}
