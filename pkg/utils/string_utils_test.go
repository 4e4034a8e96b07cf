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

package utils

import (
	"strings"
	"testing"
)

func TestMaskString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "[empty]"},
		{"abc", "a******"},
		{"supersecretpass", "supe...pass"},
	}
	for _, tt := range tests {
		if got := MaskString(tt.in); got != tt.want {
			t.Errorf("MaskString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskURL(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		hidden     []string
		keptInside []string
	}{
		{
			name:       "media path",
			in:         "http://panel.example:8080/movie/johnsmith/hunter2secret/42.mp4",
			hidden:     []string{"johnsmith", "hunter2secret"},
			keptInside: []string{"panel.example:8080", "/movie/", "42.mp4"},
		},
		{
			name:       "media path under base path",
			in:         "https://panel.example/iptv/series/johnsmith/hunter2secret/7.m3u8",
			hidden:     []string{"johnsmith", "hunter2secret"},
			keptInside: []string{"/iptv/series/", "7.m3u8"},
		},
		{
			name:       "player api query",
			in:         "http://panel.example/player_api.php?username=johnsmith&password=hunter2secret&action=get_vod_info",
			hidden:     []string{"johnsmith", "hunter2secret"},
			keptInside: []string{"action=get_vod_info"},
		},
		{
			name:       "proxy url wraps upstream url",
			in:         "http://proxy.local/media/proxy?url=http%3A%2F%2Fpanel.example%2Flive%2Fjohnsmith%2Fhunter2secret%2F9.ts",
			hidden:     []string{"johnsmith", "hunter2secret"},
			keptInside: []string{"/media/proxy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskURL(tt.in)
			for _, s := range tt.hidden {
				if strings.Contains(got, s) {
					t.Errorf("MaskURL() = %q still contains %q", got, s)
				}
			}
			for _, s := range tt.keptInside {
				if !strings.Contains(got, s) {
					t.Errorf("MaskURL() = %q lost %q", got, s)
				}
			}
		})
	}
}
