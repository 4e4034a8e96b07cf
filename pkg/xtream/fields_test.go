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

import "testing"

func TestFirstIntPriority(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   int64
		wantOK bool
	}{
		{"info tmdb_id number", `{"info":{"tmdb_id":603,"tmdb":"999"}}`, 603, true},
		{"info tmdb_id string", `{"info":{"tmdb_id":"604"}}`, 604, true},
		{"falls through empty string", `{"info":{"tmdb_id":"","tmdb":"605"}}`, 605, true},
		{"falls through zero", `{"info":{"tmdb_id":0},"movie_data":{"tmdb_id":"606"}}`, 606, true},
		{"top level listing field", `{"tmdb":"607"}`, 607, true},
		{"float encoded", `{"tmdb_id":608.0}`, 608, true},
		{"non numeric", `{"info":{"tmdb_id":"abc"}}`, 0, false},
		{"null", `{"info":{"tmdb_id":null}}`, 0, false},
		{"missing", `{"info":{}}`, 0, false},
		{"not json", `<html>`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstInt([]byte(tt.data), ProviderIDFields...)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("FirstInt() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFirstStringPriority(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"info name wins", `{"info":{"name":"Matrix","title":"Other"},"movie_data":{"name":"Data"}}`, "Matrix"},
		{"blank skipped", `{"info":{"name":"  ","title":"Title"}}`, "Title"},
		{"movie data", `{"info":[],"movie_data":{"name":"FR | Matrix"}}`, "FR | Matrix"},
		{"escaped unicode", `{"name":"Am\u00e9lie"}`, "Amélie"},
		{"number is text", `{"title":1917}`, "1917"},
		{"nothing", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := FirstString([]byte(tt.data), TitleFields...)
			if got != tt.want {
				t.Errorf("FirstString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstYear(t *testing.T) {
	tests := []struct {
		data string
		want int
	}{
		{`{"info":{"releasedate":"2003-05-15"}}`, 2003},
		{`{"info":{"year":"1999"}}`, 1999},
		{`{"info":{"year":"","releaseDate":"2010-07-16"}}`, 2010},
		{`{"year":2019}`, 2019},
		{`{"info":{"year":"unknown"}}`, 0},
	}
	for _, tt := range tests {
		if got := FirstYear([]byte(tt.data), YearFields...); got != tt.want {
			t.Errorf("FirstYear(%s) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestExtensionFields(t *testing.T) {
	data := []byte(`{"info":{"container_extension":"avi"},"movie_data":{"container_extension":"mkv"}}`)
	if got, _ := FirstString(data, ExtensionFields...); got != "mkv" {
		t.Errorf("extension = %q, want mkv", got)
	}
}
