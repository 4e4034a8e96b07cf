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

package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind identifies the upstream content family.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
	KindLive   Kind = "live"
)

// ParseKind accepts the route spellings used by players ("vod" is an alias for movie).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "vod":
		return KindMovie, nil
	case "series", "serie", "tv":
		return KindSeries, nil
	case "live":
		return KindLive, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrBadRequest, s)
}

// Credentials are a user's upstream panel account. They are request scoped
// and never serialized.
type Credentials struct {
	BaseURL  *url.URL `json:"-"`
	Username string   `json:"-"`
	Password string   `json:"-"`
}

// String never prints the password.
func (c *Credentials) String() string {
	if c == nil || c.BaseURL == nil {
		return "credentials(<nil>)"
	}
	return fmt.Sprintf("credentials(%s, user=%d chars)", c.BaseURL.Host, len(c.Username))
}

// ContentRef is an upstream stream id of a given kind.
type ContentRef struct {
	Kind       Kind
	UpstreamID string
	// Extension is an optional container hint such as "mkv".
	Extension string
}

// EpisodeRef is resolved to a ContentRef before playback.
type EpisodeRef struct {
	SeriesID string
	Season   int
	Episode  int
}

// Images holds absolute artwork URLs.
type Images struct {
	Poster   string `json:"poster,omitempty"`
	Backdrop string `json:"backdrop,omitempty"`
}

// Trailer is the selected video for a title.
type Trailer struct {
	Name     string `json:"name,omitempty"`
	Site     string `json:"site"`
	Key      string `json:"key"`
	URL      string `json:"url"`
	Type     string `json:"type,omitempty"`
	Language string `json:"language,omitempty"`
	Official bool   `json:"official"`
}

// CastMember is one credited actor.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	Profile   string `json:"profile,omitempty"`
}

// EpisodeSummary is one upstream episode listed on a series record.
type EpisodeSummary struct {
	StreamID  string `json:"stream_id"`
	Episode   int    `json:"episode"`
	Title     string `json:"title,omitempty"`
	Extension string `json:"container_extension,omitempty"`
}

// Match status values recorded on MetadataRecord.
const (
	MatchProviderID   = "provider-id"
	MatchFuzzy        = "matched"
	MatchUpstreamOnly = "upstream-only"
)

// MetadataRecord is the cached result of a metadata resolution. A nil
// ProviderID marks an upstream-only record.
type MetadataRecord struct {
	Kind         Kind                        `json:"kind"`
	UpstreamID   string                      `json:"upstream_id"`
	ProviderID   *int64                      `json:"provider_id"`
	ProviderKind string                      `json:"provider_kind,omitempty"`
	Title        *string                     `json:"title"`
	Original     *string                     `json:"original_title"`
	Overview     *string                     `json:"overview"`
	VoteAverage  *float64                    `json:"vote_average"`
	Year         *int                        `json:"year"`
	Genres       []string                    `json:"genres,omitempty"`
	Images       Images                      `json:"images"`
	Trailer      *Trailer                    `json:"trailer"`
	Cast         []CastMember                `json:"cast,omitempty"`
	Directors    []string                    `json:"directors,omitempty"`
	IMDBID       string                      `json:"imdb_id,omitempty"`
	Episodes     map[string][]EpisodeSummary `json:"episodes,omitempty"`
	Match        string                      `json:"match"`
	MatchScore   float64                     `json:"match_score,omitempty"`
	Raw          json.RawMessage             `json:"raw"`
	CachedAt     time.Time                   `json:"cached_at"`
}

// UpstreamOnly reports whether no provider match backs this record.
func (r *MetadataRecord) UpstreamOnly() bool {
	return r.ProviderID == nil
}

// IsStale reports whether the record is older than ttl at now.
func (r *MetadataRecord) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CachedAt) > ttl
}

// APIResponse is a standardized API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
