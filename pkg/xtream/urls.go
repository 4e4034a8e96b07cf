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
	"net/url"
	"path"
	"strings"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

// Extensions tried for each kind, most preferred first.
var (
	vodExtensions  = []string{"m3u8", "mp4"}
	liveExtensions = []string{"m3u8", "ts"}
)

// MediaURL builds /<kind>/<user>/<pass>/<id>.<ext> under the panel base URL.
func MediaURL(creds *types.Credentials, kind types.Kind, id, ext string) string {
	if creds == nil || creds.BaseURL == nil {
		return ""
	}
	u := *creds.BaseURL
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil

	file := id
	if ext != "" {
		file += "." + strings.TrimPrefix(ext, ".")
	}
	segments := []string{string(kind), creds.Username, creds.Password, file}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	base := strings.TrimRight(u.Path, "/")
	u.Path = base + "/" + strings.Join(segments, "/")
	u.RawPath = escapeBase(base) + "/" + strings.Join(escaped, "/")
	return u.String()
}

func escapeBase(p string) string {
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// CandidateURLs lists the URLs a stream may be served under: the HLS
// manifest first, then an optional container hint, then the default
// progressive form (mp4, or ts for live). It never fails.
func CandidateURLs(kind types.Kind, id string, creds *types.Credentials, hint string) []string {
	exts := vodExtensions
	if kind == types.KindLive {
		exts = liveExtensions
	}

	ordered := []string{exts[0]}
	hint = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	if hint != "" && !contains(exts, hint) {
		ordered = append(ordered, hint)
	}
	ordered = append(ordered, exts[1:]...)

	urls := make([]string, 0, len(ordered))
	for _, ext := range ordered {
		urls = append(urls, MediaURL(creds, kind, id, ext))
	}
	return urls
}

// IsManifestURL reports whether the URL path names an HLS playlist.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u8", ".m3u":
		return true
	}
	return false
}

// SplitCandidates separates manifest URLs from progressive ones, keeping order.
func SplitCandidates(urls []string) (manifests, files []string) {
	for _, u := range urls {
		if IsManifestURL(u) {
			manifests = append(manifests, u)
		} else {
			files = append(files, u)
		}
	}
	return manifests, files
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
