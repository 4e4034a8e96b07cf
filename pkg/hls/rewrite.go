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

// Package hls rewrites upstream HLS playlists so that every referenced
// resource is fetched through the proxy.
package hls

import (
	"net/url"
	"path"
	"strings"

	"github.com/grafana/regexp"
)

// ProxyURLFunc maps an absolute upstream URL to a client facing proxy URL.
// playlist is true when the target is itself an HLS playlist.
type ProxyURLFunc func(target string, playlist bool) string

var uriAttribute = regexp.MustCompile(`URI="([^"]*)"`)

// Tags whose URI attribute must be proxied, and whether that URI names a
// playlist.
var uriTags = map[string]bool{
	"#EXT-X-KEY":                false,
	"#EXT-X-SESSION-KEY":        false,
	"#EXT-X-MAP":                false,
	"#EXT-X-MEDIA":              true,
	"#EXT-X-I-FRAME-STREAM-INF": true,
}

// RewriteLine rewrites one playlist line. Blank lines and tags without a
// proxied URI attribute are returned unchanged. Any other non comment line
// is a media URI, resolved against base and replaced by its proxy URL.
func RewriteLine(line string, base *url.URL, proxy ProxyURLFunc) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return line
	}

	if strings.HasPrefix(trimmed, "#") {
		tag := trimmed
		if i := strings.IndexByte(tag, ':'); i >= 0 {
			tag = tag[:i]
		}
		playlist, ok := uriTags[strings.ToUpper(tag)]
		if !ok {
			return line
		}
		return uriAttribute.ReplaceAllStringFunc(line, func(attr string) string {
			ref := uriAttribute.FindStringSubmatch(attr)[1]
			target, ok := resolve(base, ref)
			if !ok {
				return attr
			}
			return `URI="` + proxy(target, playlist || IsPlaylistPath(target)) + `"`
		})
	}

	target, ok := resolve(base, trimmed)
	if !ok {
		return line
	}
	return proxy(target, IsPlaylistPath(target))
}

// Rewrite applies RewriteLine to every line of a playlist. Line count,
// order and line endings are preserved.
func Rewrite(body string, base *url.URL, proxy ProxyURLFunc) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		cr := strings.HasSuffix(line, "\r")
		if cr {
			line = strings.TrimSuffix(line, "\r")
		}
		out := RewriteLine(line, base, proxy)
		if cr {
			out += "\r"
		}
		lines[i] = out
	}
	return strings.Join(lines, "\n")
}

// IsPlaylistPath reports whether a URL path ends in .m3u8 or .m3u.
func IsPlaylistPath(raw string) bool {
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

// resolve turns a possibly relative reference into an absolute http(s)
// URL. data:, skd: and other schemes are left alone.
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
