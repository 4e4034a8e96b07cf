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
	"net/url"
	"strings"
)

// MaskString masks sensitive parts of strings for logging.
func MaskString(s string) string {
	if len(s) <= 8 {
		if len(s) <= 0 {
			return "[empty]"
		}
		return s[:1] + "******"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// MaskURL masks panel credentials in URLs for logging. Both the path form
// (/movie/user/pass/id.ext) and the player_api query form are handled.
func MaskURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return maskPathCredentials(urlStr)
	}

	if q := u.Query(); q.Has("username") || q.Has("password") || q.Has("t") {
		for _, key := range []string{"username", "password", "t"} {
			if q.Has(key) {
				q.Set(key, MaskString(q.Get(key)))
			}
		}
		u.RawQuery = q.Encode()
	}
	if inner := u.Query().Get("url"); inner != "" {
		q := u.Query()
		q.Set("url", MaskURL(inner))
		u.RawQuery = q.Encode()
	}

	masked := u.Scheme + "://" + u.Host + maskPathCredentials(u.EscapedPath())
	if u.RawQuery != "" {
		masked += "?" + u.RawQuery
	}
	return masked
}

func maskPathCredentials(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if !isMediaKind(part) || i+3 >= len(parts) {
			continue
		}
		parts[i+1] = MaskString(parts[i+1])
		parts[i+2] = MaskString(parts[i+2])
		break
	}
	return strings.Join(parts, "/")
}

func isMediaKind(segment string) bool {
	switch segment {
	case "movie", "series", "live":
		return true
	}
	return false
}
