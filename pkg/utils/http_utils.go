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

import "sync/atomic"

const defaultUserAgent = "IPTVSmartersPro"

var userAgent atomic.Value

// SetIPTVUserAgent overrides the user agent sent upstream. An empty value
// restores the USER_AGENT environment variable or the default.
func SetIPTVUserAgent(ua string) {
	userAgent.Store(ua)
}

// GetIPTVUserAgent returns the user agent to use for IPTV upstream requests
func GetIPTVUserAgent() string {
	if ua, _ := userAgent.Load().(string); ua != "" {
		return ua
	}
	return GetEnvOrDefault("USER_AGENT", defaultUserAgent)
}
