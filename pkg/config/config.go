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

package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CredentialString is a secret taken from flags or the environment.
type CredentialString string

// PathEscape escapes the credential for use as a URL path segment.
func (c CredentialString) PathEscape() string {
	return url.PathEscape(string(c))
}

func (c CredentialString) String() string {
	return string(c)
}

// HostConfiguration is the address the HTTP server listens on.
type HostConfiguration struct {
	Hostname string
	Port     int
}

// Timeouts are per call; none of them spans a whole proxied body.
type Timeouts struct {
	Probe    time.Duration
	Manifest time.Duration
	Segment  time.Duration
	Provider time.Duration
}

// TMDBConfig configures the metadata provider client.
type TMDBConfig struct {
	APIKey           string
	BaseURL          string
	Language         string
	FallbackLanguage string
	RequestsPerSec   int
	Retries          uint
}

// LDAPConfig mirrors the ldap-* flags.
type LDAPConfig struct {
	Enabled        bool
	Server         string
	BaseDN         string
	BindDN         string
	BindPassword   string
	UserAttribute  string
	GroupAttribute string
	RequiredGroup  string
}

// ProxyConfig is the full runtime configuration.
type ProxyConfig struct {
	HostConfig     *HostConfiguration
	AdvertisedPort int
	HTTPS          bool

	// Single statically configured upstream account, used when the user
	// has no linked account of their own.
	XtreamUser     CredentialString
	XtreamPassword CredentialString
	XtreamBaseURL  string

	// Local auth
	User     CredentialString
	Password CredentialString
	LDAP     LDAPConfig

	UserAgent    string
	AllowedHosts []string

	DBDriver string
	DBDSN    string

	TMDB        TMDBConfig
	MetadataTTL time.Duration
	Timeouts    Timeouts

	PlaybackSecret   string
	PlaybackTokenTTL time.Duration
	CredentialKey    string
}

// Defaults applied by Validate when a field is zero.
const (
	DefaultProbeTimeout     = 6 * time.Second
	DefaultManifestTimeout  = 12 * time.Second
	DefaultSegmentTimeout   = 15 * time.Second
	DefaultProviderTimeout  = 12 * time.Second
	DefaultMetadataTTL      = 7 * 24 * time.Hour
	DefaultPlaybackTokenTTL = 6 * time.Hour
)

// Validate fills defaults and rejects inconsistent settings.
func (c *ProxyConfig) Validate() error {
	if c.HostConfig == nil {
		c.HostConfig = &HostConfiguration{Port: 8080}
	}
	if c.HostConfig.Port <= 0 || c.HostConfig.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.HostConfig.Port)
	}
	if c.AdvertisedPort == 0 {
		c.AdvertisedPort = c.HostConfig.Port
	}
	if c.XtreamBaseURL != "" {
		u, err := url.Parse(c.XtreamBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid xtream-base-url %q", c.XtreamBaseURL)
		}
	}
	if c.Timeouts.Probe <= 0 {
		c.Timeouts.Probe = DefaultProbeTimeout
	}
	if c.Timeouts.Manifest <= 0 {
		c.Timeouts.Manifest = DefaultManifestTimeout
	}
	if c.Timeouts.Segment <= 0 {
		c.Timeouts.Segment = DefaultSegmentTimeout
	}
	if c.Timeouts.Provider <= 0 {
		c.Timeouts.Provider = DefaultProviderTimeout
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = DefaultMetadataTTL
	}
	if c.PlaybackTokenTTL <= 0 {
		c.PlaybackTokenTTL = DefaultPlaybackTokenTTL
	}
	if c.TMDB.RequestsPerSec <= 0 {
		c.TMDB.RequestsPerSec = 20
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = "fr-FR"
	}
	if c.TMDB.FallbackLanguage == "" {
		c.TMDB.FallbackLanguage = "en-US"
	}
	switch c.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db-driver %q", c.DBDriver)
	}
	return nil
}

// StaticAccountConfigured reports whether xtream-* flags describe an account.
func (c *ProxyConfig) StaticAccountConfigured() bool {
	return c.XtreamBaseURL != "" && c.XtreamUser != "" && c.XtreamPassword != ""
}

// PublicOrigin is the scheme://host[:port] used in generated URLs. requestHost
// is used when no hostname is configured.
func (c *ProxyConfig) PublicOrigin(requestHost string) string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	if c.HostConfig == nil || c.HostConfig.Hostname == "" {
		if requestHost == "" {
			requestHost = "localhost:" + strconv.Itoa(c.AdvertisedPort)
		}
		return scheme + "://" + requestHost
	}

	host := c.HostConfig.Hostname
	port := c.AdvertisedPort
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) || port == 0 {
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseAllowedHosts splits a comma separated host list.
func ParseAllowedHosts(raw string) []string {
	var out []string
	for _, h := range strings.Split(raw, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}
