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

// Package playback picks a playable upstream source for a title and guards
// the proxy against foreign hosts.
package playback

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/credentials"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/hls"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/xtream"
)

// Upstream is the panel call used to read a movie's container extension.
type Upstream interface {
	Info(ctx context.Context, creds *types.Credentials, kind types.Kind, id string) ([]byte, error)
}

// Prober finds the first reachable URL.
type Prober interface {
	FirstReachable(ctx context.Context, urls []string) (string, bool)
}

// Rewriter fetches and rewrites a playlist.
type Rewriter interface {
	Rewrite(ctx context.Context, manifestURL string, proxy hls.ProxyURLFunc) (*hls.Result, error)
}

// Service resolves playback sources.
type Service struct {
	store        credentials.Store
	upstream     Upstream
	prober       Prober
	rewriter     Rewriter
	allowedHosts []string
}

// NewService creates a Service. allowedHosts lists extra hosts, as host or
// host:port, the proxy may fetch from besides the user's panel.
func NewService(store credentials.Store, upstream Upstream, prober Prober, rewriter Rewriter, allowedHosts []string) *Service {
	return &Service{
		store:        store,
		upstream:     upstream,
		prober:       prober,
		rewriter:     rewriter,
		allowedHosts: allowedHosts,
	}
}

// Credentials returns the upstream account of a user.
func (s *Service) Credentials(ctx context.Context, userID string) (*types.Credentials, error) {
	if s.store == nil {
		return nil, types.ErrNotLinked
	}
	return s.store.Credentials(ctx, userID)
}

// Manifest finds the reachable HLS manifest of ref and returns it rewritten.
func (s *Service) Manifest(ctx context.Context, creds *types.Credentials, ref types.ContentRef, proxy hls.ProxyURLFunc) (*hls.Result, error) {
	if creds == nil {
		return nil, types.ErrNotLinked
	}
	manifests, _ := xtream.SplitCandidates(xtream.CandidateURLs(ref.Kind, ref.UpstreamID, creds, ref.Extension))
	target, ok := s.prober.FirstReachable(ctx, manifests)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s", types.ErrNoManifest, ref.Kind, ref.UpstreamID)
	}
	utils.DebugLog("Manifest for %s/%s: %s", ref.Kind, ref.UpstreamID, utils.MaskURL(target))
	return s.rewriter.Rewrite(ctx, target, proxy)
}

// FileSource returns the first reachable progressive URL of ref. Movies
// without an extension hint use the container_extension of the panel info.
func (s *Service) FileSource(ctx context.Context, creds *types.Credentials, ref types.ContentRef) (string, error) {
	if creds == nil {
		return "", types.ErrNotLinked
	}
	if ref.Extension == "" && ref.Kind == types.KindMovie && s.upstream != nil {
		if data, err := s.upstream.Info(ctx, creds, ref.Kind, ref.UpstreamID); err == nil {
			ref.Extension, _ = xtream.FirstString(data, xtream.ExtensionFields...)
		} else {
			utils.DebugLog("Extension lookup for movie %s failed: %v", ref.UpstreamID, err)
		}
	}

	_, files := xtream.SplitCandidates(xtream.CandidateURLs(ref.Kind, ref.UpstreamID, creds, ref.Extension))
	target, ok := s.prober.FirstReachable(ctx, files)
	if !ok {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s %s", types.ErrUpstreamUnreachable, ref.Kind, ref.UpstreamID)
	}
	return target, nil
}

// ValidateTarget parses an opaque proxy target and checks that it shares
// scheme, host and port with the user's panel, or names an allowed host.
func (s *Service) ValidateTarget(creds *types.Credentials, raw string) (*url.URL, error) {
	if creds == nil || creds.BaseURL == nil {
		return nil, types.ErrNotLinked
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: missing url", types.ErrBadRequest)
	}
	target, err := url.Parse(raw)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("%w: invalid url", types.ErrBadRequest)
	}
	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", types.ErrForbiddenHost, target.Scheme)
	}

	if SameOrigin(creds.BaseURL, target) || s.allowed(target) {
		return target, nil
	}
	utils.WarnLog("Rejected proxy target host %s", target.Host)
	return nil, fmt.Errorf("%w: %s", types.ErrForbiddenHost, target.Hostname())
}

func (s *Service) allowed(target *url.URL) bool {
	host := strings.ToLower(target.Hostname())
	hostPort := net.JoinHostPort(host, effectivePort(target))
	for _, a := range s.allowedHosts {
		a = strings.ToLower(a)
		if a == host || a == hostPort {
			return true
		}
	}
	return false
}

// SameOrigin compares scheme, case folded hostname and port, with default
// ports made explicit.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}
