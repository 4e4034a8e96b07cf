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

package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// ContentType of every playlist the proxy serves.
const ContentType = "application/vnd.apple.mpegurl"

const (
	DefaultTimeout  = 12 * time.Second
	maxPlaylistSize = 8 * 1024 * 1024
)

// Result is a rewritten playlist.
type Result struct {
	Body string
	// Source is the URL the playlist was finally served from, after redirects.
	Source *url.URL
	// Master is set for multivariant playlists.
	Master   bool
	Variants int
	Segments int
}

// Rewriter fetches upstream playlists and rewrites them.
type Rewriter struct {
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// NewRewriter creates a Rewriter. timeout bounds the fetch of one playlist.
func NewRewriter(client *http.Client, timeout time.Duration, headers http.Header) *Rewriter {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Rewriter{client: client, timeout: timeout, headers: headers.Clone()}
}

// Rewrite fetches manifestURL and rewrites it with proxy. Relative URIs are
// resolved against the URL the playlist was served from after redirects.
func (r *Rewriter) Rewrite(ctx context.Context, manifestURL string, proxy ProxyURLFunc) (*Result, error) {
	body, source, err := r.fetch(ctx, manifestURL)
	if err != nil {
		metrics.ManifestRewrites.WithLabelValues("upstream_error", typeUnknown).Inc()
		return nil, err
	}
	return RewriteBody(body, source, proxy)
}

const (
	typeMaster  = "master"
	typeMedia   = "media"
	typeUnknown = "unknown"
)

// Type is "master" or "media".
func (r *Result) Type() string {
	if r.Master {
		return typeMaster
	}
	return typeMedia
}

// RewriteBody validates and rewrites an already fetched playlist. A body
// without the #EXTM3U header, or whose tags name neither variants nor media
// segments, is rejected.
func RewriteBody(body []byte, source *url.URL, proxy ProxyURLFunc) (*Result, error) {
	masked := utils.MaskURL(source.String())
	text := strings.TrimPrefix(string(body), "\ufeff")
	if !strings.HasPrefix(strings.TrimSpace(text), "#EXTM3U") {
		metrics.ManifestRewrites.WithLabelValues("malformed", typeUnknown).Inc()
		return nil, types.NewUpstreamError(masked, http.StatusOK, body, "not an HLS playlist")
	}

	res := &Result{Source: source}
	if err := classify(res, text); err != nil {
		metrics.ManifestRewrites.WithLabelValues("malformed", typeUnknown).Inc()
		return nil, types.NewUpstreamError(masked, http.StatusOK, body, "unusable HLS playlist: "+err.Error())
	}
	res.Body = Rewrite(text, source, proxy)

	metrics.ManifestRewrites.WithLabelValues("ok", res.Type()).Inc()
	utils.DebugLog("Rewrote %s playlist %s: %d variants, %d segments", res.Type(), masked, res.Variants, res.Segments)
	return res, nil
}

// classify records the playlist type and its variant or segment count.
func classify(res *Result, text string) error {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return err
	}
	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		res.Master = true
		res.Variants = len(master.Variants)
	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		for _, seg := range media.Segments {
			if seg != nil {
				res.Segments++
			}
		}
	}
	return nil
}

func (r *Rewriter) fetch(ctx context.Context, manifestURL string) ([]byte, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	masked := utils.MaskURL(manifestURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", types.ErrBadRequest, err)
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", utils.GetIPTVUserAgent())
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, types.NewUpstreamError(masked, http.StatusBadGateway, nil,
			strings.ReplaceAll(err.Error(), manifestURL, masked))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return nil, nil, types.NewUpstreamError(masked, resp.StatusCode, nil, "read body: "+err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		utils.WarnLog("Manifest fetch %s returned %d: %s", masked, resp.StatusCode, bytes.TrimSpace(snippet(body)))
		return nil, nil, types.NewUpstreamError(masked, resp.StatusCode, body, "")
	}

	source := resp.Request.URL
	if source == nil {
		source, _ = url.Parse(manifestURL)
	}
	return body, source, nil
}

func snippet(b []byte) []byte {
	if len(b) > 200 {
		return b[:200]
	}
	return b
}
