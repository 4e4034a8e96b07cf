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

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/hls"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

const (
	proxyPath = "/media/proxy"
	hlsPath   = "/media/hls"

	maxProxiedPlaylist = 8 * 1024 * 1024
	fileCacheControl   = "private, max-age=300"
)

// Request and response headers copied between client and upstream.
var (
	forwardedRequestHeaders  = []string{"Range", "If-Range"}
	forwardedResponseHeaders = []string{"Content-Type", "Content-Range", "Accept-Ranges", "Content-Length", "Last-Modified", "ETag"}
)

// proxyURLFunc builds absolute proxy URLs signed for the current user.
func (c *Config) proxyURLFunc(ctx *gin.Context) hls.ProxyURLFunc {
	origin := c.PublicOrigin(ctx.Request.Host)
	token := c.tokens.issue(userID(ctx))
	return func(target string, playlist bool) string {
		route := proxyPath
		if playlist {
			route = hlsPath
		}
		q := url.Values{}
		q.Set("url", target)
		q.Set("t", token)
		return origin + route + "?" + q.Encode()
	}
}

// validatedTarget checks the url parameter against the user's panel.
func (c *Config) validatedTarget(ctx *gin.Context) (*types.Credentials, *url.URL, bool) {
	creds, err := c.playback.Credentials(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, err)
		return nil, nil, false
	}
	target, err := c.playback.ValidateTarget(creds, ctx.Query("url"))
	if err != nil {
		reason := "bad_request"
		if errors.Is(err, types.ErrForbiddenHost) {
			reason = "forbidden_host"
		}
		metrics.ProxyRejections.WithLabelValues(reason).Inc()
		respondError(ctx, err)
		return nil, nil, false
	}
	return creds, target, true
}

// proxyHandler streams one opaque upstream URL.
func (c *Config) proxyHandler(ctx *gin.Context) {
	_, target, ok := c.validatedTarget(ctx)
	if !ok {
		return
	}
	c.stream(ctx, target.String(), false)
}

// hlsProxyHandler rewrites a nested playlist.
func (c *Config) hlsProxyHandler(ctx *gin.Context) {
	_, target, ok := c.validatedTarget(ctx)
	if !ok {
		return
	}
	res, err := c.rewriter.Rewrite(ctx.Request.Context(), target.String(), c.proxyURLFunc(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	writePlaylist(ctx, res)
}

func writePlaylist(ctx *gin.Context, res *hls.Result) {
	setNoStoreHeaders(ctx)
	ctx.Data(http.StatusOK, hls.ContentType, []byte(res.Body))
}

// stream proxies rawURL to the client. Range headers go upstream, status
// and range headers come back, and the body is copied as it arrives. The
// upstream request dies with the client request. Playlists met on the way
// are rewritten instead of passed through.
func (c *Config) stream(ctx *gin.Context, rawURL string, cacheable bool) {
	masked := utils.MaskURL(rawURL)
	req, err := http.NewRequestWithContext(ctx.Request.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		respondError(ctx, types.ErrBadRequest)
		return
	}
	for _, h := range forwardedRequestHeaders {
		if v := ctx.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("User-Agent", utils.GetIPTVUserAgent())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.proxyClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.DebugLog("Client left before upstream answered: %s", masked)
			ctx.Abort()
			return
		}
		respondError(ctx, types.NewUpstreamError(masked, http.StatusBadGateway, nil,
			strings.ReplaceAll(err.Error(), rawURL, masked)))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && isPlaylistContentType(resp.Header.Get("Content-Type")) {
		c.rewriteProxiedPlaylist(ctx, resp)
		return
	}

	header := ctx.Writer.Header()
	for _, h := range forwardedResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}
	if cacheable && resp.StatusCode < http.StatusBadRequest {
		header.Set("Cache-Control", fileCacheControl)
	} else {
		setNoStoreHeaders(ctx)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		utils.WarnLog("Upstream %s answered %d", masked, resp.StatusCode)
		header.Del("Content-Length")
		ctx.Status(resp.StatusCode)
		return
	}
	ctx.Status(resp.StatusCode)

	w := ctx.Writer
	buf := make([]byte, 64*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				utils.DebugLog("Client write error on %s: %v", masked, werr)
				return
			}
			metrics.ProxiedBytes.Add(float64(n))
			w.Flush()
		}
		if rerr != nil {
			if rerr != io.EOF && ctx.Request.Context().Err() == nil {
				utils.DebugLog("Upstream read error on %s: %v", masked, rerr)
			}
			return
		}
	}
}

func (c *Config) rewriteProxiedPlaylist(ctx *gin.Context, resp *http.Response) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxiedPlaylist))
	if err != nil {
		respondError(ctx, types.NewUpstreamError(utils.MaskURL(resp.Request.URL.String()), resp.StatusCode, nil, "read body: "+err.Error()))
		return
	}
	res, err := hls.RewriteBody(body, resp.Request.URL, c.proxyURLFunc(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	writePlaylist(ctx, res)
}
