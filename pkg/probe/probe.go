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

// Package probe finds the first reachable URL among upstream candidates.
package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/metrics"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// DefaultTimeout bounds each probe attempt.
const DefaultTimeout = 6 * time.Second

// Prober checks candidate URLs with HEAD, falling back to a one byte
// ranged GET for panels that reject HEAD.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// New creates a Prober. headers are sent with every attempt.
func New(client *http.Client, timeout time.Duration, headers http.Header) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: client, timeout: timeout, headers: headers.Clone()}
}

// FirstReachable returns the first URL answering with a 2xx status, in list
// order. Errors are folded into a false result. Each URL costs at most two
// attempts of the configured timeout.
func (p *Prober) FirstReachable(ctx context.Context, urls []string) (string, bool) {
	for _, u := range urls {
		if ctx.Err() != nil {
			return "", false
		}
		if p.Reachable(ctx, u) {
			return u, true
		}
	}
	return "", false
}

// Reachable probes a single URL.
func (p *Prober) Reachable(ctx context.Context, rawURL string) bool {
	masked := utils.MaskURL(rawURL)

	status, err := p.attempt(ctx, http.MethodHead, rawURL)
	if err == nil && success(status) {
		utils.DebugLog("Probe (HEAD) ok %d for %s", status, masked)
		metrics.ProbeResults.WithLabelValues("head", "ok").Inc()
		return true
	}
	if err != nil {
		utils.DebugLog("Probe (HEAD) failed for %s: %v", masked, err)
		metrics.ProbeResults.WithLabelValues("head", "error").Inc()
		if ctx.Err() != nil {
			return false
		}
	} else {
		utils.DebugLog("Probe (HEAD) status %d for %s, trying GET range fallback", status, masked)
		metrics.ProbeResults.WithLabelValues("head", "status").Inc()
	}

	status, err = p.attempt(ctx, http.MethodGet, rawURL)
	switch {
	case err != nil:
		utils.DebugLog("Probe (GET range) failed for %s: %v", masked, err)
		metrics.ProbeResults.WithLabelValues("get", "error").Inc()
		return false
	case success(status):
		utils.DebugLog("Probe (GET range) ok %d for %s", status, masked)
		metrics.ProbeResults.WithLabelValues("get", "ok").Inc()
		return true
	default:
		utils.DebugLog("Probe (GET range) status %d for %s", status, masked)
		metrics.ProbeResults.WithLabelValues("get", "status").Inc()
		return false
	}
}

func (p *Prober) attempt(ctx context.Context, method, rawURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	for k, vs := range p.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", utils.GetIPTVUserAgent())
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errors.New(strings.ReplaceAll(err.Error(), rawURL, utils.MaskURL(rawURL)))
	}
	// Servers ignoring Range would stream the whole file.
	io.CopyN(io.Discard, resp.Body, 4096)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}
