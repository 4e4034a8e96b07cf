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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

// API endpoint constants
const (
	getVodStreams = "get_vod_streams"
	getVodInfo    = "get_vod_info"
	getSeries     = "get_series"
	getSerieInfo  = "get_series_info"
)

const maxAPIBody = 32 * 1024 * 1024

// Client talks to Xtream-Codes style panels. It holds no credentials;
// every call receives the caller's own.
type Client struct {
	httpc     *http.Client
	userAgent string
	timeout   time.Duration
}

// New creates a panel client. timeout bounds each API call.
func New(httpc *http.Client, userAgent string, timeout time.Duration) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = utils.GetIPTVUserAgent()
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{httpc: httpc, userAgent: userAgent, timeout: timeout}
}

// Action calls player_api.php and returns the trimmed JSON body. Empty,
// null and HTML bodies are replaced by an empty value of the expected shape.
// The call is not retried.
func (c *Client) Action(ctx context.Context, creds *types.Credentials, action string, q url.Values) ([]byte, error) {
	u := endpointURL(creds, "player_api.php")
	params := url.Values{}
	params.Set("username", creds.Username)
	params.Set("password", creds.Password)
	if strings.TrimSpace(action) != "" {
		params.Set("action", action)
	}
	for k, vs := range q {
		if k == "username" || k == "password" || k == "action" {
			continue
		}
		for _, v := range vs {
			if v != "" {
				params.Add(k, v)
			}
		}
	}
	u.RawQuery = params.Encode()

	body, err := c.get(ctx, u.String(), "application/json, text/plain, */*")
	if err != nil {
		return nil, err
	}

	trim := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\ufeff")))
	if len(trim) == 0 || bytes.Equal(trim, []byte("null")) || trim[0] == '<' {
		utils.DebugLog("Xtream action=%s returned an empty body, using fallback", action)
		return fallbackForAction(action), nil
	}
	if trim[0] != '{' && trim[0] != '[' {
		return nil, types.NewUpstreamError(utils.MaskURL(u.String()), http.StatusOK, trim, "malformed JSON body")
	}
	return trim, nil
}

// VODInfo returns the raw get_vod_info payload.
func (c *Client) VODInfo(ctx context.Context, creds *types.Credentials, id string) ([]byte, error) {
	return c.Action(ctx, creds, getVodInfo, url.Values{"vod_id": {id}})
}

// SeriesInfo returns the raw get_series_info payload.
func (c *Client) SeriesInfo(ctx context.Context, creds *types.Credentials, id string) ([]byte, error) {
	return c.Action(ctx, creds, getSerieInfo, url.Values{"series_id": {id}})
}

// Info dispatches to VODInfo or SeriesInfo.
func (c *Client) Info(ctx context.Context, creds *types.Credentials, kind types.Kind, id string) ([]byte, error) {
	if kind == types.KindSeries {
		return c.SeriesInfo(ctx, creds, id)
	}
	return c.VODInfo(ctx, creds, id)
}

// downloadPlaylist stores get.php?type=m3u_plus in a temporary file and
// returns its path. The caller removes the file.
func (c *Client) downloadPlaylist(ctx context.Context, creds *types.Credentials) (string, error) {
	u := endpointURL(creds, "get.php")
	params := url.Values{}
	params.Set("username", creds.Username)
	params.Set("password", creds.Password)
	params.Set("type", "m3u_plus")
	params.Set("output", "ts")
	u.RawQuery = params.Encode()

	body, err := c.get(ctx, u.String(), "*/*")
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "nova-stream-*.m3u")
	if err != nil {
		return "", utils.ErrorWithLocation(err)
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		os.Remove(f.Name())
		return "", utils.ErrorWithLocation(err)
	}
	return f.Name(), nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	masked := utils.MaskURL(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, utils.ErrorWithLocation(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	utils.DebugLog("Xtream request: %s", masked)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUpstreamUnreachable, masked, scrubURLError(err, rawURL, masked))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %v", masked, scrubURLError(err, rawURL, masked))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewUpstreamError(masked, resp.StatusCode, body, "")
	}
	return body, nil
}

// endpointURL keeps any base path of the panel URL.
func endpointURL(creds *types.Credentials, endpoint string) *url.URL {
	u := *creds.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + endpoint
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return &u
}

// scrubURLError keeps credentials out of *url.Error messages.
func scrubURLError(err error, rawURL, masked string) string {
	return strings.ReplaceAll(err.Error(), rawURL, masked)
}

// fallbackForAction returns a sensible empty structure per action
func fallbackForAction(action string) []byte {
	switch action {
	case getVodStreams, getSeries:
		return []byte("[]")
	default:
		return []byte("{}")
	}
}
