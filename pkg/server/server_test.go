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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/config"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/hls"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

const testAPIKey = "test-api-key"

// newPanel fakes an upstream panel for the account alice/secret.
func newPanel(t *testing.T) *httptest.Server {
	t.Helper()
	var panel *httptest.Server
	panel = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/player_api.php":
			switch q.Get("action") {
			case "get_vod_info":
				fmt.Fprint(w, `{"info":{"name":"FR | Matrix Reloaded 2003 1080p"},"movie_data":{"stream_id":42,"container_extension":"mp4"}}`)
			case "get_series_info":
				fmt.Fprint(w, `{"info":{"name":"Loki"},"episodes":{"1":[{"id":"5001","episode_num":1},{"id":"5002","episode_num":2}]}}`)
			default:
				fmt.Fprint(w, `[]`)
			}
		case "/movie/alice/secret/42.m3u8":
			w.Header().Set("Content-Type", hls.ContentType)
			fmt.Fprintf(w, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n"+
				"#EXT-X-KEY:METHOD=AES-128,URI=\"%[1]s/keys/k1\"\n"+
				"#EXTINF:10,\n%[1]s/seg/1.ts\n#EXTINF:10,\n%[1]s/seg/2.ts\n#EXTINF:10,\n%[1]s/seg/3.ts\n#EXT-X-ENDLIST\n", panel.URL)
		case "/series/alice/secret/5002.m3u8":
			w.Header().Set("Content-Type", hls.ContentType)
			fmt.Fprint(w, "#EXTM3U\n#EXTINF:10,\nep2.ts\n#EXT-X-ENDLIST\n")
		case "/live/master.m3u8":
			w.Header().Set("Content-Type", "application/x-mpegURL")
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2000000\nhigh/index.m3u8\n")
		case "/seg/1.ts", "/movie/alice/secret/42.mp4":
			http.ServeContent(w, r, "", time.Time{}, strings.NewReader("segment-1"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(panel.Close)
	return panel
}

func newTestServer(t *testing.T, panelURL string, mutate func(*config.ProxyConfig)) (*Config, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("INTERNAL_API_KEY", testAPIKey)

	cfg := &config.ProxyConfig{
		HostConfig:     &config.HostConfiguration{Port: 8080},
		XtreamBaseURL:  panelURL,
		XtreamUser:     "alice",
		XtreamPassword: "secret",
		User:           "viewer",
		Password:       "pw",
		DBDriver:       "sqlite",
		DBDSN:          ":memory:",
		CredentialKey:  strings.Repeat("ab", 32),
		PlaybackSecret: "test-secret",
		Timeouts:       config.Timeouts{Probe: 2 * time.Second, Manifest: 2 * time.Second, Segment: 2 * time.Second},
	}
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, srv.Router()
}

func get(router *gin.Engine, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func viewer() http.Header {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("viewer", "pw")
	return req.Header
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	assert.False(t, resp.Success)
	return resp.Error
}

// proxyURLs returns the proxy URLs found in a rewritten playlist.
func proxyURLs(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "http://example.com/media/"); i >= 0 {
			u := line[i:]
			if j := strings.IndexByte(u, '"'); j >= 0 {
				u = u[:j]
			}
			out = append(out, u)
		}
	}
	return out
}

func TestManifestEndToEnd(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/movie/42/hls.m3u8", viewer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, hls.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	urls := proxyURLs(body)
	require.Len(t, urls, 4, body)
	assert.Equal(t, 1, strings.Count(body, `#EXT-X-KEY:METHOD=AES-128,URI="http://example.com/media/proxy?`))
	assert.NotContains(t, strings.ReplaceAll(body, url.QueryEscape(panel.URL), ""), panel.URL)

	seg, err := url.Parse(urls[1])
	require.NoError(t, err)
	assert.Equal(t, "/media/proxy", seg.Path)
	assert.Equal(t, panel.URL+"/seg/1.ts", seg.Query().Get("url"))
	assert.NotEmpty(t, seg.Query().Get("t"))

	// Segment fetch with the embedded token only, and a range.
	w = get(router, seg.RequestURI(), http.Header{"Range": {"bytes=0-3"}})
	require.Equal(t, http.StatusPartialContent, w.Code, w.Body.String())
	assert.Equal(t, "segm", w.Body.String())
	assert.Equal(t, "bytes 0-3/9", w.Header().Get("Content-Range"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestProxyRejectsForeignHost(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/proxy?url="+url.QueryEscape("http://evil.example/seg.ts"), viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeForbiddenHost, errorCode(t, w))

	w = get(router, "/media/hls?url="+url.QueryEscape("http://169.254.169.254/latest.m3u8"), viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeForbiddenHost, errorCode(t, w))
}

func TestAuthentication(t *testing.T) {
	panel := newPanel(t)
	srv, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/movie/42/hls.m3u8", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, codeUnauthorized, errorCode(t, w))
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = get(router, "/media/movie/42/hls.m3u8?username=viewer&password=nope", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/media/movie/42/hls.m3u8?username=viewer&password=pw", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(router, "/media/movie/42/hls.m3u8?t=forged.token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/media/movie/42/hls.m3u8?t="+srv.tokens.issue("viewer"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManifestNotFound(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/movie/99/hls.m3u8", viewer())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNoManifest, errorCode(t, w))

	w = get(router, "/media/movie/99/file", viewer())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNoSource, errorCode(t, w))

	w = get(router, "/media/cartoon/1/hls.m3u8", viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeBadRequest, errorCode(t, w))
}

func TestFileUsesContainerExtension(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/movie/42/file", viewer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "segment-1", w.Body.String())
	assert.Equal(t, fileCacheControl, w.Header().Get("Cache-Control"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
}

func TestEpisodeManifest(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/series/77/season/1/episode/2/hls.m3u8", viewer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	urls := proxyURLs(w.Body.String())
	require.Len(t, urls, 1)
	u, _ := url.Parse(urls[0])
	assert.Equal(t, panel.URL+"/series/alice/secret/ep2.ts", u.Query().Get("url"))

	w = get(router, "/media/series/77/season/1/episode/9/hls.m3u8", viewer())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeEpisode, errorCode(t, w))

	w = get(router, "/media/movie/77/season/1/episode/1/hls.m3u8", viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderRouteWithoutMatch(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/tmdb/603/hls.m3u8", viewer())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeStreamNotFound, errorCode(t, w))

	w = get(router, "/media/tmdb/abc/hls.m3u8", viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNestedPlaylists(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)
	master := panel.URL + "/live/master.m3u8"

	for _, route := range []string{"/media/hls", "/media/proxy"} {
		w := get(router, route+"?url="+url.QueryEscape(master), viewer())
		require.Equal(t, http.StatusOK, w.Code, route)
		assert.Equal(t, hls.ContentType, w.Header().Get("Content-Type"), route)

		urls := proxyURLs(w.Body.String())
		require.Len(t, urls, 2, route)
		u, _ := url.Parse(urls[0])
		assert.Equal(t, "/media/hls", u.Path)
		assert.Equal(t, panel.URL+"/live/low/index.m3u8", u.Query().Get("url"))
	}
}

func TestMetadataWithoutProvider(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	w := get(router, "/media/movie/42", viewer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec types.MetadataRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, types.MatchUpstreamOnly, rec.Match)
	require.NotNil(t, rec.Title)
	assert.Equal(t, "Matrix Reloaded", *rec.Title)
	require.NotNil(t, rec.Year)
	assert.Equal(t, 2003, *rec.Year)
	assert.Nil(t, rec.ProviderID)
	assert.JSONEq(t, `{"info":{"name":"FR | Matrix Reloaded 2003 1080p"},"movie_data":{"stream_id":42,"container_extension":"mp4"}}`, string(rec.Raw))

	w = get(router, "/media/series/77?refresh=1", viewer())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Len(t, rec.Episodes["1"], 2)

	w = get(router, "/media/live/1", viewer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLinkedAccounts(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, func(cfg *config.ProxyConfig) {
		cfg.XtreamBaseURL = ""
		cfg.XtreamUser = ""
		cfg.XtreamPassword = ""
	})

	w := get(router, "/media/movie/42/hls.m3u8", viewer())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotLinked, errorCode(t, w))

	link := func(key string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/internal/accounts/viewer", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusUnauthorized, link("wrong", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, link(testAPIKey, `{"base_url":"ftp://x","username":"a","password":"b"}`).Code)

	account := fmt.Sprintf(`{"base_url":%q,"username":"alice","password":"secret"}`, panel.URL)
	require.Equal(t, http.StatusOK, link(testAPIKey, account).Code)

	w = get(router, "/media/movie/42/hls.m3u8", viewer())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodDelete, "/api/internal/accounts/viewer", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	w = get(router, "/media/movie/42/hls.m3u8", viewer())
	assert.Equal(t, codeNotLinked, errorCode(t, w))
}

func TestAnonymousWhenNoAuthConfigured(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, func(cfg *config.ProxyConfig) {
		cfg.User = ""
		cfg.Password = ""
	})

	w := get(router, "/media/movie/42/hls.m3u8", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	_, router := newTestServer(t, "", nil)

	w := get(router, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(router, "/healthz", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = get(router, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "novastream_")
}

func TestInternalAPI(t *testing.T) {
	panel := newPanel(t)
	_, router := newTestServer(t, panel.URL, nil)

	call := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("X-API-Key", testAPIKey)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/internal/ping").Code)
	assert.Equal(t, http.StatusOK, call(http.MethodDelete, "/api/internal/catalog").Code)

	require.Equal(t, http.StatusOK, get(router, "/media/movie/42", viewer()).Code)
	assert.Equal(t, http.StatusOK, call(http.MethodDelete, "/api/internal/metadata/movie/42").Code)
	assert.Equal(t, http.StatusBadRequest, call(http.MethodDelete, "/api/internal/metadata/cartoon/42").Code)
}

func TestProxyAbortsUpstreamWhenClientLeaves(t *testing.T) {
	sent := make(chan struct{})
	aborted := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/alice/secret/9.ts" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "first-chunk")
		w.(http.Flusher).Flush()
		close(sent)
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	_, router := newTestServer(t, slow.URL, func(cfg *config.ProxyConfig) {
		cfg.Timeouts.Segment = time.Minute
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/media/proxy?url="+url.QueryEscape(slow.URL+"/live/alice/secret/9.ts"), nil).WithContext(ctx)
	req.SetBasicAuth("viewer", "pw")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(w, req)
	}()

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never started streaming")
	}
	cancel()

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request outlived the client")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept running after the client left")
	}
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "first-chunk", w.Body.String())
}

func TestLinkAccountWithoutCredentialKey(t *testing.T) {
	_, router := newTestServer(t, "", func(cfg *config.ProxyConfig) {
		cfg.CredentialKey = ""
	})

	req := httptest.NewRequest(http.MethodPut, "/api/internal/accounts/viewer",
		bytes.NewBufferString(`{"base_url":"http://panel.example","username":"a","password":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeBadRequest, errorCode(t, w))
}
