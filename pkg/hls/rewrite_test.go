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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/types"
)

const proxyOrigin = "http://proxy.local"

func testProxy(target string, playlist bool) string {
	route := "/media/proxy"
	if playlist {
		route = "/media/hls"
	}
	return proxyOrigin + route + "?url=" + url.QueryEscape(target)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func decodeTarget(t *testing.T, proxied string) (string, string) {
	t.Helper()
	u := mustURL(t, proxied)
	require.Equal(t, "proxy.local", u.Host, "line %q was not proxied", proxied)
	return u.Path, u.Query().Get("url")
}

func TestRewriteLineSegmentRoundTrip(t *testing.T) {
	base := mustURL(t, "https://origin/live/stream.m3u8")
	out := RewriteLine("https://origin/path/seg1.ts", base, testProxy)

	route, target := decodeTarget(t, out)
	assert.Equal(t, "/media/proxy", route)
	assert.Equal(t, "https://origin/path/seg1.ts", target)
}

func TestRewriteLine(t *testing.T) {
	base := mustURL(t, "https://origin/live/u/p/stream.m3u8?token=abc")
	tests := []struct {
		name       string
		line       string
		unchanged  bool
		wantRoute  string
		wantTarget string
	}{
		{name: "blank", line: "", unchanged: true},
		{name: "whitespace", line: "   ", unchanged: true},
		{name: "duration tag", line: "#EXTINF:10.0,", unchanged: true},
		{name: "header", line: "#EXTM3U", unchanged: true},
		{name: "discontinuity", line: "#EXT-X-DISCONTINUITY", unchanged: true},
		{name: "stream inf", line: "#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360", unchanged: true},
		{name: "relative segment", line: "seg-1.ts", wantRoute: "/media/proxy", wantTarget: "https://origin/live/u/p/seg-1.ts"},
		{name: "root relative segment", line: "/hls/seg-2.ts?x=1", wantRoute: "/media/proxy", wantTarget: "https://origin/hls/seg-2.ts?x=1"},
		{name: "parent relative", line: "../chunks/seg-3.ts", wantRoute: "/media/proxy", wantTarget: "https://origin/live/u/chunks/seg-3.ts"},
		{name: "nested playlist", line: "720p/index.m3u8", wantRoute: "/media/hls", wantTarget: "https://origin/live/u/p/720p/index.m3u8"},
		{name: "segment with spaces around", line: "  seg-4.ts  ", wantRoute: "/media/proxy", wantTarget: "https://origin/live/u/p/seg-4.ts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RewriteLine(tt.line, base, testProxy)
			if tt.unchanged {
				assert.Equal(t, tt.line, out)
				return
			}
			route, target := decodeTarget(t, out)
			assert.Equal(t, tt.wantRoute, route)
			assert.Equal(t, tt.wantTarget, target)
		})
	}
}

func TestRewriteLineURIAttributes(t *testing.T) {
	base := mustURL(t, "https://origin/live/stream.m3u8")
	tests := []struct {
		name       string
		line       string
		wantPrefix string
		wantRoute  string
		wantTarget string
	}{
		{
			name:       "key",
			line:       `#EXT-X-KEY:METHOD=AES-128,URI="keys/k1.key",IV=0x1234`,
			wantPrefix: "#EXT-X-KEY:METHOD=AES-128,URI=",
			wantRoute:  "/media/proxy",
			wantTarget: "https://origin/live/keys/k1.key",
		},
		{
			name:       "init section",
			line:       `#EXT-X-MAP:URI="init.mp4"`,
			wantPrefix: "#EXT-X-MAP:URI=",
			wantRoute:  "/media/proxy",
			wantTarget: "https://origin/live/init.mp4",
		},
		{
			name:       "alternate audio",
			line:       `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="fr",URI="audio/fr.m3u8"`,
			wantPrefix: "#EXT-X-MEDIA:TYPE=AUDIO,",
			wantRoute:  "/media/hls",
			wantTarget: "https://origin/live/audio/fr.m3u8",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RewriteLine(tt.line, base, testProxy)
			require.True(t, strings.HasPrefix(out, tt.wantPrefix), "got %q", out)

			m := uriAttribute.FindStringSubmatch(out)
			require.NotNil(t, m, "no URI attribute in %q", out)
			route, target := decodeTarget(t, m[1])
			assert.Equal(t, tt.wantRoute, route)
			assert.Equal(t, tt.wantTarget, target)
			if strings.Contains(tt.line, "IV=0x1234") {
				assert.True(t, strings.HasSuffix(out, ",IV=0x1234"), "attributes after URI lost: %q", out)
			}
		})
	}
}

func TestRewriteLineKeepsNonHTTPKeys(t *testing.T) {
	base := mustURL(t, "https://origin/live/stream.m3u8")
	line := `#EXT-X-KEY:METHOD=SAMPLE-AES,URI="skd://key-id",KEYFORMAT="com.apple.streamingkeydelivery"`
	assert.Equal(t, line, RewriteLine(line, base, testProxy))
}

func TestRewritePreservesLinesAndOrder(t *testing.T) {
	base := mustURL(t, "http://panel/movie/u/p/1.m3u8")
	input := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:10",
		"",
		"#EXTINF:10.0,",
		"seg1.ts",
		"#EXT-X-DISCONTINUITY",
		"#EXTINF:10.0,",
		"seg2.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\r\n")

	out := Rewrite(input, base, testProxy)
	inLines := strings.Split(input, "\n")
	outLines := strings.Split(out, "\n")
	require.Len(t, outLines, len(inLines))

	for i := range inLines {
		in := strings.TrimSuffix(inLines[i], "\r")
		if strings.HasPrefix(in, "#") || in == "" {
			assert.Equal(t, inLines[i], outLines[i], "directive line %d changed", i)
		}
		assert.Equal(t, strings.HasSuffix(inLines[i], "\r"), strings.HasSuffix(outLines[i], "\r"), "line ending %d", i)
	}
}

const fixtureManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-KEY:METHOD=AES-128,URI="%[1]s/keys/enc.key"
#EXTINF:6.0,
%[1]s/movie/u/p/seg0.ts
#EXTINF:6.0,
seg1.ts
#EXTINF:6.0,
/movie/u/p/seg2.ts
#EXT-X-ENDLIST
`

func TestRewriterEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nova-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", ContentType)
		fmt.Fprintf(w, fixtureManifest, srv.URL)
	}))
	defer srv.Close()

	rw := NewRewriter(srv.Client(), time.Second, http.Header{"User-Agent": {"nova-test"}})
	res, err := rw.Rewrite(context.Background(), srv.URL+"/movie/u/p/42.m3u8", testProxy)
	require.NoError(t, err)

	assert.False(t, res.Master)
	assert.Equal(t, 1, strings.Count(res.Body, "#EXT-X-KEY:METHOD=AES-128,URI=\""+proxyOrigin+"/media/proxy?url="))
	assert.Equal(t, 4, strings.Count(res.Body, proxyOrigin+"/media/proxy?url="), "one key and three segments")
	assert.NotContains(t, res.Body, srv.URL, "unrewritten upstream URL left in playlist")

	var targets []string
	for _, line := range strings.Split(res.Body, "\n") {
		if strings.HasPrefix(line, proxyOrigin) {
			_, target := decodeTarget(t, line)
			targets = append(targets, target)
		}
	}
	assert.Equal(t, []string{
		srv.URL + "/movie/u/p/seg0.ts",
		srv.URL + "/movie/u/p/seg1.ts",
		srv.URL + "/movie/u/p/seg2.ts",
	}, targets)
}

func TestRewriterMasterPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2560000\nhigh/index.m3u8\n")
	}))
	defer srv.Close()

	res, err := NewRewriter(srv.Client(), time.Second, nil).Rewrite(context.Background(), srv.URL+"/live/u/p/1.m3u8", testProxy)
	require.NoError(t, err)
	assert.True(t, res.Master)
	assert.Equal(t, 2, res.Variants)
	assert.Equal(t, 2, strings.Count(res.Body, proxyOrigin+"/media/hls?url="))
}

func TestRewriterResolvesAgainstRedirectTarget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/u/p/42.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hls/abc/index.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/hls/abc/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:4,\nchunk-1.ts\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := NewRewriter(srv.Client(), time.Second, nil).Rewrite(context.Background(), srv.URL+"/movie/u/p/42.m3u8", testProxy)
	require.NoError(t, err)
	assert.Equal(t, "/hls/abc/index.m3u8", res.Source.Path)
	assert.Contains(t, res.Body, url.QueryEscape(srv.URL+"/hls/abc/chunk-1.ts"))
}

func TestRewriterUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "token expired")
	}))
	defer srv.Close()

	_, err := NewRewriter(srv.Client(), time.Second, nil).Rewrite(context.Background(), srv.URL+"/movie/user/secretpass/1.m3u8", testProxy)
	var ue *types.UpstreamError
	require.True(t, errors.As(err, &ue), "got %v", err)
	assert.Equal(t, http.StatusForbidden, ue.Status)
	assert.Equal(t, "token expired", ue.Body)
	assert.NotContains(t, ue.Error(), "secretpass")
}

func TestRewriteBodyRejectsNonPlaylist(t *testing.T) {
	_, err := RewriteBody([]byte("<html>login</html>"), mustURL(t, "http://panel/x.m3u8"), testProxy)
	assert.True(t, types.IsUpstreamError(err))
}
