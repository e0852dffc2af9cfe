/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
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
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-KEY:METHOD=AES-128,URI="keys/k1.key"
#EXTINF:10.0,
seg/000.ts
#EXTINF:10.0,
seg/001.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=640000,RESOLUTION=640x360
sd/index.m3u8
`

func TestM3U8RewriteMediaPlaylist(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mediaPlaylist))
	}))
	defer upstream.Close()

	_, router := stackForTest(t)
	w := get(t, router, "/m3u8?url="+url.QueryEscape(upstream.URL+"/live/index.m3u8"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "mpegurl") {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	// Segment URIs become absolute against the playlist URL.
	if !strings.Contains(body, upstream.URL+"/live/seg/000.ts") {
		t.Errorf("segment uri not absolutized:\n%s", body)
	}
	// The AES key is served through the local media proxy.
	if !strings.Contains(body, "do=media") {
		t.Errorf("key uri not proxied:\n%s", body)
	}
	if strings.Contains(body, `URI="keys/k1.key"`) {
		t.Errorf("relative key uri survived:\n%s", body)
	}
}

func TestM3U8RewriteMasterPlaylist(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(masterPlaylist))
	}))
	defer upstream.Close()

	_, router := stackForTest(t)
	w := get(t, router, "/m3u8?url="+url.QueryEscape(upstream.URL+"/live/master.m3u8"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// Variants route back through the rewriting handler.
	if got := strings.Count(w.Body.String(), "do=m3u8"); got != 2 {
		t.Errorf("expected 2 rewritten variants, found %d:\n%s", got, w.Body.String())
	}
}

func TestM3U8RewriteRequiresURL(t *testing.T) {
	_, router := stackForTest(t)
	if w := get(t, router, "/m3u8"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestProxyMediaStreams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte("segmentdata"))
	}))
	defer upstream.Close()

	_, router := stackForTest(t)
	w := get(t, router, "/proxy?do=media&url="+url.QueryEscape(upstream.URL+"/seg.ts"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "segmentdata" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("upstream content type lost: %q", ct)
	}
}
