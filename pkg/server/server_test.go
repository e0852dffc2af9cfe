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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vodbridge/vodbridge/pkg/cache"
	"github.com/vodbridge/vodbridge/pkg/config"
	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/orchestrator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stackForTest boots the whole stack against one fake CMS provider and
// returns the assembled router.
func stackForTest(t *testing.T) (*Config, *gin.Engine) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("wd") != "":
			w.Write([]byte(`{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`))
		case r.URL.Query().Get("ac") == "detail":
			w.Write([]byte(`{"list":[{"vod_id":"1","vod_name":"三体","vod_play_from":"线路A","vod_play_url":"第01集$https://cdn.example.com/1.m3u8"}]}`))
		default:
			w.Write([]byte(`{"class":[{"type_id":1,"type_name":"电影"}]}`))
		}
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	doc := `{"sites":[{"key":"cms1","name":"CMS One","type":1,"api":"` + upstream.URL + `","searchable":1,"timeout":2}]}`
	docPath := filepath.Join(dir, "sources.json")
	if err := os.WriteFile(docPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	fetch := fetcher.New(fetcher.Config{})
	store := cache.New(filepath.Join(dir, "cache"), 0)
	t.Cleanup(func() { store.Close() })

	resolver := config.NewResolver(fetch, config.Options{UserURL: docPath})
	engine := orchestrator.New(fetch, store, resolver, nil, nil)
	t.Cleanup(engine.Shutdown)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cfg := NewServer(0, engine, fetch)
	return cfg, cfg.Router()
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["epoch"] == nil || body["sites"] == nil || body["cache"] == nil {
		t.Errorf("health body incomplete: %v", body)
	}
}

func TestHomeEndpoint(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/home?site=cms1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "电影") {
		t.Errorf("class list missing: %s", w.Body.String())
	}
}

func TestUnknownSiteIs404(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/home?site=ghost")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ConfigError") {
		t.Errorf("error body should name the kind: %s", w.Body.String())
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/search?wd="+url.QueryEscape("三体"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "三体") {
		t.Errorf("search miss: %s", w.Body.String())
	}
}

func TestPlayDirectMedia(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/play?site=cms1&flag="+url.QueryEscape("线路A")+"&id="+url.QueryEscape("https://cdn.example.com/1.m3u8"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var result struct {
		Parse int    `json:"parse"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if result.Parse != 0 || result.URL != "https://cdn.example.com/1.m3u8" {
		t.Errorf("direct media: %+v", result)
	}
}

func TestParseWithoutURL(t *testing.T) {
	_, router := stackForTest(t)

	if w := get(t, router, "/parse"); w.Code == http.StatusOK {
		t.Error("missing url parameter must not succeed")
	}
}

func TestParseUnknownNamesIs404(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/parse?jxs=ghost&url="+url.QueryEscape("https://site.example.com/play/1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProxyCK(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/proxy?do=ck&probe=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var params map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &params); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if params["probe"] != "1" {
		t.Errorf("ck must echo the query: %v", params)
	}
}

func TestProxyUnknownOp(t *testing.T) {
	_, router := stackForTest(t)

	if w := get(t, router, "/proxy?do=nothing"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProxyEngineMissing(t *testing.T) {
	_, router := stackForTest(t)

	w := get(t, router, "/proxy?do=torrent&url=magnet:x")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestMintURL(t *testing.T) {
	if got := MintURL(9978, "do=media&url=x"); got != "http://127.0.0.1:9978/proxy?do=media&url=x" {
		t.Errorf("MintURL() = %s", got)
	}
	if !strings.Contains(MintURL(0, "q"), ":9978/") {
		t.Error("zero port must fall back to the default")
	}
}
