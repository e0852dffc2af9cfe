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

package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/spider"
	"github.com/vodbridge/vodbridge/pkg/types"
)

// searchStub serves a fixed CMS search payload.
func searchStub(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
}

func managerFor(t *testing.T, sites ...types.Site) *spider.Manager {
	t.Helper()
	m := spider.NewManager(&spider.Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), sites)
	t.Cleanup(m.DestroyAll)
	return m
}

func cmsSite(key, api string) types.Site {
	return types.Site{
		Key: key, Name: key, Type: types.SiteTypeCMS, API: api,
		Searchable: true, TimeoutMs: 2000,
	}
}

func TestSearchMergesAcrossSites(t *testing.T) {
	a := searchStub(t, `{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`)
	defer a.Close()
	b := searchStub(t, `{"list":[{"vod_id":"9","vod_name":"流浪地球","vod_year":"2019"}]}`)
	defer b.Close()

	s := New(managerFor(t, cmsSite("a", a.URL), cmsSite("b", b.URL)))
	got, err := s.Search(context.Background(), "三体", false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 merged hits, got %d: %+v", len(got), got)
	}
}

func TestSearchDeduplicatesByNameAndYear(t *testing.T) {
	payload := `{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`
	a := searchStub(t, payload)
	defer a.Close()
	b := searchStub(t, payload)
	defer b.Close()

	s := New(managerFor(t, cmsSite("a", a.URL), cmsSite("b", b.URL)))
	got, err := s.Search(context.Background(), "三体", false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("duplicate (name, year) must collapse to 1, got %d", len(got))
	}
}

func TestSearchToleratesPartialFailure(t *testing.T) {
	good := searchStub(t, `{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`)
	defer good.Close()
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close() // connection refused from here on

	s := New(managerFor(t, cmsSite("good", good.URL), cmsSite("dead", deadURL)))
	got, err := s.Search(context.Background(), "三体", false)
	if err != nil {
		t.Fatalf("partial failure must not fail the search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected the surviving site's hit, got %d", len(got))
	}
}

func TestSearchFailsWhenAllSitesFail(t *testing.T) {
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	s := New(managerFor(t, cmsSite("a", deadURL), cmsSite("b", deadURL)))
	if _, err := s.Search(context.Background(), "三体", false); err == nil {
		t.Fatal("expected error when every site failed")
	}
}

func TestSearchQuickFiltersSites(t *testing.T) {
	var slowQueried bool
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowQueried = true
		w.Write([]byte(`{"list":[]}`))
	}))
	defer slow.Close()
	quick := searchStub(t, `{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`)
	defer quick.Close()

	slowSite := cmsSite("slow", slow.URL)
	quickSite := cmsSite("quick", quick.URL)
	quickSite.QuickSearchable = true

	s := New(managerFor(t, slowSite, quickSite))
	got, err := s.Search(context.Background(), "三体", true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 hit from the quick site, got %d", len(got))
	}
	if slowQueried {
		t.Error("quick search must skip non-quick sites")
	}
}

func TestStreamEmptyQueryClosesImmediately(t *testing.T) {
	good := searchStub(t, `{"list":[]}`)
	defer good.Close()

	s := New(managerFor(t, cmsSite("a", good.URL)))
	for range s.Stream(context.Background(), "  ", false) {
		t.Fatal("empty query must emit nothing")
	}
}

func TestStreamReportsSiteKeys(t *testing.T) {
	a := searchStub(t, `{"list":[{"vod_id":"1","vod_name":"三体","vod_year":"2023"}]}`)
	defer a.Close()

	s := New(managerFor(t, cmsSite("a", a.URL)))
	var keys []string
	for hit := range s.Stream(context.Background(), "三体", false) {
		keys = append(keys, hit.SiteKey)
	}
	if len(keys) != 1 || keys[0] != "a" {
		t.Errorf("hit keys = %v", keys)
	}
}
