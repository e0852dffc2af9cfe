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

package spider

import (
	"context"
	"testing"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
)

func TestInferVariant(t *testing.T) {
	tests := []struct {
		name string
		site types.Site
		want Variant
	}{
		{"alist type", types.Site{Type: types.SiteTypeAlist, API: "https://pan.example.com"}, VariantAlist},
		{"cms type", types.Site{Type: types.SiteTypeCMS, API: "https://x/api.php/provide/vod"}, VariantCMS},
		{"js script", types.Site{Type: types.SiteTypeSpider, API: "https://s.example.com/site.js"}, VariantJS},
		{"minified js", types.Site{Type: types.SiteTypeSpider, API: "https://s.example.com/site.min.js"}, VariantJS},
		{"drpy url", types.Site{Type: types.SiteTypeSpider, API: "https://s.example.com/drpy/run"}, VariantJS},
		{"python script", types.Site{Type: types.SiteTypeSpider, API: "https://s.example.com/site.py"}, VariantPython},
		{"pyramid url", types.Site{Type: types.SiteTypeSpider, API: "https://s.example.com/pyramid/x"}, VariantPython},
		{
			"xpath rules ext",
			types.Site{Type: types.SiteTypeSpider, API: "https://h.example.com",
				Ext: `{"cateUrl":"https://h.example.com/t/{cateId}","list":"//div[@class='item']"}`},
			VariantXPath,
		},
		{
			"opaque object ext is not xpath",
			types.Site{Type: types.SiteTypeSpider, API: "https://h.example.com", Ext: `{"token":"abc"}`},
			VariantCMS,
		},
		{"csp plugin falls back", types.Site{Type: types.SiteTypeSpider, API: "csp_AppYs", Jar: "https://j/x.jar"}, VariantCMS},
		{"bare url defaults to cms", types.Site{Type: types.SiteTypeSpider, API: "https://x.example.com/api"}, VariantCMS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferVariant(tt.site); got != tt.want {
				t.Errorf("InferVariant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManagerDegradesBrokenSiteToNull(t *testing.T) {
	m := NewManager(&Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), []types.Site{
		{Key: "good", Name: "Good", Type: types.SiteTypeCMS, API: "https://g.example.com/api", Searchable: true},
		// Empty api fails cms Init.
		{Key: "broken", Name: "Broken", Type: types.SiteTypeCMS, Searchable: true},
	})
	defer m.DestroyAll()

	sp, ok := m.Get("broken")
	if !ok {
		t.Fatal("degraded site must stay addressable")
	}
	home, err := sp.HomeContent(context.Background(), false)
	if err != nil {
		t.Fatalf("null spider must not error: %v", err)
	}
	if len(home.Class) != 0 {
		t.Error("null spider returns empty results")
	}

	report := m.Report()
	if len(report) != 2 {
		t.Fatalf("report length = %d", len(report))
	}
	if report[1].Key != "broken" || !report[1].Degraded || report[1].Variant != VariantNull {
		t.Errorf("broken site not reported degraded: %+v", report[1])
	}
	if report[0].Degraded {
		t.Errorf("healthy site flagged: %+v", report[0])
	}
}

func TestManagerNotesJarFallback(t *testing.T) {
	m := NewManager(&Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), []types.Site{
		{Key: "jar1", Name: "Jar One", Type: types.SiteTypeSpider, API: "https://j.example.com/api", Jar: "https://j.example.com/pack.jar"},
	})
	defer m.DestroyAll()

	report := m.Report()
	if len(report) != 1 {
		t.Fatalf("report length = %d", len(report))
	}
	if report[0].Degraded {
		t.Errorf("jar site must stay serviceable: %+v", report[0])
	}
	if report[0].Variant != VariantCMS || report[0].Reason == "" {
		t.Errorf("jar fallback not recorded: %+v", report[0])
	}
}

func TestManagerSearchableExcludesDegraded(t *testing.T) {
	m := NewManager(&Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), []types.Site{
		{Key: "a", Type: types.SiteTypeCMS, API: "https://a/api", Searchable: true},
		{Key: "b", Type: types.SiteTypeCMS, API: "https://b/api", Searchable: false},
		{Key: "c", Type: types.SiteTypeCMS, Searchable: true}, // degrades
	})
	defer m.DestroyAll()

	keys := m.Searchable()
	if len(keys) != 1 || keys[0] != "a" {
		t.Errorf("Searchable() = %v, want [a]", keys)
	}
}

func TestManagerSkipsDuplicateKeys(t *testing.T) {
	m := NewManager(&Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), []types.Site{
		{Key: "dup", Type: types.SiteTypeCMS, API: "https://one/api"},
		{Key: "dup", Type: types.SiteTypeCMS, API: "https://two/api"},
		{Key: "", Type: types.SiteTypeCMS, API: "https://empty/api"},
	})
	defer m.DestroyAll()

	if keys := m.Keys(); len(keys) != 1 || keys[0] != "dup" {
		t.Errorf("Keys() = %v, want [dup]", keys)
	}
	if site, _ := m.Site("dup"); site.API != "https://one/api" {
		t.Errorf("first occurrence must win, got %s", site.API)
	}
}

func TestManagerReloadReplacesEpoch(t *testing.T) {
	m := NewManager(&Env{Fetch: fetcher.New(fetcher.Config{})}, nil)
	m.Load(context.Background(), []types.Site{
		{Key: "old", Type: types.SiteTypeCMS, API: "https://old/api"},
	})
	m.Load(context.Background(), []types.Site{
		{Key: "new", Type: types.SiteTypeCMS, API: "https://new/api"},
	})
	defer m.DestroyAll()

	if _, ok := m.Get("old"); ok {
		t.Error("previous epoch's site still addressable")
	}
	if _, ok := m.Get("new"); !ok {
		t.Error("new site missing after reload")
	}
}
