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

package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
)

func TestParserChainResolvesFirstWorking(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":404}`))
	}))
	defer broken.Close()
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://cdn.example.com/direct.mp4","header":{"Referer":"https://jx"}}`))
	}))
	defer working.Close()

	chain := NewParserChain(fetcher.New(fetcher.Config{}), []types.Parser{
		{Name: "broken", Type: types.ParserJSON, URL: broken.URL + "/?url="},
		{Name: "working", Type: types.ParserJSON, URL: working.URL + "/?url="},
	})

	res, err := chain.Resolve(context.Background(), nil, "https://site.example.com/play/1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.URL != "https://cdn.example.com/direct.mp4" {
		t.Errorf("url = %s", res.URL)
	}
	if res.Headers["Referer"] != "https://jx" {
		t.Errorf("header block lost: %v", res.Headers)
	}
}

func TestParserChainNestedDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":200,"data":{"url":"https://cdn.example.com/nested.m3u8"}}`))
	}))
	defer srv.Close()

	chain := NewParserChain(fetcher.New(fetcher.Config{}), []types.Parser{
		{Name: "jx", Type: types.ParserJSON, URL: srv.URL + "/?url="},
	})

	res, err := chain.Resolve(context.Background(), nil, "https://site.example.com/play/1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.URL != "https://cdn.example.com/nested.m3u8" {
		t.Errorf("url = %s", res.URL)
	}
}

func TestParserChainSniffOnlyUnresolved(t *testing.T) {
	chain := NewParserChain(fetcher.New(fetcher.Config{}), []types.Parser{
		{Name: "webview", Type: types.ParserSniff, URL: "https://sniff.example.com/?url="},
	})

	_, err := chain.Resolve(context.Background(), nil, "https://site.example.com/play/1")
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("sniff-only chain should report unresolved, got %v", err)
	}
}

func TestParserChainNamedSubset(t *testing.T) {
	chain := NewParserChain(fetcher.New(fetcher.Config{}), []types.Parser{
		{Name: "a", Type: types.ParserJSON, URL: "http://a/?url="},
		{Name: "b", Type: types.ParserJSON, URL: "http://b/?url="},
		{Name: "c", Type: types.ParserJSON, URL: "http://c/?url="},
	})

	got := chain.Named([]string{"c", "a"})
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("Named should keep chain order: %+v", got)
	}
	if len(chain.Named(nil)) != 3 {
		t.Error("empty selection means the whole chain")
	}
}
