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

package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
)

func TestLoadDefaultWhenNoSources(t *testing.T) {
	r := NewResolver(fetcher.New(fetcher.Config{}), Options{})

	snap, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Epoch != 1 {
		t.Errorf("epoch = %d, want 1", snap.Epoch)
	}
	if len(snap.Doc.Sites) != 0 {
		t.Errorf("default document should carry no sites, got %d", len(snap.Doc.Sites))
	}
}

func TestLoadFromUserURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sites":[{"key":"a","name":"A","type":1,"api":"https://a.example.com/api.php/provide/vod"}]}`))
	}))
	defer srv.Close()

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{UserURL: srv.URL})
	snap, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Doc.Sites) != 1 || snap.Doc.Sites[0].Key != "a" {
		t.Errorf("unexpected document: %+v", snap.Doc)
	}
}

func TestLoadViaIndex(t *testing.T) {
	config := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sites":[{"key":"idx","name":"I","type":1,"api":"https://i.example.com/api.php/provide/vod"}]}`))
	}))
	defer config.Close()
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"url":"` + config.URL + `"}`))
	}))
	defer index.Close()

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{IndexURL: index.URL})
	snap, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Doc.Sites) != 1 || snap.Doc.Sites[0].Key != "idx" {
		t.Errorf("index indirection failed: %+v", snap.Doc)
	}
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy {
			w.Write([]byte(`{"sites":[{"key":"a","name":"A","type":1,"api":"https://a.example.com/api"}]}`))
			return
		}
		// Duplicate keys fail validation.
		w.Write([]byte(`{"sites":[{"key":"a","api":"http://x"},{"key":"a","api":"http://y"}]}`))
	}))
	defer srv.Close()

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{UserURL: srv.URL})
	first, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	healthy = false
	second, err := r.Load(context.Background())
	if err == nil {
		t.Fatal("expected reload failure")
	}
	if second != first {
		t.Error("failed reload must keep the previous snapshot active")
	}
	if r.LastError() == nil {
		t.Error("LastError should report the failure")
	}
	if r.Active().Epoch != first.Epoch {
		t.Errorf("epoch moved on failed reload: %d", r.Active().Epoch)
	}
}

func TestEpochAdvancesPerInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sites":[{"key":"a","name":"A","type":1,"api":"https://a.example.com/api"}]}`))
	}))
	defer srv.Close()

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{UserURL: srv.URL})

	var epochs []int64
	r.Subscribe(func(s *Snapshot) { epochs = append(epochs, s.Epoch) })

	if _, err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := r.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if len(epochs) != 2 || epochs[0] != 1 || epochs[1] != 2 {
		t.Errorf("listener epochs = %v, want [1 2]", epochs)
	}
}

func TestLoadFromLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.json")
	payload := []byte(`{"sites":[{"key":"local","name":"L","type":1,"api":"https://l.example.com/api"}]}`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{UserURL: path})
	snap, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Doc.Sites) != 1 || snap.Doc.Sites[0].Key != "local" {
		t.Errorf("file source failed: %+v", snap.Doc)
	}
}

func TestSnapshotPersisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sites":[{"key":"a","name":"A","type":1,"api":"https://a.example.com/api"}]}`))
	}))
	defer srv.Close()

	r := NewResolver(fetcher.New(fetcher.Config{}), Options{UserURL: srv.URL, SnapshotPath: path})
	if _, err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("snapshot file is empty")
	}
}
