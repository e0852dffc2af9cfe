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

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vodbridge/vodbridge/pkg/types"
)

func TestDoMergesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{Defaults: map[string]string{"X-Base": "base", "X-Override": "default"}})
	resp, err := f.Do(context.Background(), srv.URL, Options{
		Headers: map[string]string{"X-Override": "per-call"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}

	if got.Get("X-Base") != "base" {
		t.Error("default header missing")
	}
	if got.Get("X-Override") != "per-call" {
		t.Errorf("per-call header must win, got %q", got.Get("X-Override"))
	}
	if got.Get("User-Agent") == "" {
		t.Error("default User-Agent missing")
	}
}

func TestDoTimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Do(context.Background(), srv.URL, Options{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if types.KindOf(err) != types.KindTimeout {
		t.Errorf("kind = %v, want Timeout", types.KindOf(err))
	}
}

func TestDoCancelledKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{})
	_, err := f.Do(ctx, srv.URL, Options{})
	if err == nil {
		t.Fatal("expected cancellation")
	}
	if types.KindOf(err) != types.KindCancelled {
		t.Errorf("kind = %v, want Cancelled", types.KindOf(err))
	}
}

func TestBytesRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(Config{})
	if _, err := f.Bytes(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestPostForm(t *testing.T) {
	var body string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		b := make([]byte, r.ContentLength)
		r.Body.Read(b)
		body = string(b)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{})
	form := map[string][]string{"wd": {"西游记"}}
	if _, err := f.PostForm(context.Background(), srv.URL, form, nil); err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if contentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", contentType)
	}
	if !strings.Contains(body, "wd=") {
		t.Errorf("form body = %q", body)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{"plain utf-8", []byte("hello"), "text/html; charset=utf-8", "hello"},
		{"no charset", []byte("hello"), "", "hello"},
		// GBK for "你好".
		{"gbk", []byte{0xc4, 0xe3, 0xba, 0xc3}, "text/html; charset=gbk", "你好"},
		{"unknown charset falls back", []byte("raw"), "text/html; charset=bogus", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeBody(tt.body, tt.contentType); got != tt.want {
				t.Errorf("DecodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamForwardsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-99" {
			t.Errorf("Range header not forwarded: %q", r.Header.Get("Range"))
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("chunk"))
	}))
	defer srv.Close()

	f := New(Config{})
	resp, err := f.Stream(context.Background(), srv.URL, map[string]string{"Range": "bytes=0-99"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", resp.StatusCode)
	}
}
