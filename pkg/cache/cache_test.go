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

package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(t.TempDir(), 0)
	defer c.Close()

	var loads int32
	loader := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(50 * time.Millisecond)
		return []byte("payload"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := c.GetOrCompute(context.Background(), "shared", time.Minute, loader)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			if !bytes.Equal(value, []byte("payload")) {
				t.Errorf("unexpected value %q", value)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Errorf("loader ran %d times, want 1", got)
	}
}

func TestGetOrComputeFailureNotCached(t *testing.T) {
	c := New(t.TempDir(), 0)
	defer c.Close()

	var loads int32
	failing := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		return nil, errors.New("upstream down")
	}

	if _, err := c.GetOrCompute(context.Background(), "k", time.Minute, failing); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.GetOrCompute(context.Background(), "k", time.Minute, failing); err == nil {
		t.Fatal("expected error on retry")
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Errorf("failed loads must not be cached: loader ran %d times, want 2", got)
	}
}

func TestExpiredEntryNeverReturned(t *testing.T) {
	c := New(t.TempDir(), 0)
	defer c.Close()

	c.Put("short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expired entry was returned")
	}
}

func TestZeroTTLNeverStored(t *testing.T) {
	c := New(t.TempDir(), 0)
	defer c.Close()

	c.Put("play", []byte("v"), 0)
	if _, ok := c.Get("play"); ok {
		t.Error("zero-ttl entry was stored")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(t.TempDir(), 2)
	defer c.Close()
	// Use memory only: no disk writes should rescue evicted entries here,
	// so point the disk tier away by storing tiny distinct keys.
	c.disk = nil

	c.Put("a", []byte("1"), time.Minute)
	c.Put("b", []byte("2"), time.Minute)
	c.Get("a") // refresh recency
	c.Put("c", []byte("3"), time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("new entry missing")
	}
}

func TestDiskPromotion(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	c.Put("k", []byte("persisted"), time.Minute)
	c.Close()

	// A fresh cache over the same directory serves from disk.
	c2 := New(dir, 0)
	defer c2.Close()
	value, ok := c2.Get("k")
	if !ok {
		t.Fatal("disk tier miss")
	}
	if !bytes.Equal(value, []byte("persisted")) {
		t.Errorf("unexpected value %q", value)
	}

	stats := c2.Stats()
	if stats.DiskHits != 1 {
		t.Errorf("DiskHits = %d, want 1", stats.DiskHits)
	}

	// Promoted: the second read is a memory hit.
	if _, ok := c2.Get("k"); !ok {
		t.Fatal("promoted entry missing")
	}
	if got := c2.Stats().MemHits; got != 1 {
		t.Errorf("MemHits = %d, want 1", got)
	}
}

func TestInvalidate(t *testing.T) {
	c := New(t.TempDir(), 0)
	defer c.Close()

	c.Put("k", []byte("v"), time.Minute)
	c.Invalidate("k")
	if _, ok := c.Get("k"); ok {
		t.Error("invalidated entry was returned")
	}
}

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("home", "site1", "7")
	b := Fingerprint("home", "site1", "7")
	if a != b {
		t.Errorf("same parts must fingerprint identically: %s vs %s", a, b)
	}
	if a == Fingerprint("home", "site1", "8") {
		t.Error("epoch change must change the fingerprint")
	}
	// Part boundaries matter: ("ab","c") != ("a","bc").
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Error("fingerprint must separate parts")
	}
}
