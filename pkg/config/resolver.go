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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/buger/jsonparser"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// defaultDocument is the terminal fallback: an empty but valid source list,
// so the system always has an active config.
var defaultDocument = []byte(`{"sites":[],"parses":[],"ads":[]}`)

// Snapshot pairs an installed document with its epoch. Snapshots are
// immutable; readers hold the pointer for the duration of one operation.
type Snapshot struct {
	Epoch int64
	Doc   *Document
}

// Listener is notified after each successful install. Notifications are
// serialized, in install order.
type Listener func(*Snapshot)

// Resolver loads config documents by priority (user URL, remote index,
// bundled default) and installs them atomically.
type Resolver struct {
	fetch        *fetcher.Fetcher
	userURL      string
	indexURL     string
	snapshotPath string

	mu        sync.Mutex
	epoch     int64
	listeners []Listener
	lastErr   error

	// installMu covers epoch assignment through listener notification, so
	// concurrent Loads never interleave and listeners observe epochs in
	// strictly increasing order.
	installMu sync.Mutex

	active atomic.Value // *Snapshot
}

// Options configures a Resolver.
type Options struct {
	// UserURL is the user-specified config document URL. Highest priority.
	UserURL string
	// IndexURL points at a remote index whose payload names the real
	// config document URL. Consulted when UserURL is unset or fails.
	IndexURL string
	// SnapshotPath is where the active document is persisted, typically
	// <cache-dir>/config.json. Empty disables persistence.
	SnapshotPath string
}

func NewResolver(fetch *fetcher.Fetcher, opts Options) *Resolver {
	return &Resolver{
		fetch:        fetch,
		userURL:      opts.UserURL,
		indexURL:     opts.IndexURL,
		snapshotPath: opts.SnapshotPath,
	}
}

// Subscribe registers a listener for future installs.
func (r *Resolver) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Active returns the current snapshot, or nil before the first Load.
func (r *Resolver) Active() *Snapshot {
	if snap, ok := r.active.Load().(*Snapshot); ok {
		return snap
	}
	return nil
}

// LastError returns the most recent load failure, cleared on success.
func (r *Resolver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Load resolves a document by priority and installs it. On failure the
// previously active snapshot stays installed and is returned along with the
// error; the bundled default guarantees the first Load always installs
// something.
func (r *Resolver) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.resolve(ctx)
	if err == nil {
		var snap *Snapshot
		snap, err = r.install(data)
		if err == nil {
			return snap, nil
		}
	}

	utils.WarnLog("Config load failed: %v", err)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()

	if active := r.Active(); active != nil {
		return active, err
	}

	// First load with nothing to fall back to: the bundled default.
	snap, defErr := r.install(defaultDocument)
	if defErr != nil {
		return nil, defErr
	}
	return snap, err
}

// resolve fetches the document bytes by priority.
func (r *Resolver) resolve(ctx context.Context) ([]byte, error) {
	if r.userURL != "" {
		data, err := r.fetchDocument(ctx, r.userURL)
		if err == nil {
			return data, nil
		}
		utils.WarnLog("User config %s failed: %v", utils.MaskURL(r.userURL), err)
	}

	if r.indexURL != "" {
		data, err := r.resolveViaIndex(ctx)
		if err == nil {
			return data, nil
		}
		utils.WarnLog("Config index %s failed: %v", utils.MaskURL(r.indexURL), err)
	}

	if r.userURL == "" && r.indexURL == "" {
		return defaultDocument, nil
	}
	return nil, types.NewError(types.KindConfig, "all config sources failed")
}

// resolveViaIndex fetches the index, extracts the second-level URL (either a
// JSON {"url": ...} payload or a bare URL body) and fetches the document.
func (r *Resolver) resolveViaIndex(ctx context.Context) ([]byte, error) {
	body, err := r.fetch.Bytes(ctx, r.indexURL, nil)
	if err != nil {
		return nil, err
	}
	target, jsonErr := jsonparser.GetString(body, "url")
	if jsonErr != nil {
		target = strings.TrimSpace(string(body))
	}
	if !strings.HasPrefix(target, "http") {
		return nil, types.NewError(types.KindConfig, "config index yielded no url")
	}
	return r.fetchDocument(ctx, target)
}

func (r *Resolver) fetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "file://") {
		return os.ReadFile(strings.TrimPrefix(rawURL, "file://"))
	}
	if !strings.HasPrefix(rawURL, "http") {
		return os.ReadFile(rawURL)
	}
	return r.fetch.Bytes(ctx, rawURL, nil)
}

// install parses, validates and atomically publishes a document under a new
// epoch, then notifies listeners in order.
func (r *Resolver) install(data []byte) (*Snapshot, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	r.installMu.Lock()
	defer r.installMu.Unlock()

	r.mu.Lock()
	r.epoch++
	snap := &Snapshot{Epoch: r.epoch, Doc: doc}
	r.active.Store(snap)
	r.lastErr = nil
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	r.persist(data)
	utils.InfoLog("Config epoch %d installed: %d sites, %d parsers",
		snap.Epoch, len(doc.Sites), len(doc.Parsers))

	for _, l := range listeners {
		l(snap)
	}
	return snap, nil
}

// persist writes the raw document next to the cache, best effort.
func (r *Resolver) persist(data []byte) {
	if r.snapshotPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.snapshotPath), 0o755); err != nil {
		utils.DebugLog("config snapshot dir: %v", err)
		return
	}
	tmp := r.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		utils.DebugLog("config snapshot write: %v", err)
		return
	}
	if err := os.Rename(tmp, r.snapshotPath); err != nil {
		utils.DebugLog("config snapshot rename: %v", err)
	}
}
