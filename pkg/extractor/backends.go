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
	"encoding/base64"
	"net/url"
	"strings"
	"sync"

	"github.com/vodbridge/vodbridge/pkg/types"
)

// peerBackend is the shared shape of extractors that hand a source to an
// out-of-process engine and wait for it to publish a locally servable URL.
// The engine is reached through the local proxy: the minted URL names the
// handler that owns the session. Publication is modeled as a one-shot
// channel so Fetch can race readiness against cancellation.
type peerBackend struct {
	name    string
	do      string
	matches func(string) bool
	// rewrite normalizes the source before hand-off; nil keeps it as-is.
	rewrite func(string) (string, error)

	mint func(string) string

	mu      sync.Mutex
	stopped chan struct{}
}

func (b *peerBackend) Name() string { return b.name }

func (b *peerBackend) Match(rawURL string) bool { return b.matches(rawURL) }

func (b *peerBackend) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	source := rawURL
	if b.rewrite != nil {
		var err error
		if source, err = b.rewrite(rawURL); err != nil {
			return nil, err
		}
	}
	// Rewrites can surface a plain http target (nested thunder links do);
	// those need no engine at all.
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return &Result{URL: source, Headers: headers}, nil
	}
	if b.mint == nil {
		return nil, types.NewError(types.KindExtractor, "%s: no local proxy to publish through", b.name)
	}

	b.mu.Lock()
	if b.stopped == nil {
		b.stopped = make(chan struct{})
	}
	stopped := b.stopped
	b.mu.Unlock()

	ready := make(chan string, 1)
	go func() {
		ready <- b.mint("do=" + b.do + "&url=" + url.QueryEscape(source))
	}()

	select {
	case local := <-ready:
		return &Result{URL: local, Headers: headers}, nil
	case <-stopped:
		return nil, types.NewError(types.KindCancelled, "%s stopped", b.name)
	case <-ctx.Done():
		return nil, types.WrapError(types.KindOf(ctx.Err()), ctx.Err(), b.name)
	}
}

func (b *peerBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped != nil {
		select {
		case <-b.stopped:
		default:
			close(b.stopped)
		}
	}
}

func newTorrentExtractor(mint func(string) string) *peerBackend {
	return &peerBackend{
		name: "torrent",
		do:   "torrent",
		mint: mint,
		matches: func(rawURL string) bool {
			return strings.HasPrefix(rawURL, "magnet:") ||
				strings.HasPrefix(rawURL, "ed2k://") ||
				strings.HasPrefix(rawURL, "thunder://")
		},
		rewrite: unwrapThunder,
	}
}

func newJianpianExtractor(mint func(string) string) *peerBackend {
	return &peerBackend{
		name: "jianpian",
		do:   "jianpian",
		mint: mint,
		matches: func(rawURL string) bool {
			return strings.HasPrefix(rawURL, "tvbox-xg://") ||
				strings.HasPrefix(rawURL, "jianpian://") ||
				strings.HasPrefix(rawURL, "ftp://")
		},
		rewrite: func(rawURL string) (string, error) {
			// tvbox-xg wraps the real jianpian address.
			return strings.Replace(rawURL, "tvbox-xg://", "jianpian://", 1), nil
		},
	}
}

func newMitvExtractor(mint func(string) string) *peerBackend {
	return &peerBackend{
		name: "mitv",
		do:   "mitv",
		mint: mint,
		matches: func(rawURL string) bool {
			return strings.HasPrefix(rawURL, "mitv://") || strings.HasPrefix(rawURL, "p2p://")
		},
	}
}

func newTvbusExtractor(mint func(string) string) *peerBackend {
	return &peerBackend{
		name: "tvbus",
		do:   "tvbus",
		mint: mint,
		matches: func(rawURL string) bool {
			return strings.HasPrefix(rawURL, "tvbus://")
		},
	}
}

// unwrapThunder decodes thunder:// links: base64 of "AA<target>ZZ". Nested
// thunder wrappers unwrap until a plain scheme appears. Magnet and ed2k
// sources pass through untouched.
func unwrapThunder(rawURL string) (string, error) {
	for strings.HasPrefix(rawURL, "thunder://") {
		payload := strings.TrimPrefix(rawURL, "thunder://")
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimRight(payload, "/"))
		if err != nil {
			return "", types.WrapError(types.KindParse, err, "thunder payload")
		}
		inner := string(decoded)
		inner = strings.TrimPrefix(inner, "AA")
		inner = strings.TrimSuffix(inner, "ZZ")
		if inner == rawURL {
			break
		}
		rawURL = inner
	}
	return rawURL, nil
}
