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
	"net/url"
	"os"
	"strings"

	"github.com/jamesnetherton/m3u"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// directExtractor passes through http(s) URLs that already point at media.
type directExtractor struct{}

func (directExtractor) Name() string { return "direct" }
func (directExtractor) Stop()        {}

func (directExtractor) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return utils.IsMediaPath(u.Path)
}

func (directExtractor) Fetch(_ context.Context, rawURL string, headers map[string]string) (*Result, error) {
	return &Result{URL: rawURL, Headers: headers}, nil
}

// videoSchemeExtractor strips the video:// wrapper some sources use to mark
// an already-resolved target.
type videoSchemeExtractor struct{}

func (videoSchemeExtractor) Name() string { return "video" }
func (videoSchemeExtractor) Stop()        {}

func (videoSchemeExtractor) Match(rawURL string) bool {
	return strings.HasPrefix(rawURL, "video://")
}

func (videoSchemeExtractor) Fetch(_ context.Context, rawURL string, headers map[string]string) (*Result, error) {
	return &Result{URL: strings.TrimPrefix(rawURL, "video://"), Headers: headers}, nil
}

// PushSink receives push:// targets for an external listener.
type PushSink func(target string)

// pushExtractor forwards push:// payloads to the sink and resolves to an
// empty URL, since there is nothing to play locally.
type pushExtractor struct {
	sink PushSink
}

func (pushExtractor) Name() string { return "push" }
func (pushExtractor) Stop()        {}

func (pushExtractor) Match(rawURL string) bool {
	return strings.HasPrefix(rawURL, "push://")
}

func (p pushExtractor) Fetch(_ context.Context, rawURL string, _ map[string]string) (*Result, error) {
	target := strings.TrimPrefix(rawURL, "push://")
	if p.sink != nil {
		p.sink(target)
	}
	return &Result{URL: ""}, nil
}

// playlistExtractor resolves .m3u playlists to their first track, so a
// single-entry playlist plays directly instead of erroring in the client.
type playlistExtractor struct {
	fetch *fetcher.Fetcher
}

func (playlistExtractor) Name() string { return "playlist" }
func (playlistExtractor) Stop()        {}

func (playlistExtractor) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u")
}

func (p *playlistExtractor) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	// The m3u decoder only reads files or does its own unauthenticated GET,
	// so fetch through the shared client first and hand it a temp file.
	body, err := p.fetch.Bytes(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "vodbridge-playlist-*.m3u")
	if err != nil {
		return nil, types.WrapError(types.KindExtractor, err, "spool m3u playlist")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return nil, types.WrapError(types.KindExtractor, err, "spool m3u playlist")
	}
	if err := tmp.Close(); err != nil {
		return nil, types.WrapError(types.KindExtractor, err, "spool m3u playlist")
	}
	playlist, err := m3u.Parse(tmp.Name())
	if err != nil {
		return nil, types.WrapError(types.KindParse, err, "parse m3u playlist")
	}
	if len(playlist.Tracks) == 0 {
		return nil, types.NewError(types.KindExtractor, "playlist %s has no tracks", utils.MaskURL(rawURL))
	}
	return &Result{URL: playlist.Tracks[0].URI, Headers: headers}, nil
}
