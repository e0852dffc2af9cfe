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

// Package extractor turns raw playable identifiers into direct stream URLs.
// Extractors are tried in registration order; the first whose Match accepts
// the URL handles the whole request.
package extractor

import (
	"context"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
)

// Result is a resolved play target.
type Result struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"header,omitempty"`
}

// ErrUnresolved marks a URL no registered extractor could handle; callers
// fall back to the parser chain or hand the raw URL to the client.
var ErrUnresolved = types.NewError(types.KindExtractor, "no extractor resolved the url")

// Extractor resolves one family of play URLs.
type Extractor interface {
	Name() string
	Match(rawURL string) bool
	// Fetch resolves rawURL into a playable target. It cooperates with ctx;
	// a cancelled context must abort any background work it started.
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Result, error)
	// Stop interrupts any in-flight resolution. Idempotent.
	Stop()
}

// Pipeline is the ordered extractor registry. Registration happens at
// startup; Resolve is safe for concurrent use afterwards.
type Pipeline struct {
	extractors []Extractor
}

// NewPipeline assembles the default extractor order: direct media first,
// cheap prefix rewrites next, peer backends after, playlist conversion last.
func NewPipeline(fetch *fetcher.Fetcher, mint func(string) string, push PushSink) *Pipeline {
	p := &Pipeline{}
	p.Register(
		&directExtractor{},
		&videoSchemeExtractor{},
		&pushExtractor{sink: push},
		newTorrentExtractor(mint),
		newJianpianExtractor(mint),
		newMitvExtractor(mint),
		newTvbusExtractor(mint),
		&playlistExtractor{fetch: fetch},
	)
	return p
}

// Register appends extractors; earlier registrations win matches.
func (p *Pipeline) Register(extractors ...Extractor) {
	p.extractors = append(p.extractors, extractors...)
}

// Resolve runs the first matching extractor. URLs nothing matches return
// ErrUnresolved untouched so the caller can decide about parsers.
func (p *Pipeline) Resolve(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	if rawURL == "" {
		return nil, types.NewError(types.KindExtractor, "empty play url")
	}
	for _, ex := range p.extractors {
		if !ex.Match(rawURL) {
			continue
		}
		res, err := ex.Fetch(ctx, rawURL, headers)
		if err != nil {
			return nil, types.WrapError(types.KindExtractor, err, ex.Name())
		}
		return res, nil
	}
	return nil, ErrUnresolved
}

// Stop interrupts all extractors' in-flight work, for shutdown.
func (p *Pipeline) Stop() {
	for _, ex := range p.extractors {
		ex.Stop()
	}
}
