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
	"strings"

	"github.com/buger/jsonparser"
	"golang.org/x/sync/semaphore"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// At most this many resolutions run at once across all callers.
const parsePoolSize = 4

// ParserChain resolves play URLs through the config's remote parsers when no
// extractor matched and the spider flagged the URL as needing resolution.
// Only JSON-shaped parsers can run server-side; sniffing types require a
// client webview and report unresolved here.
type ParserChain struct {
	fetch   *fetcher.Fetcher
	parsers []types.Parser
	sem     *semaphore.Weighted
}

func NewParserChain(fetch *fetcher.Fetcher, parsers []types.Parser) *ParserChain {
	return &ParserChain{
		fetch:   fetch,
		parsers: parsers,
		sem:     semaphore.NewWeighted(parsePoolSize),
	}
}

// Parsers returns the configured resolver list in order.
func (c *ParserChain) Parsers() []types.Parser { return c.parsers }

// Named returns the subset of parsers whose names appear in names, keeping
// chain order. An empty names list selects the whole chain.
func (c *ParserChain) Named(names []string) []types.Parser {
	if len(names) == 0 {
		return c.parsers
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make([]types.Parser, 0, len(names))
	for _, p := range c.parsers {
		if wanted[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// Resolve tries each candidate parser in order and returns the first direct
// URL produced. All-sniff chains and all-failed chains yield ErrUnresolved.
func (c *ParserChain) Resolve(ctx context.Context, candidates []types.Parser, rawURL string) (*Result, error) {
	if len(candidates) == 0 {
		candidates = c.parsers
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, types.WrapError(types.KindCancelled, err, "parse pool")
	}
	defer c.sem.Release(1)

	tried := false
	for _, p := range candidates {
		switch p.Type {
		case types.ParserJSON, types.ParserMix:
		default:
			// SNIFF, EXT and GOD need a client-side webview.
			continue
		}
		tried = true
		res, err := c.resolveJSON(ctx, p, rawURL)
		if err != nil {
			utils.DebugLog("parser %s failed for %s: %v", p.Name, utils.MaskURL(rawURL), err)
			continue
		}
		return res, nil
	}
	if !tried {
		return nil, ErrUnresolved
	}
	return nil, types.NewError(types.KindExtractor, "no parser resolved %s", utils.MaskURL(rawURL))
}

// resolveJSON calls one JSON parser endpoint. The convention is that the
// parser URL is a prefix the target is appended to, and the response carries
// the direct URL under "url" or "data.url".
func (c *ParserChain) resolveJSON(ctx context.Context, p types.Parser, rawURL string) (*Result, error) {
	resp, err := c.fetch.Do(ctx, p.URL+rawURL, fetcher.Options{Headers: p.Headers})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 400 {
		return nil, types.NewError(types.KindNetwork, "parser %s returned %d", p.Name, resp.Status)
	}

	direct, err := jsonparser.GetString(resp.Body, "url")
	if err != nil {
		direct, err = jsonparser.GetString(resp.Body, "data", "url")
	}
	if err != nil || strings.TrimSpace(direct) == "" {
		return nil, types.NewError(types.KindParse, "parser %s response has no url", p.Name)
	}

	headers := map[string]string{}
	jsonparser.ObjectEach(resp.Body, func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		headers[string(key)] = string(value)
		return nil
	}, "header")

	return &Result{URL: direct, Headers: headers}, nil
}
