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
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/hooks"
	"github.com/vodbridge/vodbridge/pkg/types"
)

// Spider is the five-operation site adapter contract. Every variant returns
// the normalized shapes from pkg/types and never fails on missing optional
// source fields.
type Spider interface {
	Init(ctx context.Context, site types.Site) error
	HomeContent(ctx context.Context, filter bool) (*types.HomeResult, error)
	CategoryContent(ctx context.Context, tid string, pg int, filter bool, extend map[string]string) (*types.CategoryPage, error)
	DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error)
	SearchContent(ctx context.Context, key string, quick bool) (*types.SearchResult, error)
	PlayerContent(ctx context.Context, flag, id string, vipFlags []string) (*types.PlayResult, error)
	Destroy()
}

// Env bundles the shared collaborators a spider borrows: the process-wide
// fetcher and the hook chain of the active config epoch. The chain is swapped
// on config reload while operations are in flight, so it is published
// atomically; a fetch sees either the old or the new epoch's chain.
type Env struct {
	Fetch *fetcher.Fetcher

	hooks atomic.Pointer[hooks.Chain]
}

// SetHooks installs the hook chain of a freshly loaded config epoch.
func (e *Env) SetHooks(c *hooks.Chain) { e.hooks.Store(c) }

// HookChain returns the active chain, nil before the first config install.
func (e *Env) HookChain() *hooks.Chain { return e.hooks.Load() }

const defaultSiteTimeout = 15 * time.Second

// SiteTimeout returns the per-site fetch deadline.
func SiteTimeout(site types.Site) time.Duration {
	if site.TimeoutMs > 0 {
		return time.Duration(site.TimeoutMs) * time.Millisecond
	}
	return defaultSiteTimeout
}

// fetchText runs one hooked GET against the site and decodes the body.
func (e *Env) fetchText(ctx context.Context, site types.Site, rawURL string) (string, error) {
	body, contentType, err := e.fetchRaw(ctx, site, rawURL)
	if err != nil {
		return "", err
	}
	return fetcher.DecodeBody(body, contentType), nil
}

// fetchRaw is the hook-wrapped fetch every variant goes through: request
// hooks first (may rewrite, short-circuit or cancel), then the fetcher, then
// response hooks.
func (e *Env) fetchRaw(ctx context.Context, site types.Site, rawURL string) ([]byte, string, error) {
	headers := map[string]string{}
	for k, v := range site.Headers {
		headers[k] = v
	}

	chain := e.hooks.Load()

	req := &hooks.Request{URL: rawURL, Headers: headers}
	if chain != nil {
		short, err := chain.ApplyRequest(req)
		if err != nil {
			return nil, "", err
		}
		if short != nil {
			return short.Body, short.Headers["Content-Type"], nil
		}
	}

	resp, err := e.Fetch.Do(ctx, req.URL, fetcher.Options{
		Headers: req.Headers,
		Timeout: SiteTimeout(site),
	})
	if err != nil {
		return nil, "", err
	}
	if resp.Status < 200 || resp.Status >= 400 {
		return nil, "", types.NewError(types.KindNetwork, "site %s returned %d", site.Key, resp.Status)
	}

	if chain != nil {
		hookResp := &hooks.Response{
			Status:  resp.Status,
			Headers: flattenHeader(resp.Headers),
			Body:    resp.Body,
		}
		if err := chain.ApplyResponse(hookResp); err != nil {
			return nil, "", err
		}
		return hookResp.Body, hookResp.Headers["Content-Type"], nil
	}

	return resp.Body, resp.Headers.Get("Content-Type"), nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
