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

// Package orchestrator is the top-level facade: the five public operations,
// wired through the cache, the spider manager, the hook chain and the
// extractor pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vodbridge/vodbridge/pkg/cache"
	"github.com/vodbridge/vodbridge/pkg/config"
	"github.com/vodbridge/vodbridge/pkg/extractor"
	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/hooks"
	"github.com/vodbridge/vodbridge/pkg/search"
	"github.com/vodbridge/vodbridge/pkg/spider"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Per-operation cache lifetimes. Play results are never cached: direct URLs
// from upstream expire quickly and must be re-resolved.
const (
	ttlHome     = 24 * time.Hour
	ttlCategory = 10 * time.Minute
	ttlDetail   = 30 * time.Minute
	ttlSearch   = 10 * time.Minute
)

// Orchestrator owns the per-epoch wiring and exposes the public operations.
// Results are returned as their cached JSON encoding.
type Orchestrator struct {
	fetch    *fetcher.Fetcher
	store    *cache.Cache
	resolver *config.Resolver
	env      *spider.Env
	mgr      *spider.Manager
	searcher *search.Searcher
	pipeline *extractor.Pipeline

	mu    sync.RWMutex
	epoch int64
	chain *extractor.ParserChain
}

// New wires the orchestrator. mint turns remote URLs into local proxy URLs
// and push receives push:// targets; both may be nil.
func New(fetch *fetcher.Fetcher, store *cache.Cache, resolver *config.Resolver,
	mint func(string) string, push extractor.PushSink) *Orchestrator {

	env := &spider.Env{Fetch: fetch}
	mgr := spider.NewManager(env, mint)
	o := &Orchestrator{
		fetch:    fetch,
		store:    store,
		resolver: resolver,
		env:      env,
		mgr:      mgr,
		searcher: search.New(mgr),
		pipeline: extractor.NewPipeline(fetch, mint, push),
		chain:    extractor.NewParserChain(fetch, nil),
	}
	resolver.Subscribe(o.onConfig)
	return o
}

// Start performs the initial config load. The bundled default guarantees an
// active epoch even when every remote source fails.
func (o *Orchestrator) Start(ctx context.Context) error {
	_, err := o.resolver.Load(ctx)
	return err
}

// Reload re-resolves the config; listeners rebuild epoch state on success.
func (o *Orchestrator) Reload(ctx context.Context) error {
	_, err := o.resolver.Load(ctx)
	return err
}

// Shutdown releases spiders and extractor backends.
func (o *Orchestrator) Shutdown() {
	o.pipeline.Stop()
	o.mgr.DestroyAll()
}

// onConfig rebuilds per-epoch state: hook chain, spider set, parser chain.
// The resolver serializes listener calls; the guard below additionally drops
// any snapshot older than what is already installed.
func (o *Orchestrator) onConfig(snap *config.Snapshot) {
	o.mu.Lock()
	if snap.Epoch <= o.epoch {
		o.mu.Unlock()
		utils.WarnLog("Ignoring stale config epoch %d (active %d)", snap.Epoch, o.epoch)
		return
	}
	o.mu.Unlock()

	var chainHooks []hooks.Hook
	if len(snap.Doc.AdHosts) > 0 {
		chainHooks = append(chainHooks, &hooks.AdBlockHook{Patterns: snap.Doc.AdHosts})
	}
	if rewrites := hooks.ParseHostRewrites(snap.Doc.Hosts); len(rewrites) > 0 {
		chainHooks = append(chainHooks, &hooks.HostRewriteHook{Rewrites: rewrites})
	}
	if cookies := hooks.ParseCookieSpecs(snap.Doc.Cookies); len(cookies) > 0 {
		chainHooks = append(chainHooks, &hooks.CookieInjectHook{Cookies: cookies})
	}
	o.env.SetHooks(hooks.NewChain(chainHooks...))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	o.mgr.Load(ctx, snap.Doc.Sites)

	o.mu.Lock()
	o.epoch = snap.Epoch
	o.chain = extractor.NewParserChain(o.fetch, snap.Doc.Parsers)
	o.mu.Unlock()
}

func (o *Orchestrator) epochChain() (int64, *extractor.ParserChain) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.epoch, o.chain
}

// ParserChain returns the active epoch's parser chain, for the /parse route.
func (o *Orchestrator) ParserChain() *extractor.ParserChain {
	_, chain := o.epochChain()
	return chain
}

// Report returns per-site spider health.
func (o *Orchestrator) Report() []spider.Status { return o.mgr.Report() }

// CacheStats snapshots the cache counters.
func (o *Orchestrator) CacheStats() cache.Stats { return o.store.Stats() }

// Snapshot returns the active config snapshot.
func (o *Orchestrator) Snapshot() *config.Snapshot { return o.resolver.Active() }

// Home returns a site's class list (and optional recommendations).
func (o *Orchestrator) Home(ctx context.Context, siteKey string, filter bool) (json.RawMessage, error) {
	epoch, _ := o.epochChain()
	key := cache.Fingerprint("home", siteKey, strconv.FormatBool(filter), strconv.FormatInt(epoch, 10))
	return o.run(ctx, "home", siteKey, key, ttlHome, func(ctx context.Context, sp spider.Spider) (interface{}, error) {
		return sp.HomeContent(ctx, filter)
	})
}

// Category returns one page of a site category.
func (o *Orchestrator) Category(ctx context.Context, siteKey, tid string, pg int, filter bool, extend map[string]string) (json.RawMessage, error) {
	epoch, _ := o.epochChain()
	key := cache.Fingerprint("category", siteKey, tid, strconv.Itoa(pg),
		strconv.FormatBool(filter), flattenExtend(extend), strconv.FormatInt(epoch, 10))
	return o.run(ctx, "category", siteKey, key, ttlCategory, func(ctx context.Context, sp spider.Spider) (interface{}, error) {
		return sp.CategoryContent(ctx, tid, pg, filter, extend)
	})
}

// Detail returns full records for the given ids.
func (o *Orchestrator) Detail(ctx context.Context, siteKey string, ids []string) (json.RawMessage, error) {
	epoch, _ := o.epochChain()
	key := cache.Fingerprint("detail", siteKey, strings.Join(ids, ","), strconv.FormatInt(epoch, 10))
	return o.run(ctx, "detail", siteKey, key, ttlDetail, func(ctx context.Context, sp spider.Spider) (interface{}, error) {
		return sp.DetailContent(ctx, ids)
	})
}

// Search fans the query out over all searchable sites and returns the
// merged, deduplicated result.
func (o *Orchestrator) Search(ctx context.Context, query string, quick bool) (json.RawMessage, error) {
	rid := uuid.NewString()
	start := time.Now()

	epoch, _ := o.epochChain()
	key := cache.Fingerprint("search", query, strconv.FormatBool(quick), strconv.FormatInt(epoch, 10))
	payload, err := o.store.GetOrCompute(ctx, key, ttlSearch, func(ctx context.Context) ([]byte, error) {
		list, err := o.searcher.Search(ctx, query, quick)
		if err != nil {
			return nil, err
		}
		return json.Marshal(&types.SearchResult{List: list})
	})

	utils.OpLog(rid, "search", "*", time.Since(start), outcomeOf(err))
	return payload, err
}

// Play resolves an episode id into a playable target: spider first, then the
// extractor pipeline, then the parser chain when the spider asked for
// parsing. Never cached.
func (o *Orchestrator) Play(ctx context.Context, siteKey, flag, id string, vipFlags []string) (json.RawMessage, error) {
	rid := uuid.NewString()
	start := time.Now()

	payload, err := o.play(ctx, siteKey, flag, id, vipFlags)
	utils.OpLog(rid, "play", siteKey, time.Since(start), outcomeOf(err))
	return payload, err
}

func (o *Orchestrator) play(ctx context.Context, siteKey, flag, id string, vipFlags []string) (json.RawMessage, error) {
	sp, ok := o.mgr.Get(siteKey)
	if !ok {
		return nil, types.NewError(types.KindConfig, "unknown site %q", siteKey)
	}

	result, err := sp.PlayerContent(ctx, flag, id, vipFlags)
	if err != nil {
		return nil, err
	}

	resolved, err := o.pipeline.Resolve(ctx, result.URL, result.Headers)
	switch {
	case err == nil:
		result.URL = resolved.URL
		if len(resolved.Headers) > 0 {
			result.Headers = resolved.Headers
		}
		result.Parse = 0
	case types.IsKind(err, types.KindExtractor) && err == extractor.ErrUnresolved:
		if result.Parse == 1 {
			_, chain := o.epochChain()
			if direct, chainErr := chain.Resolve(ctx, nil, result.URL); chainErr == nil {
				result.URL = direct.URL
				if len(direct.Headers) > 0 {
					result.Headers = direct.Headers
				}
				result.Parse = 0
			}
			// Unresolvable here: the client runs its own sniffing parser.
		}
	default:
		return nil, err
	}

	return json.Marshal(result)
}

type loader func(ctx context.Context, sp spider.Spider) (interface{}, error)

// run is the shared per-site op wrapper: spider lookup, cached single-flight
// load, op log.
func (o *Orchestrator) run(ctx context.Context, op, siteKey, key string, ttl time.Duration, load loader) (json.RawMessage, error) {
	rid := uuid.NewString()
	start := time.Now()

	sp, ok := o.mgr.Get(siteKey)
	if !ok {
		err := types.NewError(types.KindConfig, "unknown site %q", siteKey)
		utils.OpLog(rid, op, siteKey, time.Since(start), outcomeOf(err))
		return nil, err
	}

	payload, err := o.store.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		result, err := load(ctx, sp)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})

	utils.OpLog(rid, op, siteKey, time.Since(start), outcomeOf(err))
	return payload, err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(types.KindOf(err))
}

// flattenExtend folds the filter map into a stable cache key fragment.
func flattenExtend(extend map[string]string) string {
	if len(extend) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extend))
	for k := range extend {
		keys = append(keys, k)
	}
	// Map order is random; the key must not be.
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(extend[k])
		b.WriteByte('&')
	}
	return b.String()
}
