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

// Package search fans a query out over every searchable site and streams
// hits back as they arrive, without waiting for the slowest site.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vodbridge/vodbridge/pkg/spider"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// maxFanout caps in-flight site searches.
const maxFanout = 5

// globalGrace pads the slowest site's timeout to form the fan-out deadline.
const globalGrace = 2 * time.Second

// Hit is one site's contribution to a search. Err is set when that site
// failed; its List is then empty.
type Hit struct {
	SiteKey string
	List    []types.Vod
	Err     error
}

// Searcher runs concurrent multi-site searches against a spider manager.
type Searcher struct {
	mgr *spider.Manager
}

func New(mgr *spider.Manager) *Searcher { return &Searcher{mgr: mgr} }

// sitesFor selects the participating sites in config order.
func (s *Searcher) sitesFor(quick bool) []types.Site {
	var sites []types.Site
	for _, key := range s.mgr.Searchable() {
		site, ok := s.mgr.Site(key)
		if !ok {
			continue
		}
		if quick && !site.QuickSearchable {
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

// Stream fans the query out and emits one Hit per site as results arrive.
// The channel closes once every site task has finished or the global
// deadline (slowest site timeout + 2 s) has passed. Cancelling ctx drains
// the fan-out promptly; pending tasks observe it at their next fetch.
func (s *Searcher) Stream(ctx context.Context, query string, quick bool) <-chan Hit {
	out := make(chan Hit)
	sites := s.sitesFor(quick)
	if strings.TrimSpace(query) == "" || len(sites) == 0 {
		close(out)
		return out
	}

	var slowest time.Duration
	for _, site := range sites {
		if d := spider.SiteTimeout(site); d > slowest {
			slowest = d
		}
	}
	fanCtx, cancel := context.WithTimeout(ctx, slowest+globalGrace)

	limit := int64(maxFanout)
	if n := int64(len(sites)); n < limit {
		limit = n
	}
	sem := semaphore.NewWeighted(limit)

	// Cross-site dedup by (name, year), first arrival wins.
	var (
		seenMu sync.Mutex
		seen   = map[string]bool{}
	)
	dedup := func(list []types.Vod) []types.Vod {
		seenMu.Lock()
		defer seenMu.Unlock()
		kept := list[:0]
		for _, vod := range list {
			key := vod.VodName + "\x00" + vod.VodYear
			if seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, vod)
		}
		return kept
	}

	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		go func(site types.Site) {
			defer wg.Done()
			if err := sem.Acquire(fanCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			sp, ok := s.mgr.Get(site.Key)
			if !ok {
				return
			}

			siteCtx, siteCancel := context.WithTimeout(fanCtx, spider.SiteTimeout(site))
			result, err := sp.SearchContent(siteCtx, query, quick)
			siteCancel()

			hit := Hit{SiteKey: site.Key}
			if err != nil {
				// Results arriving after the global deadline are discarded,
				// not reported as site failures.
				if fanCtx.Err() != nil {
					return
				}
				utils.DebugLog("search failed on %s: %v", site.Key, err)
				hit.Err = err
			} else {
				hit.List = dedup(result.List)
			}

			select {
			case out <- hit:
			case <-fanCtx.Done():
			}
		}(site)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out
}

// Search is the aggregate form: it drains the stream and returns the merged,
// deduplicated hit list. It fails only when every participating site failed.
func (s *Searcher) Search(ctx context.Context, query string, quick bool) ([]types.Vod, error) {
	sites := s.sitesFor(quick)
	if len(sites) == 0 {
		return []types.Vod{}, nil
	}

	merged := []types.Vod{}
	failed := 0
	delivered := 0
	for hit := range s.Stream(ctx, query, quick) {
		delivered++
		if hit.Err != nil {
			failed++
			continue
		}
		merged = append(merged, hit.List...)
	}

	if ctx.Err() != nil && len(merged) == 0 {
		return nil, types.WrapError(types.KindOf(ctx.Err()), ctx.Err(), "search")
	}
	if delivered > 0 && failed == delivered {
		return nil, types.NewError(types.KindNetwork, "search failed on all %d sites", failed)
	}
	return merged, nil
}
