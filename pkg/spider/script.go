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
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vodbridge/vodbridge/pkg/scripthost"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// scriptSources caches fetched spider scripts so that a config with many
// sites sharing one script does not refetch it per site.
var scriptSources = gocache.New(30*time.Minute, 10*time.Minute)

// scriptSpider runs a user script through a script host and calls the five
// operations by name. Missing operations fall back to documented defaults
// instead of failing.
type scriptSpider struct {
	env  *Env
	site types.Site
	kind scripthost.Kind
	host scripthost.Host

	bridges *scripthost.Bridges
}

func newScriptSpider(env *Env, kind scripthost.Kind, mintProxyURL func(string) string) *scriptSpider {
	return &scriptSpider{
		env:  env,
		kind: kind,
		bridges: &scripthost.Bridges{
			Fetch:        env.Fetch,
			MintProxyURL: mintProxyURL,
		},
	}
}

func (s *scriptSpider) Init(ctx context.Context, site types.Site) error {
	s.site = site

	host, err := scripthost.New(s.kind, s.bridges)
	if err != nil {
		return err
	}
	if err := host.Init(); err != nil {
		return err
	}

	source, err := s.loadScript(ctx, site.API)
	if err != nil {
		return err
	}
	if err := host.Eval(source); err != nil {
		return err
	}

	s.host = host

	// Scripts may declare an init(ext) entry point.
	if host.HasFn("init") {
		if _, err := s.call(ctx, "init", site.Ext); err != nil {
			utils.WarnLog("Script init failed for %s: %v", site.Key, err)
		}
	}
	return nil
}

func (s *scriptSpider) loadScript(ctx context.Context, scriptURL string) (string, error) {
	if cached, ok := scriptSources.Get(scriptURL); ok {
		return cached.(string), nil
	}
	source, err := s.env.fetchText(ctx, s.site, scriptURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(source) == "" {
		return "", types.NewError(types.KindParse, "empty script at %s", utils.MaskURL(scriptURL))
	}
	scriptSources.Set(scriptURL, source, gocache.DefaultExpiration)
	return source, nil
}

// call routes a scripted operation through the host with the caller's
// context wired into the bridges. Safe because operations on one spider are
// serialized by the manager.
func (s *scriptSpider) call(ctx context.Context, name string, args ...interface{}) (string, error) {
	s.bridges.Ctx = ctx
	defer func() { s.bridges.Ctx = nil }()
	return s.host.Call(ctx, name, args...)
}

func (s *scriptSpider) Destroy() {
	if s.host != nil {
		s.host.Destroy()
	}
}

// HostDead reports whether the underlying runtime died; the manager evicts
// such spiders.
func (s *scriptSpider) HostDead() bool {
	return s.host == nil || s.host.Dead()
}

func (s *scriptSpider) HomeContent(ctx context.Context, filter bool) (*types.HomeResult, error) {
	out := &types.HomeResult{Class: []types.Category{}}
	if !s.host.HasFn("homeContent") {
		return out, nil
	}
	raw, err := s.call(ctx, "homeContent", filter)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, types.WrapError(types.KindParse, err, "script homeContent payload")
	}
	return out, nil
}

func (s *scriptSpider) CategoryContent(ctx context.Context, tid string, pg int, filter bool, extend map[string]string) (*types.CategoryPage, error) {
	out := &types.CategoryPage{List: []types.Vod{}, Page: pg, PageCount: pg}
	if !s.host.HasFn("categoryContent") {
		return out, nil
	}
	raw, err := s.call(ctx, "categoryContent", tid, pg, filter, extend)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, types.WrapError(types.KindParse, err, "script categoryContent payload")
	}
	for i := range out.List {
		out.List[i].SiteKey = s.site.Key
	}
	return out, nil
}

func (s *scriptSpider) DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error) {
	out := &types.DetailResult{List: []types.Vod{}}
	if !s.host.HasFn("detailContent") {
		return out, nil
	}
	raw, err := s.call(ctx, "detailContent", ids)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, types.WrapError(types.KindParse, err, "script detailContent payload")
	}
	for i := range out.List {
		out.List[i].SiteKey = s.site.Key
	}
	return out, nil
}

// defaultSearchResult is the documented fallback when a script does not
// implement searchContent: one placeholder record so clients render an
// explicit "unsupported" row instead of an error.
func (s *scriptSpider) defaultSearchResult() *types.SearchResult {
	return &types.SearchResult{List: []types.Vod{{
		VodID:      "no_search",
		VodName:    s.site.Name + " 不支持搜索",
		VodRemarks: "脚本未实现搜索",
		SiteKey:    s.site.Key,
	}}}
}

func (s *scriptSpider) SearchContent(ctx context.Context, key string, quick bool) (*types.SearchResult, error) {
	if strings.TrimSpace(key) == "" {
		return &types.SearchResult{List: []types.Vod{}}, nil
	}
	if !s.host.HasFn("searchContent") {
		return s.defaultSearchResult(), nil
	}
	raw, err := s.call(ctx, "searchContent", key, quick)
	if err != nil {
		return nil, err
	}
	out := &types.SearchResult{List: []types.Vod{}}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, types.WrapError(types.KindParse, err, "script searchContent payload")
	}
	for i := range out.List {
		out.List[i].SiteKey = s.site.Key
	}
	return out, nil
}

func (s *scriptSpider) PlayerContent(ctx context.Context, flag, id string, vipFlags []string) (*types.PlayResult, error) {
	if !s.host.HasFn("playerContent") {
		return &types.PlayResult{Parse: 1, URL: id, Flag: flag}, nil
	}
	raw, err := s.call(ctx, "playerContent", flag, id, vipFlags)
	if err != nil {
		return nil, err
	}
	out := &types.PlayResult{}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, types.WrapError(types.KindParse, err, "script playerContent payload")
	}
	if out.Flag == "" {
		out.Flag = flag
	}
	return out, nil
}
