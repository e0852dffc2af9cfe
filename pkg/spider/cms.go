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
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// cmsSpider drives the vendor-standard CMS JSON API:
// ac=list for category pages and search, ac=detail for full records, and a
// bare GET for the home class list. Field types are loose across providers
// (ids arrive as numbers or strings), so parsing is jsonparser-based and
// tolerant by construction.
type cmsSpider struct {
	env  *Env
	site types.Site
}

func newCMSSpider(env *Env) *cmsSpider { return &cmsSpider{env: env} }

func (s *cmsSpider) Init(_ context.Context, site types.Site) error {
	if site.API == "" {
		return types.NewError(types.KindConfig, "site %s has no api url", site.Key)
	}
	s.site = site
	return nil
}

func (s *cmsSpider) Destroy() {}

func (s *cmsSpider) apiURL(params url.Values) string {
	base := s.site.API
	if len(params) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}

func (s *cmsSpider) HomeContent(ctx context.Context, _ bool) (*types.HomeResult, error) {
	body, _, err := s.env.fetchRaw(ctx, s.site, s.apiURL(nil))
	if err != nil {
		return nil, err
	}

	result := &types.HomeResult{Class: []types.Category{}}
	_, parseErr := jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		result.Class = append(result.Class, types.Category{
			TypeID:   looseString(value, "type_id"),
			TypeName: looseString(value, "type_name"),
		})
	}, "class")
	if parseErr != nil && len(result.Class) == 0 {
		return nil, types.WrapError(types.KindParse, parseErr, "cms home class list")
	}

	// Some providers ship a recommendation list on the home payload.
	jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		result.List = append(result.List, s.vodFrom(value))
	}, "list")

	return result, nil
}

func (s *cmsSpider) CategoryContent(ctx context.Context, tid string, pg int, _ bool, extend map[string]string) (*types.CategoryPage, error) {
	params := url.Values{}
	params.Set("ac", "list")
	params.Set("t", tid)
	params.Set("pg", strconv.Itoa(pg))
	if len(extend) > 0 {
		pairs := make([]string, 0, len(extend))
		for k, v := range extend {
			if v != "" {
				pairs = append(pairs, k+"="+v)
			}
		}
		if len(pairs) > 0 {
			params.Set("f", strings.Join(pairs, "&"))
		}
	}

	body, _, err := s.env.fetchRaw(ctx, s.site, s.apiURL(params))
	if err != nil {
		return nil, err
	}
	return s.pageFrom(body)
}

func (s *cmsSpider) DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error) {
	params := url.Values{}
	params.Set("ac", "detail")
	params.Set("ids", strings.Join(ids, ","))

	body, _, err := s.env.fetchRaw(ctx, s.site, s.apiURL(params))
	if err != nil {
		return nil, err
	}

	result := &types.DetailResult{List: []types.Vod{}}
	_, parseErr := jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		result.List = append(result.List, s.vodFrom(value))
	}, "list")
	if parseErr != nil {
		return nil, types.WrapError(types.KindParse, parseErr, "cms detail list")
	}
	return result, nil
}

func (s *cmsSpider) SearchContent(ctx context.Context, key string, _ bool) (*types.SearchResult, error) {
	if strings.TrimSpace(key) == "" {
		return &types.SearchResult{List: []types.Vod{}}, nil
	}

	params := url.Values{}
	params.Set("ac", "list")
	params.Set("wd", key)
	params.Set("pg", "1")

	body, _, err := s.env.fetchRaw(ctx, s.site, s.apiURL(params))
	if err != nil {
		return nil, err
	}

	result := &types.SearchResult{List: []types.Vod{}}
	_, parseErr := jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		result.List = append(result.List, s.vodFrom(value))
	}, "list")
	if parseErr != nil {
		return nil, types.WrapError(types.KindParse, parseErr, "cms search list")
	}
	return result, nil
}

func (s *cmsSpider) PlayerContent(_ context.Context, flag, id string, _ []string) (*types.PlayResult, error) {
	// Direct media URLs bypass parsers entirely.
	if u, err := url.Parse(id); err == nil && (u.Scheme == "http" || u.Scheme == "https") && utils.IsMediaPath(u.Path) {
		return &types.PlayResult{Parse: 0, URL: id, Flag: flag}, nil
	}
	return &types.PlayResult{Parse: 1, URL: id, Flag: flag}, nil
}

func (s *cmsSpider) pageFrom(body []byte) (*types.CategoryPage, error) {
	page := &types.CategoryPage{List: []types.Vod{}}
	_, parseErr := jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		page.List = append(page.List, s.vodFrom(value))
	}, "list")
	if parseErr != nil {
		return nil, types.WrapError(types.KindParse, parseErr, "cms page list")
	}
	page.Page = looseInt(body, "page")
	page.PageCount = looseInt(body, "pagecount")
	page.Limit = looseInt(body, "limit")
	page.Total = looseInt(body, "total")
	return page, nil
}

// vodFrom maps one vendor record to the normalized shape with defensive
// defaults for everything optional.
func (s *cmsSpider) vodFrom(value []byte) types.Vod {
	return types.Vod{
		VodID:       looseString(value, "vod_id"),
		VodName:     looseString(value, "vod_name"),
		VodPic:      looseString(value, "vod_pic"),
		VodRemarks:  looseString(value, "vod_remarks"),
		VodYear:     looseString(value, "vod_year"),
		VodArea:     looseString(value, "vod_area"),
		VodActor:    looseString(value, "vod_actor"),
		VodDirector: looseString(value, "vod_director"),
		VodContent:  strings.TrimSpace(looseString(value, "vod_content")),
		VodPlayFrom: looseString(value, "vod_play_from"),
		VodPlayURL:  looseString(value, "vod_play_url"),
		TypeID:      looseString(value, "type_id"),
		TypeName:    looseString(value, "type_name"),
		SiteKey:     s.site.Key,
	}
}

// looseString reads a field that providers ship as either string or number.
func looseString(data []byte, key string) string {
	value, dataType, _, err := jsonparser.Get(data, key)
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, _ := jsonparser.ParseString(value)
		return s
	case jsonparser.Number:
		return string(value)
	default:
		return ""
	}
}

// looseInt reads an int field shipped as number or numeric string.
func looseInt(data []byte, key string) int {
	if n, err := jsonparser.GetInt(data, key); err == nil {
		return int(n)
	}
	if s, err := jsonparser.GetString(data, key); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func (s *cmsSpider) String() string {
	return fmt.Sprintf("cms(%s)", s.site.Key)
}
