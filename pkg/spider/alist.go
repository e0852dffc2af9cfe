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
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/types"
)

// videoExtensions are the file suffixes an alist listing counts as playable.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".3gp": true, ".ts": true,
	".m3u8": true,
}

// alistSpider treats a site as an alist file server: folders become VODs,
// video files become episodes, and /d/<path> yields the direct URL.
type alistSpider struct {
	env  *Env
	site types.Site
	base string
}

func newAlistSpider(env *Env) *alistSpider { return &alistSpider{env: env} }

func (s *alistSpider) Init(_ context.Context, site types.Site) error {
	if site.API == "" {
		return types.NewError(types.KindConfig, "alist site %s has no api url", site.Key)
	}
	s.site = site
	s.base = strings.TrimRight(site.API, "/")
	return nil
}

func (s *alistSpider) Destroy() {}

type alistListRequest struct {
	Path     string `json:"path"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
	Refresh  bool   `json:"refresh"`
	Password string `json:"password"`
}

type alistSearchRequest struct {
	Keywords string `json:"keywords"`
	Parent   string `json:"parent"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
}

func (s *alistSpider) postJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.WrapError(types.KindParse, err, "alist request body")
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range s.site.Headers {
		headers[k] = v
	}
	resp, err := s.env.Fetch.Do(ctx, s.base+endpoint, fetcher.Options{
		Method:  http.MethodPost,
		Headers: headers,
		Body:    body,
		Timeout: SiteTimeout(s.site),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 400 {
		return nil, types.NewError(types.KindNetwork, "alist %s returned %d", endpoint, resp.Status)
	}
	return resp.Body, nil
}

func (s *alistSpider) HomeContent(ctx context.Context, _ bool) (*types.HomeResult, error) {
	result := &types.HomeResult{Class: []types.Category{}}

	entries, err := s.list(ctx, "/", 1)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.isDir {
			result.Class = append(result.Class, types.Category{
				TypeID:   "/" + entry.name,
				TypeName: entry.name,
			})
		}
	}
	return result, nil
}

func (s *alistSpider) CategoryContent(ctx context.Context, tid string, pg int, _ bool, _ map[string]string) (*types.CategoryPage, error) {
	entries, err := s.list(ctx, tid, pg)
	if err != nil {
		return nil, err
	}

	page := &types.CategoryPage{List: []types.Vod{}, Page: pg, PageCount: pg, Limit: len(entries), Total: len(entries)}
	for _, entry := range entries {
		if !entry.isDir && !videoExtensions[strings.ToLower(path.Ext(entry.name))] {
			continue
		}
		page.List = append(page.List, types.Vod{
			VodID:      path.Join(tid, entry.name),
			VodName:    entry.name,
			VodPic:     entry.thumb,
			VodRemarks: entry.sizeLabel(),
			SiteKey:    s.site.Key,
		})
	}
	return page, nil
}

func (s *alistSpider) DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error) {
	result := &types.DetailResult{List: []types.Vod{}}
	if len(ids) == 0 {
		return result, nil
	}
	target := ids[0]

	vod := types.Vod{
		VodID:       target,
		VodName:     path.Base(target),
		VodPlayFrom: s.site.Name,
		SiteKey:     s.site.Key,
	}

	if videoExtensions[strings.ToLower(path.Ext(target))] {
		// A single file is its own episode.
		vod.VodPlayURL = types.JoinEpisodes([]types.Episode{{Name: path.Base(target), URL: target}})
		result.List = append(result.List, vod)
		return result, nil
	}

	// A folder synthesizes one episode per contained video file.
	entries, err := s.list(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	var eps []types.Episode
	for _, entry := range entries {
		if entry.isDir || !videoExtensions[strings.ToLower(path.Ext(entry.name))] {
			continue
		}
		eps = append(eps, types.Episode{Name: entry.name, URL: path.Join(target, entry.name)})
	}
	vod.VodPlayURL = types.JoinEpisodes(eps)
	result.List = append(result.List, vod)
	return result, nil
}

func (s *alistSpider) SearchContent(ctx context.Context, key string, _ bool) (*types.SearchResult, error) {
	result := &types.SearchResult{List: []types.Vod{}}
	if strings.TrimSpace(key) == "" {
		return result, nil
	}

	body, err := s.postJSON(ctx, "/api/fs/search", alistSearchRequest{
		Keywords: key, Parent: "/", Page: 1, PerPage: 100,
	})
	if err != nil {
		return nil, err
	}

	jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		name := looseString(value, "name")
		parent := looseString(value, "parent")
		isDir, _ := jsonparser.GetBoolean(value, "is_dir")
		if !isDir && !videoExtensions[strings.ToLower(path.Ext(name))] {
			return
		}
		result.List = append(result.List, types.Vod{
			VodID:   path.Join(parent, name),
			VodName: name,
			SiteKey: s.site.Key,
		})
	}, "data", "content")

	return result, nil
}

func (s *alistSpider) PlayerContent(_ context.Context, flag, id string, _ []string) (*types.PlayResult, error) {
	// Direct link endpoint; alist serves or redirects to the file.
	direct := s.base + "/d" + id
	return &types.PlayResult{Parse: 0, URL: direct, Flag: flag, Headers: s.site.Headers}, nil
}

type alistEntry struct {
	name  string
	isDir bool
	size  int64
	thumb string
}

func (e alistEntry) sizeLabel() string {
	if e.isDir || e.size <= 0 {
		return ""
	}
	const unit = 1024
	switch {
	case e.size >= unit*unit*unit:
		return fmt.Sprintf("%.1fGB", float64(e.size)/(unit*unit*unit))
	case e.size >= unit*unit:
		return fmt.Sprintf("%.1fMB", float64(e.size)/(unit*unit))
	default:
		return fmt.Sprintf("%.1fKB", float64(e.size)/unit)
	}
}

func (s *alistSpider) list(ctx context.Context, dir string, page int) ([]alistEntry, error) {
	body, err := s.postJSON(ctx, "/api/fs/list", alistListRequest{
		Path: dir, Page: page, PerPage: 200,
	})
	if err != nil {
		return nil, err
	}

	code, _ := jsonparser.GetInt(body, "code")
	if code != 0 && code != 200 {
		msg, _ := jsonparser.GetString(body, "message")
		return nil, types.NewError(types.KindParse, "alist list failed: %s", msg)
	}

	var entries []alistEntry
	jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		isDir, _ := jsonparser.GetBoolean(value, "is_dir")
		size, _ := jsonparser.GetInt(value, "size")
		entries = append(entries, alistEntry{
			name:  looseString(value, "name"),
			isDir: isDir,
			size:  size,
			thumb: looseString(value, "thumb"),
		})
	}, "data", "content")

	return entries, nil
}
