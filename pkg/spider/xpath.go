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
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// xpathExt is the selector configuration carried in a site's ext field.
// URLs use {cateId}, {catePg}, {wd} and {vid} placeholders.
type xpathExt struct {
	HomeURL     string           `json:"homeUrl"`
	CategoryURL string           `json:"cateUrl"`
	DetailURL   string           `json:"detailUrl"`
	SearchURL   string           `json:"searchUrl"`
	Classes     []types.Category `json:"classes"`

	ListRule   string `json:"list"`
	TitleRule  string `json:"title"`
	LinkRule   string `json:"link"`
	PicRule    string `json:"pic"`
	RemarkRule string `json:"remark"`

	ContentRule  string `json:"content"`
	YearRule     string `json:"year"`
	AreaRule     string `json:"area"`
	ActorRule    string `json:"actor"`
	DirectorRule string `json:"director"`
	// Episode anchors on the detail page; name from text, url from href.
	PlayListRule string `json:"playList"`
	PlayFlag     string `json:"playFlag"`

	PageCountRule string `json:"pageCount"`
}

// xpathSpider scrapes HTML sites through configured XPath selectors.
type xpathSpider struct {
	env  *Env
	site types.Site
	ext  xpathExt
}

func newXPathSpider(env *Env) *xpathSpider { return &xpathSpider{env: env} }

func (s *xpathSpider) Init(_ context.Context, site types.Site) error {
	if err := json.Unmarshal([]byte(site.Ext), &s.ext); err != nil {
		return types.WrapError(types.KindConfig, err, "xpath ext for "+site.Key)
	}
	if s.ext.ListRule == "" || s.ext.CategoryURL == "" {
		return types.NewError(types.KindConfig, "xpath ext for %s missing list/cateUrl", site.Key)
	}
	s.site = site
	return nil
}

func (s *xpathSpider) Destroy() {}

func (s *xpathSpider) HomeContent(ctx context.Context, _ bool) (*types.HomeResult, error) {
	result := &types.HomeResult{Class: s.ext.Classes}
	if result.Class == nil {
		result.Class = []types.Category{}
	}
	if s.ext.HomeURL == "" {
		return result, nil
	}

	doc, err := s.fetchDoc(ctx, s.ext.HomeURL)
	if err != nil {
		// Home still serves the static class list when the page is down.
		utils.DebugLog("xpath home fetch failed for %s: %v", s.site.Key, err)
		return result, nil
	}
	result.List = s.scrapeList(doc)
	return result, nil
}

func (s *xpathSpider) CategoryContent(ctx context.Context, tid string, pg int, _ bool, _ map[string]string) (*types.CategoryPage, error) {
	pageURL := strings.NewReplacer("{cateId}", tid, "{catePg}", strconv.Itoa(pg)).Replace(s.ext.CategoryURL)
	doc, err := s.fetchDoc(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &types.CategoryPage{
		List:  s.scrapeList(doc),
		Page:  pg,
		Limit: 20,
	}
	page.PageCount = s.scrapePageCount(doc, pg)
	if pg > page.PageCount {
		page.List = []types.Vod{}
	}
	page.Total = page.PageCount * page.Limit
	return page, nil
}

func (s *xpathSpider) DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error) {
	result := &types.DetailResult{List: []types.Vod{}}
	if len(ids) == 0 {
		return result, nil
	}
	vid := ids[0]

	detailURL := vid
	if s.ext.DetailURL != "" && !strings.HasPrefix(vid, "http") {
		detailURL = strings.ReplaceAll(s.ext.DetailURL, "{vid}", vid)
	}
	doc, err := s.fetchDoc(ctx, detailURL)
	if err != nil {
		return nil, err
	}

	vod := types.Vod{
		VodID:       vid,
		VodName:     s.selectOne(doc, s.ext.TitleRule),
		VodPic:      s.selectOne(doc, s.ext.PicRule),
		VodContent:  s.selectOne(doc, s.ext.ContentRule),
		VodYear:     s.selectOne(doc, s.ext.YearRule),
		VodArea:     s.selectOne(doc, s.ext.AreaRule),
		VodActor:    s.selectOne(doc, s.ext.ActorRule),
		VodDirector: s.selectOne(doc, s.ext.DirectorRule),
		SiteKey:     s.site.Key,
	}

	if s.ext.PlayListRule != "" {
		if nodes, err := htmlquery.QueryAll(doc, s.ext.PlayListRule); err == nil && len(nodes) > 0 {
			eps := make([]types.Episode, 0, len(nodes))
			for _, node := range nodes {
				name := strings.TrimSpace(htmlquery.InnerText(node))
				link := htmlquery.SelectAttr(node, "href")
				if link == "" {
					continue
				}
				if name == "" {
					name = "播放"
				}
				eps = append(eps, types.Episode{Name: name, URL: utils.JoinURL(detailURL, link)})
			}
			flag := s.ext.PlayFlag
			if flag == "" {
				flag = s.site.Name
			}
			vod.VodPlayFrom = flag
			vod.VodPlayURL = types.JoinEpisodes(eps)
		}
	}

	result.List = append(result.List, vod)
	return result, nil
}

func (s *xpathSpider) SearchContent(ctx context.Context, key string, _ bool) (*types.SearchResult, error) {
	result := &types.SearchResult{List: []types.Vod{}}
	if strings.TrimSpace(key) == "" || s.ext.SearchURL == "" {
		return result, nil
	}
	doc, err := s.fetchDoc(ctx, strings.ReplaceAll(s.ext.SearchURL, "{wd}", url.QueryEscape(key)))
	if err != nil {
		return nil, err
	}
	result.List = s.scrapeList(doc)
	return result, nil
}

func (s *xpathSpider) PlayerContent(ctx context.Context, flag, id string, _ []string) (*types.PlayResult, error) {
	if u, err := url.Parse(id); err == nil && (u.Scheme == "http" || u.Scheme == "https") && utils.IsMediaPath(u.Path) {
		return &types.PlayResult{Parse: 0, URL: id, Flag: flag}, nil
	}
	// Scraped episode pages need a sniffing parser on the client side.
	return &types.PlayResult{Parse: 1, URL: id, Flag: flag}, nil
}

func (s *xpathSpider) fetchDoc(ctx context.Context, pageURL string) (*html.Node, error) {
	text, err := s.env.fetchText(ctx, s.site, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, types.WrapError(types.KindParse, err, "parse html")
	}
	return doc, nil
}

func (s *xpathSpider) scrapeList(doc *html.Node) []types.Vod {
	nodes, err := htmlquery.QueryAll(doc, s.ext.ListRule)
	if err != nil {
		utils.DebugLog("bad list rule for %s: %v", s.site.Key, err)
		return []types.Vod{}
	}

	vods := make([]types.Vod, 0, len(nodes))
	for _, node := range nodes {
		vod := types.Vod{
			VodID:      s.selectOne(node, s.ext.LinkRule),
			VodName:    s.selectOne(node, s.ext.TitleRule),
			VodPic:     s.selectOne(node, s.ext.PicRule),
			VodRemarks: s.selectOne(node, s.ext.RemarkRule),
			SiteKey:    s.site.Key,
		}
		if vod.VodName == "" && vod.VodID == "" {
			continue
		}
		vods = append(vods, vod)
	}
	return vods
}

// selectOne evaluates one selector rule relative to node. Rules ending in
// "/@attr" return the attribute, everything else the trimmed inner text.
func (s *xpathSpider) selectOne(node *html.Node, rule string) string {
	if rule == "" {
		return ""
	}
	attr := ""
	if idx := strings.LastIndex(rule, "/@"); idx >= 0 {
		attr = rule[idx+2:]
		rule = rule[:idx]
	}
	found, err := htmlquery.Query(node, rule)
	if err != nil || found == nil {
		return ""
	}
	if attr != "" {
		return htmlquery.SelectAttr(found, attr)
	}
	return strings.TrimSpace(htmlquery.InnerText(found))
}

func (s *xpathSpider) scrapePageCount(doc *html.Node, current int) int {
	if s.ext.PageCountRule != "" {
		if raw := s.selectOne(doc, s.ext.PageCountRule); raw != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
				return n
			}
		}
	}
	// Without a pagination selector the current page is all we know about.
	return current
}
