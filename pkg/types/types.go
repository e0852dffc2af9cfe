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

package types

import "strings"

// SiteType identifies how a site is driven.
type SiteType int

const (
	SiteTypeSpider SiteType = 3
	SiteTypeCMS    SiteType = 1
	SiteTypeApp    SiteType = 2
	SiteTypeAlist  SiteType = 4
)

// Site describes one upstream source. Sites are immutable after the config
// that carries them has been installed.
type Site struct {
	Key             string            `json:"key"`
	Name            string            `json:"name"`
	API             string            `json:"api"`
	Ext             string            `json:"ext,omitempty"`
	Jar             string            `json:"jar,omitempty"`
	Type            SiteType          `json:"type"`
	Searchable      bool              `json:"searchable"`
	QuickSearchable bool              `json:"quickSearch"`
	Filterable      bool              `json:"filterable"`
	Changeable      bool              `json:"changeable"`
	Headers         map[string]string `json:"header,omitempty"`
	TimeoutMs       int               `json:"timeout,omitempty"`
	Categories      []Category        `json:"categories,omitempty"`
}

// Category is one navigable class exposed by a site.
type Category struct {
	TypeID   string `json:"type_id"`
	TypeName string `json:"type_name"`
	TypeFlag string `json:"type_flag,omitempty"`
}

// ParserType mirrors the vendor numbering for play-URL resolvers.
type ParserType int

const (
	ParserSniff ParserType = 0
	ParserJSON  ParserType = 1
	ParserExt   ParserType = 2
	ParserMix   ParserType = 3
	ParserGod   ParserType = 4
)

// Parser is a remote or scripted resolver consulted when a play URL needs
// external resolution (PlayResult.Parse == 1).
type Parser struct {
	Name    string            `json:"name"`
	Type    ParserType        `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"header,omitempty"`
	Ext     string            `json:"ext,omitempty"`
}

// Vod is the normalized video descriptor every spider variant produces.
// Field names are part of the external contract and must not change.
type Vod struct {
	VodID       string `json:"vod_id"`
	VodName     string `json:"vod_name"`
	VodPic      string `json:"vod_pic,omitempty"`
	VodRemarks  string `json:"vod_remarks,omitempty"`
	VodYear     string `json:"vod_year,omitempty"`
	VodArea     string `json:"vod_area,omitempty"`
	VodActor    string `json:"vod_actor,omitempty"`
	VodDirector string `json:"vod_director,omitempty"`
	VodContent  string `json:"vod_content,omitempty"`
	VodPlayFrom string `json:"vod_play_from,omitempty"`
	VodPlayURL  string `json:"vod_play_url,omitempty"`
	TypeID      string `json:"type_id,omitempty"`
	TypeName    string `json:"type_name,omitempty"`
	SiteKey     string `json:"site_key,omitempty"`
}

// HomeResult is the payload of homeContent.
type HomeResult struct {
	Class   []Category               `json:"class"`
	List    []Vod                    `json:"list,omitempty"`
	Filters map[string][]FilterValue `json:"filters,omitempty"`
}

// FilterValue is a single selectable filter option.
type FilterValue struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CategoryPage is one page of a category listing.
type CategoryPage struct {
	List      []Vod `json:"list"`
	Page      int   `json:"page"`
	PageCount int   `json:"pagecount"`
	Limit     int   `json:"limit"`
	Total     int   `json:"total"`
}

// DetailResult is the payload of detailContent.
type DetailResult struct {
	List []Vod `json:"list"`
}

// SearchResult is the payload of searchContent.
type SearchResult struct {
	List []Vod `json:"list"`
}

// PlayResult is the payload of playerContent. Parse==0 means URL is directly
// playable; Parse==1 means the client must run a parser against it.
type PlayResult struct {
	Parse   int               `json:"parse"`
	PlayURL string            `json:"playUrl,omitempty"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"header,omitempty"`
	Flag    string            `json:"flag,omitempty"`
}

const (
	// SourceSep joins play sources in vod_play_from / vod_play_url.
	SourceSep = "$$$"
	// EpisodeSep joins episodes within one source.
	EpisodeSep = "#"
	// NameURLSep joins an episode name and its URL.
	NameURLSep = "$"
)

// Episode is a "name$url" pair within a play source.
type Episode struct {
	Name string
	URL  string
}

// JoinEpisodes encodes episodes for one source into the wire format.
func JoinEpisodes(eps []Episode) string {
	parts := make([]string, 0, len(eps))
	for _, ep := range eps {
		parts = append(parts, ep.Name+NameURLSep+ep.URL)
	}
	return strings.Join(parts, EpisodeSep)
}

// SplitEpisodes decodes one source's episode string. An episode without a
// "$" keeps the whole fragment as its URL with an empty name.
func SplitEpisodes(s string) []Episode {
	if s == "" {
		return nil
	}
	frags := strings.Split(s, EpisodeSep)
	eps := make([]Episode, 0, len(frags))
	for _, f := range frags {
		if f == "" {
			continue
		}
		if idx := strings.Index(f, NameURLSep); idx >= 0 {
			eps = append(eps, Episode{Name: f[:idx], URL: f[idx+1:]})
		} else {
			eps = append(eps, Episode{URL: f})
		}
	}
	return eps
}

// JoinSources encodes the per-source strings (labels or episode strings).
func JoinSources(sources []string) string {
	return strings.Join(sources, SourceSep)
}

// SplitSources decodes a "$$$"-joined list.
func SplitSources(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, SourceSep)
}
