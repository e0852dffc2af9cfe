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

// Package config resolves, validates and installs source-list documents.
// Documents come from a user URL, a remote index, or the bundled default;
// installs are atomic and versioned by an epoch counter.
package config

import (
	"net/url"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Document is one parsed source-list config.
type Document struct {
	SpiderJarURL string         `json:"spider,omitempty"`
	Wallpaper    string         `json:"wallpaper,omitempty"`
	Sites        []types.Site   `json:"sites"`
	Parsers      []types.Parser `json:"parses"`
	Flags        []string       `json:"flags,omitempty"`
	AdHosts      []string       `json:"ads,omitempty"`
	Hosts        []string       `json:"hosts,omitempty"`
	Cookies      []string       `json:"cookies,omitempty"`
	Notice       string         `json:"notice,omitempty"`
}

// ParseDocument decodes a config payload. Site ext fields arrive as either a
// string or an inline object, header fields as an object or a "k:v; k:v"
// spec; both are normalized here so the rest of the system sees one shape.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{Sites: []types.Site{}, Parsers: []types.Parser{}}

	doc.SpiderJarURL, _ = jsonparser.GetString(data, "spider")
	doc.Wallpaper, _ = jsonparser.GetString(data, "wallpaper")
	doc.Notice, _ = jsonparser.GetString(data, "notice")
	doc.Flags = stringArray(data, "flags")
	doc.AdHosts = stringArray(data, "ads")
	doc.Hosts = stringArray(data, "hosts")
	doc.Cookies = stringArray(data, "cookies")

	var siteErr error
	if _, err := jsonparser.ArrayEach(data, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		site, err := parseSite(value)
		if err != nil {
			if siteErr == nil {
				siteErr = err
			}
			return
		}
		doc.Sites = append(doc.Sites, site)
	}, "sites"); err != nil {
		return nil, types.WrapError(types.KindConfig, err, "sites array")
	}
	if siteErr != nil && len(doc.Sites) == 0 {
		return nil, siteErr
	}

	jsonparser.ArrayEach(data, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		doc.Parsers = append(doc.Parsers, parseParser(value))
	}, "parses")

	return doc, nil
}

func parseSite(value []byte) (types.Site, error) {
	siteType, _ := jsonparser.GetInt(value, "type")
	site := types.Site{
		Key:             strings.TrimSpace(looseString(value, "key")),
		Name:            looseString(value, "name"),
		API:             strings.TrimSpace(looseString(value, "api")),
		Jar:             looseString(value, "jar"),
		Type:            types.SiteType(siteType),
		Searchable:      looseBool(value, "searchable"),
		QuickSearchable: looseBool(value, "quickSearch"),
		Filterable:      looseBool(value, "filterable"),
		Changeable:      looseBool(value, "changeable"),
		Ext:             dualExt(value),
		Headers:         dualHeader(value),
	}
	if t, err := jsonparser.GetInt(value, "timeout"); err == nil {
		// Small values are seconds by vendor convention.
		if t > 0 && t < 1000 {
			t *= 1000
		}
		site.TimeoutMs = int(t)
	}
	jsonparser.ArrayEach(value, func(cat []byte, dt jsonparser.ValueType, _ int, _ error) {
		if dt == jsonparser.String {
			name, _ := jsonparser.ParseString(cat)
			site.Categories = append(site.Categories, types.Category{TypeID: name, TypeName: name})
			return
		}
		site.Categories = append(site.Categories, types.Category{
			TypeID:   looseString(cat, "type_id"),
			TypeName: looseString(cat, "type_name"),
			TypeFlag: looseString(cat, "type_flag"),
		})
	}, "categories")

	if site.Key == "" {
		return site, types.NewError(types.KindConfig, "site without key")
	}
	return site, nil
}

func parseParser(value []byte) types.Parser {
	pt, _ := jsonparser.GetInt(value, "type")
	return types.Parser{
		Name:    looseString(value, "name"),
		Type:    types.ParserType(pt),
		URL:     looseString(value, "url"),
		Ext:     dualExt(value),
		Headers: dualHeader(value),
	}
}

// dualExt returns ext as a string whether the document carried a string or
// an inline JSON object.
func dualExt(value []byte) string {
	raw, dataType, _, err := jsonparser.Get(value, "ext")
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, _ := jsonparser.ParseString(raw)
		return s
	case jsonparser.Object, jsonparser.Array:
		return string(raw)
	default:
		return ""
	}
}

// dualHeader accepts {"k":"v"} objects and "k:v; k:v" header specs.
func dualHeader(value []byte) map[string]string {
	raw, dataType, _, err := jsonparser.Get(value, "header")
	if err != nil {
		return nil
	}
	switch dataType {
	case jsonparser.Object:
		headers := map[string]string{}
		jsonparser.ObjectEach(raw, func(key, v []byte, _ jsonparser.ValueType, _ int) error {
			headers[string(key)] = string(v)
			return nil
		})
		if len(headers) == 0 {
			return nil
		}
		return headers
	case jsonparser.String:
		s, _ := jsonparser.ParseString(raw)
		return utils.ParseHeaderSpec(s)
	default:
		return nil
	}
}

func looseString(data []byte, key string) string {
	raw, dataType, _, err := jsonparser.Get(data, key)
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, _ := jsonparser.ParseString(raw)
		return s
	case jsonparser.Number:
		return string(raw)
	default:
		return ""
	}
}

// looseBool accepts true/false and the vendor's 0/1 numbers.
func looseBool(data []byte, key string) bool {
	raw, dataType, _, err := jsonparser.Get(data, key)
	if err != nil {
		return false
	}
	switch dataType {
	case jsonparser.Boolean:
		b, _ := jsonparser.ParseBoolean(raw)
		return b
	case jsonparser.Number:
		return string(raw) != "0"
	default:
		return false
	}
}

func stringArray(data []byte, key string) []string {
	var out []string
	jsonparser.ArrayEach(data, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if dt == jsonparser.String {
			s, _ := jsonparser.ParseString(value)
			out = append(out, s)
		}
	}, key)
	return out
}

// Validate enforces the structural invariants a document must satisfy
// before it can be installed.
func (d *Document) Validate() error {
	seenSites := map[string]bool{}
	for _, site := range d.Sites {
		if site.Key == "" {
			return types.NewError(types.KindConfig, "site without key")
		}
		if seenSites[site.Key] {
			return types.NewError(types.KindConfig, "duplicate site key %q", site.Key)
		}
		seenSites[site.Key] = true
		if site.API == "" {
			return types.NewError(types.KindConfig, "site %s has empty api url", site.Key)
		}
	}

	seenParsers := map[string]bool{}
	for _, p := range d.Parsers {
		if p.Name == "" {
			continue
		}
		if seenParsers[p.Name] {
			return types.NewError(types.KindConfig, "duplicate parser name %q", p.Name)
		}
		seenParsers[p.Name] = true
		if p.URL != "" {
			if _, err := url.Parse(p.URL); err != nil {
				return types.NewError(types.KindConfig, "parser %s has malformed url", p.Name)
			}
		}
	}
	return nil
}
