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
	"sync"

	"github.com/vodbridge/vodbridge/pkg/scripthost"
	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Variant names the adapter strategy chosen for a site.
type Variant string

const (
	VariantCMS    Variant = "cms"
	VariantXPath  Variant = "xpath"
	VariantJS     Variant = "js"
	VariantPython Variant = "python"
	VariantAlist  Variant = "alist"
	VariantNull   Variant = "null"
)

// Status describes one managed site for the health report.
type Status struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Variant  Variant `json:"variant"`
	Degraded bool    `json:"degraded"`
	Reason   string  `json:"reason,omitempty"`
}

// Manager owns the spider instances of one config epoch. Sites whose spider
// cannot be built are kept as null spiders and flagged in the report, so a
// single bad entry never takes the aggregate down.
type Manager struct {
	env          *Env
	mintProxyURL func(string) string

	mu       sync.RWMutex
	spiders  map[string]Spider
	sites    map[string]types.Site
	order    []string
	statuses map[string]*Status
}

func NewManager(env *Env, mintProxyURL func(string) string) *Manager {
	return &Manager{
		env:          env,
		mintProxyURL: mintProxyURL,
		spiders:      map[string]Spider{},
		sites:        map[string]types.Site{},
		statuses:     map[string]*Status{},
	}
}

// Load builds a spider per site, replacing whatever the manager held before.
// The previous epoch's spiders are destroyed after the swap so in-flight
// callers of the old set finish against live instances.
func (m *Manager) Load(ctx context.Context, sites []types.Site) {
	spiders := make(map[string]Spider, len(sites))
	siteMap := make(map[string]types.Site, len(sites))
	order := make([]string, 0, len(sites))
	statuses := make(map[string]*Status, len(sites))

	for _, site := range sites {
		if site.Key == "" {
			continue
		}
		if _, dup := spiders[site.Key]; dup {
			utils.WarnLog("Duplicate site key %s ignored", site.Key)
			continue
		}

		variant := InferVariant(site)
		sp, err := m.build(ctx, site, variant)
		status := &Status{Key: site.Key, Name: site.Name, Variant: variant}
		switch {
		case err != nil:
			utils.WarnLog("Site %s (%s) degraded to null spider: %v", site.Key, variant, err)
			sp = nullSpider{}
			status.Variant = VariantNull
			status.Degraded = true
			status.Reason = err.Error()
		case site.Jar != "" || strings.HasPrefix(site.API, "csp_"):
			status.Reason = "jar plugin not hosted, served by the cms adapter"
		}

		spiders[site.Key] = sp
		siteMap[site.Key] = site
		order = append(order, site.Key)
		statuses[site.Key] = status
	}

	m.mu.Lock()
	old := m.spiders
	m.spiders = spiders
	m.sites = siteMap
	m.order = order
	m.statuses = statuses
	m.mu.Unlock()

	for _, sp := range old {
		sp.Destroy()
	}
}

func (m *Manager) build(ctx context.Context, site types.Site, variant Variant) (Spider, error) {
	var sp Spider
	switch variant {
	case VariantCMS:
		sp = newCMSSpider(m.env)
	case VariantXPath:
		sp = newXPathSpider(m.env)
	case VariantJS:
		sp = newSerialSpider(newScriptSpider(m.env, scripthost.KindJS, m.mintProxyURL))
	case VariantPython:
		sp = newSerialSpider(newScriptSpider(m.env, scripthost.KindPY, m.mintProxyURL))
	case VariantAlist:
		sp = newAlistSpider(m.env)
	default:
		sp = nullSpider{}
	}
	if err := sp.Init(ctx, site); err != nil {
		sp.Destroy()
		return nil, err
	}
	return sp, nil
}

// Get returns the spider for a site key.
func (m *Manager) Get(key string) (Spider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp, ok := m.spiders[key]
	return sp, ok
}

// Site returns the config record for a site key.
func (m *Manager) Site(key string) (types.Site, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[key]
	return site, ok
}

// Keys returns site keys in config order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Searchable returns, in config order, the keys of sites that take part in
// aggregate search.
func (m *Manager) Searchable() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.order))
	for _, key := range m.order {
		site := m.sites[key]
		if !site.Searchable {
			continue
		}
		if st := m.statuses[key]; st != nil && st.Degraded {
			continue
		}
		out = append(out, key)
	}
	return out
}

// Report snapshots per-site health in config order.
func (m *Manager) Report() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, *m.statuses[key])
	}
	return out
}

// DestroyAll tears down every spider. Used on shutdown; epoch swaps go
// through Load.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	old := m.spiders
	m.spiders = map[string]Spider{}
	m.sites = map[string]types.Site{}
	m.order = nil
	m.statuses = map[string]*Status{}
	m.mu.Unlock()

	for _, sp := range old {
		sp.Destroy()
	}
}

// InferVariant picks an adapter strategy from the site record. The type field
// wins when it is unambiguous; otherwise the api url and ext payload are
// inspected the way clients in the wild do.
func InferVariant(site types.Site) Variant {
	switch site.Type {
	case types.SiteTypeAlist:
		return VariantAlist
	case types.SiteTypeCMS:
		return VariantCMS
	}

	api := strings.ToLower(site.API)
	switch {
	case strings.HasSuffix(api, ".py") || strings.Contains(api, "pyramid"):
		return VariantPython
	case strings.HasSuffix(api, ".js") || strings.HasSuffix(api, ".min.js") ||
		strings.Contains(api, "drpy") || strings.Contains(api, "hipy"):
		return VariantJS
	}

	if isXPathExt(site.Ext) {
		return VariantXPath
	}

	// csp_ class names and jar references point at compiled plugins this
	// process cannot host; their sites almost always expose a CMS endpoint
	// too, so fall through to the JSON adapter.
	if strings.HasPrefix(site.API, "csp_") || site.Jar != "" {
		return VariantCMS
	}
	return VariantCMS
}

// isXPathExt reports whether ext is a JSON object carrying XPath selector
// rules rather than an opaque script argument.
func isXPathExt(ext string) bool {
	ext = strings.TrimSpace(ext)
	if !strings.HasPrefix(ext, "{") {
		return false
	}
	var probe struct {
		CateURL string `json:"cateUrl"`
		List    string `json:"list"`
	}
	if err := json.Unmarshal([]byte(ext), &probe); err != nil {
		return false
	}
	return probe.CateURL != "" && probe.List != ""
}

// serialSpider serializes operations on one spider. Script runtimes are
// single-threaded, so concurrent search fan-out must queue on them.
type serialSpider struct {
	mu    sync.Mutex
	inner Spider
}

func newSerialSpider(inner Spider) *serialSpider { return &serialSpider{inner: inner} }

func (s *serialSpider) Init(ctx context.Context, site types.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Init(ctx, site)
}

func (s *serialSpider) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Destroy()
}

func (s *serialSpider) HomeContent(ctx context.Context, filter bool) (*types.HomeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.HomeContent(ctx, filter)
}

func (s *serialSpider) CategoryContent(ctx context.Context, tid string, pg int, filter bool, extend map[string]string) (*types.CategoryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CategoryContent(ctx, tid, pg, filter, extend)
}

func (s *serialSpider) DetailContent(ctx context.Context, ids []string) (*types.DetailResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DetailContent(ctx, ids)
}

func (s *serialSpider) SearchContent(ctx context.Context, key string, quick bool) (*types.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SearchContent(ctx, key, quick)
}

func (s *serialSpider) PlayerContent(ctx context.Context, flag, id string, vipFlags []string) (*types.PlayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.PlayerContent(ctx, flag, id, vipFlags)
}
