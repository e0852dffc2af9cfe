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

package hooks

import (
	"net/url"
	"strings"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Request is the mutable view a hook gets of an outgoing fetch.
type Request struct {
	URL     string
	Headers map[string]string
}

// Response is the mutable view a hook gets of an upstream answer.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Hook intercepts requests and responses. OnRequest may return a non-nil
// Response to short-circuit the fetch, or an error to cancel the chain.
type Hook interface {
	Name() string
	OnRequest(req *Request) (*Response, error)
	OnResponse(resp *Response) error
}

// Chain applies hooks in registration order. Registration happens at config
// load; the chain is immutable afterwards, so application is lock-free.
type Chain struct {
	hooks []Hook
}

// NewChain builds a chain over the given hooks, kept in order.
func NewChain(hooks ...Hook) *Chain {
	return &Chain{hooks: hooks}
}

// ApplyRequest runs every hook's OnRequest. The first short-circuit response
// or error stops the chain.
func (c *Chain) ApplyRequest(req *Request) (*Response, error) {
	for _, h := range c.hooks {
		resp, err := h.OnRequest(req)
		if err != nil {
			utils.DebugLog("Hook %s cancelled request for %s: %v", h.Name(), utils.MaskURL(req.URL), err)
			return nil, err
		}
		if resp != nil {
			utils.DebugLog("Hook %s short-circuited request for %s", h.Name(), utils.MaskURL(req.URL))
			return resp, nil
		}
	}
	return nil, nil
}

// ApplyResponse runs every hook's OnResponse in order.
func (c *Chain) ApplyResponse(resp *Response) error {
	for _, h := range c.hooks {
		if err := h.OnResponse(resp); err != nil {
			return err
		}
	}
	return nil
}

// HostRewriteHook maps request hosts to alternates.
type HostRewriteHook struct {
	Rewrites map[string]string
}

func (h *HostRewriteHook) Name() string { return "host-rewrite" }

func (h *HostRewriteHook) OnRequest(req *Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil
	}
	if alt, ok := h.Rewrites[u.Host]; ok {
		u.Host = alt
		req.URL = u.String()
	}
	return nil, nil
}

func (h *HostRewriteHook) OnResponse(*Response) error { return nil }

// ParseHostRewrites turns config "hosts" entries of the form "from=to" into
// the rewrite map. Malformed entries are skipped.
func ParseHostRewrites(entries []string) map[string]string {
	rewrites := map[string]string{}
	for _, entry := range entries {
		from, to, ok := strings.Cut(entry, "=")
		from = strings.TrimSpace(from)
		to = strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			continue
		}
		rewrites[from] = to
	}
	if len(rewrites) == 0 {
		return nil
	}
	return rewrites
}

// AdBlockHook drops traffic to hosts matching the configured ad patterns.
// Patterns may carry a leading "*." wildcard.
type AdBlockHook struct {
	Patterns []string
}

func (h *AdBlockHook) Name() string { return "ad-block" }

func (h *AdBlockHook) OnRequest(req *Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil
	}
	if MatchHost(u.Hostname(), h.Patterns) {
		// Empty 204 short-circuit; players treat it as a skipped segment.
		return &Response{Status: 204, Headers: map[string]string{}}, nil
	}
	return nil, nil
}

func (h *AdBlockHook) OnResponse(*Response) error { return nil }

// MatchHost reports whether host matches any pattern. A "*." prefix matches
// the bare domain and any subdomain.
func MatchHost(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "*.") {
			base := p[2:]
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
			continue
		}
		if host == p || strings.Contains(host, p) {
			return true
		}
	}
	return false
}

// CookieInjectHook adds cookies for matching hosts.
type CookieInjectHook struct {
	// Cookies maps a host to the Cookie header value to inject.
	Cookies map[string]string
}

func (h *CookieInjectHook) Name() string { return "cookie-inject" }

func (h *CookieInjectHook) OnRequest(req *Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil
	}
	if cookie, ok := h.Cookies[u.Host]; ok {
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		if existing := req.Headers["Cookie"]; existing != "" {
			req.Headers["Cookie"] = existing + "; " + cookie
		} else {
			req.Headers["Cookie"] = cookie
		}
	}
	return nil, nil
}

func (h *CookieInjectHook) OnResponse(*Response) error { return nil }

// ParseCookieSpecs turns config "cookies" entries of the form
// "host=cookie-value" into the injection map. Only the first "=" separates
// host from value, so cookie pairs keep their own equals signs. Malformed
// entries are skipped.
func ParseCookieSpecs(entries []string) map[string]string {
	cookies := map[string]string{}
	for _, entry := range entries {
		host, value, ok := strings.Cut(entry, "=")
		host = strings.TrimSpace(host)
		value = strings.TrimSpace(value)
		if !ok || host == "" || value == "" {
			continue
		}
		cookies[host] = value
	}
	if len(cookies) == 0 {
		return nil
	}
	return cookies
}

// CancelHook terminates the chain unconditionally. Used when a config marks
// a source as blocked.
type CancelHook struct {
	Reason string
}

func (h *CancelHook) Name() string { return "cancel" }

func (h *CancelHook) OnRequest(*Request) (*Response, error) {
	return nil, types.NewError(types.KindCancelled, "request cancelled by hook: %s", h.Reason)
}

func (h *CancelHook) OnResponse(*Response) error {
	return types.NewError(types.KindCancelled, "response cancelled by hook: %s", h.Reason)
}
