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

package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/buger/jsonparser"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// DoHResolver answers A-record lookups through a dns-json endpoint
// (e.g. https://doh.pub/dns-query or https://1.1.1.1/dns-query).
// Resolved addresses are cached for their advertised TTL.
type DoHResolver struct {
	endpoint string
	client   *http.Client

	mu    sync.Mutex
	cache map[string]dohEntry
}

type dohEntry struct {
	addrs   []string
	expires time.Time
}

// NewDoHResolver builds a resolver against the given DoH endpoint.
func NewDoHResolver(endpoint string) *DoHResolver {
	return &DoHResolver{
		endpoint: endpoint,
		// The resolver's own client dials normally; DoH endpoints are
		// addressed by IP or by names the system resolver can handle.
		client: &http.Client{Timeout: 5 * time.Second},
		cache:  map[string]dohEntry{},
	}
}

// DialContext wraps a dialer so that hostnames resolve through DoH.
// IP literals pass straight through.
func (r *DoHResolver) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, addr)
		}

		addrs, err := r.Lookup(ctx, host)
		if err != nil || len(addrs) == 0 {
			utils.DebugLog("DoH lookup failed for %s, falling back to system resolver: %v", host, err)
			return dialer.DialContext(ctx, network, addr)
		}

		var lastErr error
		for _, ip := range addrs {
			conn, dErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if dErr == nil {
				return conn, nil
			}
			lastErr = dErr
		}
		return nil, lastErr
	}
}

// Lookup resolves host to its A records, serving from cache when fresh.
func (r *DoHResolver) Lookup(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	if entry, ok := r.cache[host]; ok && time.Now().Before(entry.expires) {
		addrs := entry.addrs
		r.mu.Unlock()
		return addrs, nil
	}
	r.mu.Unlock()

	query := fmt.Sprintf("%s?name=%s&type=A", r.endpoint, url.QueryEscape(host))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, types.WrapError(types.KindNetwork, err, "doh request")
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, types.WrapError(types.KindNetwork, err, "doh query")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.WrapError(types.KindNetwork, err, "doh body")
	}

	addrs, minTTL := parseDNSJSON(body)
	if len(addrs) == 0 {
		return nil, types.NewError(types.KindNetwork, "doh returned no A records for %s", host)
	}

	r.mu.Lock()
	r.cache[host] = dohEntry{addrs: addrs, expires: time.Now().Add(minTTL)}
	r.mu.Unlock()

	return addrs, nil
}

// parseDNSJSON pulls A answers out of a dns-json payload. Only type 1
// answers count; CNAME chains are skipped. TTL floor is 30 seconds.
func parseDNSJSON(body []byte) ([]string, time.Duration) {
	var addrs []string
	minTTL := 5 * time.Minute

	jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		recType, _ := jsonparser.GetInt(value, "type")
		if recType != 1 {
			return
		}
		data, err := jsonparser.GetString(value, "data")
		if err != nil || net.ParseIP(data) == nil {
			return
		}
		addrs = append(addrs, data)
		if ttl, err := jsonparser.GetInt(value, "TTL"); err == nil {
			d := time.Duration(ttl) * time.Second
			if d < minTTL {
				minTTL = d
			}
		}
	}, "Answer")

	if minTTL < 30*time.Second {
		minTTL = 30 * time.Second
	}
	return addrs, minTTL
}
