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
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

const (
	// MaxBodyBytes caps any fetched response body.
	MaxBodyBytes = 16 << 20
	// MaxRedirects is the hop limit before a fetch is abandoned.
	MaxRedirects = 10

	defaultTimeout   = 15 * time.Second
	defaultPoolSize  = 8
	retryBackoffBase = 300 * time.Millisecond
)

// Options tune a single fetch.
type Options struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is the outcome of a successful fetch.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Fetcher is the process-wide HTTP client wrapper. Per-site headers are
// merged over its defaults on every call; the cookie jar is shared.
type Fetcher struct {
	client   *http.Client
	defaults map[string]string
	sem      *semaphore.Weighted
}

// Config controls construction of a Fetcher.
type Config struct {
	DoHEndpoint string
	ProxyURL    string
	Defaults    map[string]string
	PoolSize    int
}

// New builds a Fetcher honoring a DoH endpoint and an outbound proxy if
// configured. An empty Config yields a plain client with sane defaults.
func New(cfg Config) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			utils.InfoLog("Fetcher using outbound proxy: %s", utils.MaskURL(cfg.ProxyURL))
		} else {
			utils.WarnLog("Ignoring malformed proxy URL: %v", err)
		}
	} else if p := os.Getenv("VODBRIDGE_PROXY"); p != "" {
		if proxyURL, err := url.Parse(p); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if cfg.DoHEndpoint != "" {
		resolver := NewDoHResolver(cfg.DoHEndpoint)
		transport.DialContext = resolver.DialContext(dialer)
		utils.InfoLog("Fetcher resolving DNS over HTTPS via %s", cfg.DoHEndpoint)
	}

	jar, _ := cookiejar.New(nil)

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	defaults := map[string]string{
		"User-Agent":      utils.GetDefaultUserAgent(),
		"Accept":          "*/*",
		"Accept-Language": utils.GetLanguageHeader(),
	}
	for k, v := range cfg.Defaults {
		defaults[k] = v
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return types.NewError(types.KindNetwork, "stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		},
		defaults: defaults,
		sem:      semaphore.NewWeighted(int64(poolSize)),
	}
}

// Do performs one HTTP exchange. GETs that fail with a transport error are
// retried once with backoff; timeouts are not retried.
func (f *Fetcher) Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, types.WrapError(types.KindCancelled, err, "fetch pool")
	}
	defer f.sem.Release(1)

	resp, err := f.doOnce(ctx, method, rawURL, opts, timeout)
	if err != nil && method == http.MethodGet && types.IsKind(err, types.KindNetwork) {
		utils.DebugLog("Retrying GET after transport error: %s", utils.MaskURL(rawURL))
		select {
		case <-time.After(retryBackoffBase):
		case <-ctx.Done():
			return nil, types.WrapError(types.KindCancelled, ctx.Err(), "fetch retry")
		}
		resp, err = f.doOnce(ctx, method, rawURL, opts, timeout)
	}
	return resp, err
}

func (f *Fetcher) doOnce(ctx context.Context, method, rawURL string, opts Options, timeout time.Duration) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, types.WrapError(types.KindNetwork, err, "build request")
	}

	for k, v := range f.defaults {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(reqCtx, ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, classifyTransportErr(reqCtx, ctx, err)
	}
	if len(data) > MaxBodyBytes {
		return nil, types.NewError(types.KindNetwork, "response exceeds %d bytes", MaxBodyBytes)
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// classifyTransportErr keeps the error taxonomy tight: a request deadline is
// a TimeoutError, a caller cancellation is a CancelledError, everything else
// on the wire is a NetworkError.
func classifyTransportErr(reqCtx, parentCtx context.Context, err error) error {
	if parentCtx.Err() != nil {
		return types.WrapError(types.KindCancelled, parentCtx.Err(), "fetch cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
		return types.WrapError(types.KindTimeout, err, "fetch deadline")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.WrapError(types.KindTimeout, err, "fetch deadline")
	}
	return types.WrapError(types.KindNetwork, err, "fetch")
}

// Bytes is the raw-body convenience variant of Do.
func (f *Fetcher) Bytes(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	resp, err := f.Do(ctx, rawURL, Options{Headers: headers})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 400 {
		return nil, types.NewError(types.KindNetwork, "upstream returned %d for %s", resp.Status, utils.MaskURL(rawURL))
	}
	return resp.Body, nil
}

// String fetches and decodes the body according to the Content-Type charset,
// falling back to UTF-8 when the charset is absent or unknown.
func (f *Fetcher) String(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	resp, err := f.Do(ctx, rawURL, Options{Headers: headers})
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status >= 400 {
		return "", types.NewError(types.KindNetwork, "upstream returned %d for %s", resp.Status, utils.MaskURL(rawURL))
	}
	return DecodeBody(resp.Body, resp.Headers.Get("Content-Type")), nil
}

// DecodeBody converts a payload to UTF-8 using the charset advertised in
// contentType. Decoding failures fall back to the raw bytes.
func DecodeBody(body []byte, contentType string) string {
	if contentType == "" || strings.Contains(strings.ToLower(contentType), "utf-8") {
		return string(body)
	}
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// PostForm issues an application/x-www-form-urlencoded POST.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*Response, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		h[k] = v
	}
	return f.Do(ctx, rawURL, Options{
		Method:  http.MethodPost,
		Headers: h,
		Body:    []byte(form.Encode()),
	})
}

// Stream opens a response without buffering the body; callers own Close.
// Used by the local proxy for media payloads that must not be slurped.
func (f *Fetcher) Stream(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, types.WrapError(types.KindNetwork, err, "build request")
	}
	for k, v := range f.defaults {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, ctx, err)
	}
	return resp, nil
}
