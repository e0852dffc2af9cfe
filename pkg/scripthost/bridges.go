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

package scripthost

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Bridges holds the native capabilities injected into every script runtime
// before user code runs. The bridge API is a stable contract: req, pdfh,
// pdfa, joinUrl, b64encode, b64decode, sleep, matchAll, proxyUrl, __log.
type Bridges struct {
	Fetch *fetcher.Fetcher
	// MintProxyURL turns a remote URL into a local proxy URL; wired by the
	// local proxy at startup. May be nil in tests.
	MintProxyURL func(remote string) string
	// Ctx bounds every bridge call issued by the current script call.
	Ctx context.Context
}

type reqResult struct {
	Code    int               `json:"code"`
	Content string            `json:"content"`
	Headers map[string]string `json:"headers"`
}

func (b *Bridges) ctx() context.Context {
	if b.Ctx != nil {
		return b.Ctx
	}
	return context.Background()
}

// install registers the bridge functions as runtime globals.
func (b *Bridges) install(vm *goja.Runtime) error {
	if err := vm.Set("req", b.req); err != nil {
		return err
	}
	if err := vm.Set("pdfh", b.pdfh); err != nil {
		return err
	}
	if err := vm.Set("pdfa", b.pdfa); err != nil {
		return err
	}
	if err := vm.Set("joinUrl", utils.JoinURL); err != nil {
		return err
	}
	if err := vm.Set("b64encode", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}); err != nil {
		return err
	}
	if err := vm.Set("b64decode", func(s string) string {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return ""
		}
		return string(decoded)
	}); err != nil {
		return err
	}
	if err := vm.Set("sleep", func(ms int) {
		if ms <= 0 {
			return
		}
		if ms > 5000 {
			ms = 5000
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-b.ctx().Done():
		}
	}); err != nil {
		return err
	}
	if err := vm.Set("matchAll", b.matchAll); err != nil {
		return err
	}
	if err := vm.Set("proxyUrl", func(remote string) string {
		if b.MintProxyURL == nil {
			return remote
		}
		return b.MintProxyURL(remote)
	}); err != nil {
		return err
	}
	return vm.Set("__log", func(msg string) {
		utils.DebugLog("script: %s", msg)
	})
}

// req performs an HTTP request on behalf of the script. opts may carry
// method, headers (object) and data (string body).
func (b *Bridges) req(rawURL string, opts map[string]interface{}) reqResult {
	fetchOpts := fetcher.Options{}
	if opts != nil {
		if m, ok := opts["method"].(string); ok {
			fetchOpts.Method = strings.ToUpper(m)
		}
		if data, ok := opts["data"].(string); ok {
			fetchOpts.Body = []byte(data)
		}
		if hdrs, ok := opts["headers"].(map[string]interface{}); ok {
			fetchOpts.Headers = map[string]string{}
			for k, v := range hdrs {
				if s, ok := v.(string); ok {
					fetchOpts.Headers[k] = s
				}
			}
		}
	}

	resp, err := b.Fetch.Do(b.ctx(), rawURL, fetchOpts)
	if err != nil {
		utils.DebugLog("script req failed for %s: %v", utils.MaskURL(rawURL), err)
		return reqResult{Code: 0, Content: "", Headers: map[string]string{}}
	}

	headers := map[string]string{}
	for k := range resp.Headers {
		headers[strings.ToLower(k)] = resp.Headers.Get(k)
	}
	return reqResult{
		Code:    resp.Status,
		Content: fetcher.DecodeBody(resp.Body, resp.Headers.Get("Content-Type")),
		Headers: headers,
	}
}

// pdfh evaluates an XPath rule against html and returns the first hit.
// Rules may end in "&&Text", "&&Html" or "&&<attr>" to select the output.
func (b *Bridges) pdfh(html, rule string) string {
	results := evalSelector(html, rule, true)
	if len(results) == 0 {
		return ""
	}
	return results[0]
}

// pdfa is the array variant of pdfh.
func (b *Bridges) pdfa(html, rule string) []string {
	return evalSelector(html, rule, false)
}

func evalSelector(html, rule string, single bool) []string {
	xpathExpr := rule
	output := "Text"
	if idx := strings.LastIndex(rule, "&&"); idx >= 0 {
		xpathExpr = rule[:idx]
		output = rule[idx+2:]
	}

	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, xpathExpr)
	if err != nil {
		utils.DebugLog("bad selector rule %q: %v", rule, err)
		return nil
	}

	var out []string
	for _, node := range nodes {
		switch output {
		case "Text":
			out = append(out, strings.TrimSpace(htmlquery.InnerText(node)))
		case "Html":
			out = append(out, htmlquery.OutputHTML(node, true))
		default:
			out = append(out, htmlquery.SelectAttr(node, output))
		}
		if single && len(out) > 0 {
			break
		}
	}
	return out
}

func (b *Bridges) matchAll(pattern, text string) []string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	matches := re.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}
