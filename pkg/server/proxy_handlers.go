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

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// proxy dispatches /proxy?do=<op> to the registered handler.
func (c *Config) proxy(ctx *gin.Context) {
	do := ctx.Query("do")
	handler, ok := c.proxyHandlers[do]
	if !ok {
		ctx.JSON(http.StatusNotFound, types.ClientError{Error: "unknown proxy op " + do})
		return
	}
	handler(ctx)
}

// proxyCK is the connectivity check: echoes the query back.
func (c *Config) proxyCK(ctx *gin.Context) {
	params := map[string]string{}
	for key, values := range ctx.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	ctx.JSON(http.StatusOK, params)
}

// proxyEngineMissing answers for peer-engine URLs when no engine handler has
// been registered.
func (c *Config) proxyEngineMissing(do string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusBadGateway, types.ClientError{
			Error: string(types.KindExtractor) + ": no " + do + " engine attached",
		})
	}
}

// proxyMedia streams an upstream resource through the local origin. Used for
// AES key URIs rewritten by the m3u8 handler and for scripts that need a
// loopback origin. The body is streamed, never buffered.
func (c *Config) proxyMedia(ctx *gin.Context) {
	target := ctx.Query("url")
	if target == "" {
		ctx.JSON(http.StatusBadRequest, types.ClientError{Error: "missing url parameter"})
		return
	}

	headers := map[string]string{}
	if h := ctx.Query("header"); h != "" {
		if err := json.Unmarshal([]byte(h), &headers); err != nil {
			headers = utils.ParseHeaderSpec(h)
		}
	}
	// Forward the Range header so seeking works through the proxy.
	if r := ctx.GetHeader("Range"); r != "" {
		headers["Range"] = r
	}

	resp, err := c.fetch.Stream(ctx.Request.Context(), target, headers)
	if err != nil {
		utils.DebugLog("proxy media upstream failed for %s: %v", utils.MaskURL(target), err)
		ctx.JSON(http.StatusBadGateway, types.ToClientError(err))
		return
	}
	defer resp.Body.Close()

	utils.MergeHTTPHeader(ctx.Writer.Header(), resp.Header)
	if resp.Header.Get("Content-Type") == "" {
		ctx.Header("Content-Type", utils.ContentTypeForPath(target))
	}
	ctx.Status(resp.StatusCode)

	w := ctx.Writer
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Request.Context().Done():
			utils.DebugLog("Client cancelled stream for %s", utils.MaskURL(target))
			return
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				utils.DebugLog("Client write error: %v", werr)
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				utils.DebugLog("Upstream read error: %v", rerr)
			}
			return
		}
	}
}
