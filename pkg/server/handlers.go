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
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vodbridge/vodbridge/pkg/extractor"
	"github.com/vodbridge/vodbridge/pkg/types"
)

func writeError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch types.KindOf(err) {
	case types.KindConfig:
		status = http.StatusNotFound
	case types.KindNetwork, types.KindTimeout:
		status = http.StatusBadGateway
	case types.KindCancelled:
		status = 499 // client closed request
	}
	ctx.JSON(status, types.ToClientError(err))
}

func writeJSON(ctx *gin.Context, payload json.RawMessage) {
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// health reports the active epoch, per-site spider status and cache counters.
func (c *Config) health(ctx *gin.Context) {
	body := gin.H{
		"status": "ok",
		"cache":  c.engine.CacheStats(),
		"sites":  c.engine.Report(),
	}
	if snap := c.engine.Snapshot(); snap != nil {
		body["epoch"] = snap.Epoch
		if snap.Doc.Notice != "" {
			body["notice"] = snap.Doc.Notice
		}
		if snap.Doc.Wallpaper != "" {
			body["wallpaper"] = snap.Doc.Wallpaper
		}
	}
	ctx.JSON(http.StatusOK, body)
}

func (c *Config) home(ctx *gin.Context) {
	payload, err := c.engine.Home(ctx.Request.Context(), ctx.Query("site"), boolQuery(ctx, "filter"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, payload)
}

func (c *Config) category(ctx *gin.Context) {
	pg, _ := strconv.Atoi(ctx.DefaultQuery("pg", "1"))
	if pg < 1 {
		pg = 1
	}

	extend := map[string]string{}
	if f := ctx.Query("f"); f != "" {
		if err := json.Unmarshal([]byte(f), &extend); err != nil {
			writeError(ctx, types.NewError(types.KindParse, "malformed filter object"))
			return
		}
	}

	payload, err := c.engine.Category(ctx.Request.Context(),
		ctx.Query("site"), ctx.Query("t"), pg, boolQuery(ctx, "filter"), extend)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, payload)
}

func (c *Config) detail(ctx *gin.Context) {
	ids := strings.Split(ctx.Query("ids"), ",")
	kept := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			kept = append(kept, id)
		}
	}

	payload, err := c.engine.Detail(ctx.Request.Context(), ctx.Query("site"), kept)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, payload)
}

func (c *Config) search(ctx *gin.Context) {
	payload, err := c.engine.Search(ctx.Request.Context(), ctx.Query("wd"), boolQuery(ctx, "quick"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, payload)
}

func (c *Config) play(ctx *gin.Context) {
	var vipFlags []string
	if v := ctx.Query("vip"); v != "" {
		vipFlags = strings.Split(v, ",")
	}

	payload, err := c.engine.Play(ctx.Request.Context(),
		ctx.Query("site"), ctx.Query("flag"), ctx.Query("id"), vipFlags)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, payload)
}

// parse runs the parser chain: jxs is an optional CSV of parser names, url
// the target. Non-resolution is a 404 with a JSON body.
func (c *Config) parse(ctx *gin.Context) {
	target := ctx.Query("url")
	if target == "" {
		writeError(ctx, types.NewError(types.KindParse, "missing url parameter"))
		return
	}

	var names []string
	if jxs := ctx.Query("jxs"); jxs != "" {
		names = strings.Split(jxs, ",")
	}

	chain := c.engine.ParserChain()
	candidates := chain.Named(names)
	if len(names) > 0 && len(candidates) == 0 {
		// Every requested name is unknown; nothing to iterate.
		ctx.JSON(http.StatusNotFound, types.ToClientError(extractor.ErrUnresolved))
		return
	}
	result, err := chain.Resolve(ctx.Request.Context(), candidates, target)
	if err != nil {
		ctx.JSON(http.StatusNotFound, types.ToClientError(err))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// reload re-resolves the config document and installs a new epoch.
func (c *Config) reload(ctx *gin.Context) {
	if err := c.engine.Reload(ctx.Request.Context()); err != nil {
		writeError(ctx, err)
		return
	}
	snap := c.engine.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "epoch": snap.Epoch})
}

func boolQuery(ctx *gin.Context, name string) bool {
	v := ctx.Query(name)
	return v == "1" || strings.EqualFold(v, "true")
}
