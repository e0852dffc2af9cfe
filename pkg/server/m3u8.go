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
	"bytes"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/grafov/m3u8"

	"github.com/vodbridge/vodbridge/pkg/types"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

const m3u8ContentType = "application/vnd.apple.mpegurl"

// m3u8Rewrite fetches an upstream playlist and rewrites it for loopback
// consumption: variant URIs route back through this handler, segment URIs
// are made absolute, and AES-128 key URIs are proxied so players that refuse
// cross-origin key fetches keep working.
func (c *Config) m3u8Rewrite(ctx *gin.Context) {
	target := ctx.Query("url")
	if target == "" {
		ctx.JSON(http.StatusBadRequest, types.ClientError{Error: "missing url parameter"})
		return
	}
	base, err := url.Parse(target)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, types.ClientError{Error: "malformed url parameter"})
		return
	}

	headers := map[string]string{}
	if h := ctx.Query("header"); h != "" {
		headers = utils.ParseHeaderSpec(h)
	}

	body, err := c.fetch.Bytes(ctx.Request.Context(), target, headers)
	if err != nil {
		utils.DebugLog("m3u8 upstream failed for %s: %v", utils.MaskURL(target), err)
		ctx.JSON(http.StatusBadGateway, types.ToClientError(err))
		return
	}

	playlist, listType, err := m3u8.Decode(*bytes.NewBuffer(body), true)
	if err != nil {
		ctx.JSON(http.StatusBadGateway, types.ToClientError(
			types.WrapError(types.KindParse, err, "decode m3u8")))
		return
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		for _, variant := range master.Variants {
			if variant == nil {
				break
			}
			variant.URI = c.mintM3U8(base, variant.URI)
		}
	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		if media.Key != nil && media.Key.URI != "" {
			media.Key.URI = c.mintKey(base, media.Key.URI)
		}
		for _, segment := range media.Segments {
			if segment == nil {
				break
			}
			segment.URI = absolutize(base, segment.URI)
			if segment.Key != nil && segment.Key.URI != "" {
				segment.Key.URI = c.mintKey(base, segment.Key.URI)
			}
		}
	}

	ctx.Data(http.StatusOK, m3u8ContentType, playlist.Encode().Bytes())
}

// mintM3U8 routes a variant playlist back through this handler.
func (c *Config) mintM3U8(base *url.URL, uri string) string {
	return MintURL(c.Port, "do=m3u8&url="+url.QueryEscape(absolutize(base, uri)))
}

// mintKey proxies an AES key URI through the media handler.
func (c *Config) mintKey(base *url.URL, uri string) string {
	return MintURL(c.Port, "do=media&url="+url.QueryEscape(absolutize(base, uri)))
}

// absolutize resolves uri against the playlist URL it came from.
func absolutize(base *url.URL, uri string) string {
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
