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

package utils

import (
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// GetDefaultUserAgent returns the user agent used for upstream site requests.
// Can be overridden with the VODBRIDGE_USER_AGENT environment variable.
func GetDefaultUserAgent() string {
	if ua := os.Getenv("VODBRIDGE_USER_AGENT"); ua != "" {
		return ua
	}
	return "Mozilla/5.0 (Linux; Android 11) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/106.0.0.0 Safari/537.36"
}

// GetLanguageHeader returns the Accept-Language value for upstream requests.
func GetLanguageHeader() string {
	if lang := os.Getenv("VODBRIDGE_ACCEPT_LANGUAGE"); lang != "" {
		return lang
	}
	return "zh-CN,zh;q=0.9,en;q=0.8"
}

// MaskURL masks credentials and tokens in URLs for logging.
func MaskURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	q := u.Query()
	for _, key := range []string{"token", "password", "passwd", "key", "sign"} {
		if q.Get(key) != "" {
			q.Set(key, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseHeaderSpec parses the loose header formats found in site configs:
// either "k: v; k2: v2" or newline separated "k: v" pairs. Keys and values
// are trimmed; empty fragments are skipped.
func ParseHeaderSpec(spec string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(spec) == "" {
		return out
	}
	sep := ";"
	if strings.Contains(spec, "\n") {
		sep = "\n"
	}
	for _, pair := range strings.Split(spec, sep) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(pair[:idx])
		v := strings.TrimSpace(pair[idx+1:])
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

type values []string

func (vs values) contains(s string) bool {
	for _, v := range vs {
		if v == s {
			return true
		}
	}
	return false
}

// MergeHTTPHeader copies headers from src to dst without duplicating identical values.
func MergeHTTPHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			if values(dst.Values(k)).contains(v) {
				continue
			}
			dst.Add(k, v)
		}
	}
}

// IsMediaPath reports whether the given URL path points at a directly
// playable media resource based on its file extension.
func IsMediaPath(p string) bool {
	switch strings.ToLower(path.Ext(strings.ToLower(p))) {
	case ".m3u8", ".mp4", ".mkv", ".ts", ".flv", ".avi", ".mp3", ".aac", ".mov", ".webm", ".m4v":
		return true
	default:
		return false
	}
}

// ContentTypeForPath maps a file extension to an appropriate Content-Type
// value for streaming responses.
func ContentTypeForPath(p string) string {
	switch strings.ToLower(path.Ext(strings.ToLower(p))) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// JoinURL resolves ref against base the way a browser would.
func JoinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
