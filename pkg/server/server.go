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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/orchestrator"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// DefaultPort is the loopback port clients expect the local API on.
const DefaultPort = 9978

const idleTimeout = 30 * time.Second

// Config represents the server configuration.
type Config struct {
	Port   int
	engine *orchestrator.Orchestrator
	fetch  *fetcher.Fetcher

	proxyHandlers map[string]gin.HandlerFunc
}

// NewServer initializes the local proxy over an orchestrator.
func NewServer(port int, engine *orchestrator.Orchestrator, fetch *fetcher.Fetcher) *Config {
	if port <= 0 {
		port = DefaultPort
	}
	c := &Config{
		Port:          port,
		engine:        engine,
		fetch:         fetch,
		proxyHandlers: map[string]gin.HandlerFunc{},
	}

	c.RegisterProxyHandler("ck", c.proxyCK)
	c.RegisterProxyHandler("media", c.proxyMedia)
	c.RegisterProxyHandler("m3u8", c.m3u8Rewrite)
	// Peer engines run out of process; until one attaches, their published
	// URLs answer with an explicit upstream error.
	for _, do := range []string{"torrent", "jianpian", "mitv", "tvbus"} {
		c.RegisterProxyHandler(do, c.proxyEngineMissing(do))
	}
	return c
}

// MintURL builds the local proxy URL for a /proxy query string.
func MintURL(port int, query string) string {
	if port <= 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/proxy?%s", port, query)
}

// RegisterProxyHandler binds a handler to a /proxy?do=<name> operation.
// Later registrations replace earlier ones.
func (c *Config) RegisterProxyHandler(do string, handler gin.HandlerFunc) {
	c.proxyHandlers[do] = handler
}

// Router assembles the gin engine with all routes.
func (c *Config) Router() *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	router.GET("/", c.health)
	router.GET("/home", c.home)
	router.GET("/category", c.category)
	router.GET("/detail", c.detail)
	router.GET("/search", c.search)
	router.GET("/play", c.play)
	router.GET("/proxy", c.proxy)
	router.GET("/parse", c.parse)
	router.GET("/m3u8", c.m3u8Rewrite)
	router.POST("/reload", c.reload)

	return router
}

// Serve runs the local proxy until the listener fails.
func (c *Config) Serve() error {
	utils.InfoLog("[vodbridge] Server is starting...")

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", c.Port),
		Handler:     c.Router(),
		IdleTimeout: idleTimeout,
	}

	utils.InfoLog("[vodbridge] Server is ready and listening on :%d", c.Port)
	return srv.ListenAndServe()
}
