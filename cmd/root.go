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

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vodbridge/vodbridge/pkg/cache"
	"github.com/vodbridge/vodbridge/pkg/config"
	"github.com/vodbridge/vodbridge/pkg/fetcher"
	"github.com/vodbridge/vodbridge/pkg/orchestrator"
	"github.com/vodbridge/vodbridge/pkg/server"
	"github.com/vodbridge/vodbridge/pkg/utils"
)

// Exit codes: 0 clean, 1 fatal config error, 2 port bind failure.
const (
	exitConfigError = 1
	exitBindError   = 2
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vodbridge",
	Short: "Local aggregation proxy for heterogeneous VOD sources",
	Long: `vodbridge queries many third-party video sites in parallel, normalizes
their responses into one schema, and serves unified listings, search and
playable stream URLs over a local HTTP API.

It supports:
- CMS JSON, XPath, script-driven and alist site adapters
- Concurrent multi-site search with streaming partial results
- A two-tier response cache with single-flight loads
- A local proxy for m3u8 rewriting and play-URL parsing`,

	Run: func(cmd *cobra.Command, args []string) {
		utils.SetLogLevel(viper.GetString("log-level"))

		cacheDir := viper.GetString("cache-dir")
		if cacheDir == "" {
			home, err := homedir.Dir()
			if err != nil {
				fmt.Println(err)
				os.Exit(exitConfigError)
			}
			cacheDir = filepath.Join(home, ".vodbridge", "cache")
		}

		fetch := fetcher.New(fetcher.Config{
			DoHEndpoint: viper.GetString("doh"),
			ProxyURL:    viper.GetString("outbound-proxy"),
		})

		store := cache.New(cacheDir, viper.GetInt("cache-entries"))
		defer store.Close()
		store.StartJanitor(context.Background())

		resolver := config.NewResolver(fetch, config.Options{
			UserURL:      viper.GetString("config"),
			IndexURL:     viper.GetString("config-index"),
			SnapshotPath: filepath.Join(cacheDir, "config.json"),
		})

		port := viper.GetInt("port")
		mint := func(query string) string { return server.MintURL(port, query) }
		push := func(target string) {
			utils.InfoLog("Push target received: %s", utils.MaskURL(target))
		}

		engine := orchestrator.New(fetch, store, resolver, mint, push)
		defer engine.Shutdown()

		if err := engine.Start(context.Background()); err != nil {
			// A user-specified config that cannot be installed is fatal;
			// without one the bundled default keeps the server usable.
			if viper.GetString("config") != "" {
				utils.ErrorLog("Config %s unusable: %v", utils.MaskURL(viper.GetString("config")), utils.ErrorWithLocation(err))
				os.Exit(exitConfigError)
			}
			utils.WarnLog("Starting on fallback config: %v", err)
		}

		srv := server.NewServer(port, engine, fetch)
		if err := srv.Serve(); err != nil {
			utils.ErrorLog("Server failed: %v", err)
			os.Exit(exitBindError)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		utils.PrintErrorAndReturn(err)
		os.Exit(exitConfigError)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Config file (default is $HOME/.vodbridge.yaml)")

	rootCmd.Flags().StringP("config", "c", "", "Source-list config document URL or path")
	rootCmd.Flags().String("config-index", "", "Remote index URL resolving to a config document")
	rootCmd.Flags().Int("port", server.DefaultPort, "Listening port")
	rootCmd.Flags().String("cache-dir", "", "Cache directory (default is $HOME/.vodbridge/cache)")
	rootCmd.Flags().Int("cache-entries", 0, "In-memory cache entry bound (0 selects the default)")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.Flags().String("doh", "", "DNS-over-HTTPS endpoint for upstream resolution")
	rootCmd.Flags().String("outbound-proxy", "", "Outbound HTTP proxy URL for upstream fetches")

	// Bind all flags to viper
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		fmt.Println("Error binding PFlags to viper")
		os.Exit(exitConfigError)
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(exitConfigError)
		}

		// Search config in home directory and current directory
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".vodbridge")
	}

	// Replace hyphens with underscores in environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Read environment variables
	viper.AutomaticEnv()

	// Read in config file if found
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
