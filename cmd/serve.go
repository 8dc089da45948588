/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mapcloud/tileserver/common"
	"github.com/mapcloud/tileserver/config"
	"github.com/mapcloud/tileserver/httpd"
	"github.com/mapcloud/tileserver/render"
	"github.com/mapcloud/tileserver/sources"
	"github.com/mapcloud/tileserver/styles"
)

// Exit codes, in the BSD sysexits.h tradition.
const (
	exitOK          = 0
	exitConfig      = 2
	exitUsage       = 64
	exitSourceOpen  = 74
	exitFatalRuntime = 70
)

func fatalExit(code int, context string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", context, err)
	os.Exit(code)
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tile server",
	Long:  `Loads configured sources and styles and serves tiles, static images, and metadata over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			fatalExit(exitConfig, "loading configuration", err)
		}

		src, err := sources.Load(cfg.Sources)
		if err != nil {
			fatalExit(exitSourceOpen, "opening sources", err)
		}
		defer src.Close()

		sty, err := styles.Load(cfg.Styles, src)
		if err != nil {
			fatalExit(exitConfig, "loading styles", err)
		}

		pool := render.NewPool(cfg.Render, sty)
		defer pool.Close()

		server := httpd.New(cfg, src, sty, pool)

		runErr := make(chan error, 1)
		go func() { runErr <- server.Run() }()

		select {
		case err := <-runErr:
			if err != nil {
				fatalExit(exitFatalRuntime, "running server", err)
			}
		case <-common.Interrupted():
			slog.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				slog.Error("shutdown", "error", err)
				os.Exit(exitFatalRuntime)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
