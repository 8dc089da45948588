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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapcloud/tileserver/config"
)

// rootCmd is the base command; every subcommand is registered onto
// it from that subcommand's own init().
var rootCmd = &cobra.Command{
	Use:   "tileserver",
	Short: "Serve vector and raster map tiles",
	Long:  `Serves vector/raster tiles, rendered static images, and TileJSON/WMTS metadata.`,
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command, the single entrypoint main calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

// setDefaultSlog installs a text slog.Logger at the verbosity
// requested on the command line and sets it as the package default,
// the same bootstrap every subcommand runs before doing any work.
func setDefaultSlog(cmd *cobra.Command, _ []string) {
	level := slog.LevelInfo
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
