/*
Copyright © 2025 Your Name

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
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"starlinks/internal/config"
	"starlinks/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "starlinks",
		Short: "Starlinks builds the daily celebrity relationship puzzle.",
		Long: `Starlinks generates celebrities and their documented relationships with
a text generation model, stores them, renders portraits and assembles one
puzzle per calendar date.

Examples:
  starlinks migrate up
  starlinks settings seed
  starlinks puzzle generate --date 2025-06-01
  starlinks portraits generate --missing`,
		SilenceUsage: true,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.starlinks.yaml)")

	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSettingsCmd())
	rootCmd.AddCommand(NewCelebritiesCmd())
	rootCmd.AddCommand(NewRelationshipsCmd())
	rootCmd.AddCommand(NewPuzzleCmd())
	rootCmd.AddCommand(NewPortraitsCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", cfg.App.ConfigFile)
	}
}
