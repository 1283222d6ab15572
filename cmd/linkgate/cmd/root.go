// Package cmd provides the CLI commands for linkgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khamel/linkgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "linkgate",
	Short: "linkgate - multi-tenant short-link gateway",
	Long: `linkgate resolves short paths into redirects, one namespace per tenant.

Each tenant owns a set of path-to-target mappings stored in a shared
key-value store and managed through an authenticated JSON API. Login is an
OAuth authorization-code exchange against a single identity provider;
automation uses a shared API secret instead.

Quick start:
  1. Create a config file: linkgate.yaml
  2. Run: linkgate serve

Configuration:
  Config is loaded from linkgate.yaml in the current directory,
  $HOME/.linkgate/, or /etc/linkgate/.

  Environment variables can override config values with the LINKGATE_ prefix.
  Example: LINKGATE_SERVER_ADDR=:9090

Commands:
  serve       Start the gateway server
  hash-key    Hash an API secret for use in config
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./linkgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
