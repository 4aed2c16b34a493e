package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gatehouse-hq/gatehouse/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse - multi-tenant TLS-terminating reverse proxy",
	Long: `Gatehouse is a multi-tenant HTTP reverse proxy that terminates TLS and
forwards requests to backend servers selected by virtual host and path.

It provides:
  - Per-application certificates served via SNI on a single listener
  - HTTP/1.1, HTTP/2, and HTTP/3 (QUIC) on the client side
  - Round-robin, random, and sticky-cookie load balancing with
    passive upstream health tracking
  - Hot configuration and certificate reload without dropped requests
  - Automatic certificate issuance and renewal through ACME`,
	Version: Version,
}

// Execute runs the root command and exits with the code mapped from
// the command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gatehouse.toml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
