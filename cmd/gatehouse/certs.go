package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Manage the TLS certificates served by the proxy.

Subcommands:
  validate - Check a certificate / key pair against a server name
  info     - Display certificate details
  generate - Generate a self-signed certificate for testing

Examples:
  # Check the pair an application references
  gatehouse certs validate --cert app1.crt --key app1.key --server-name app1.example.com

  # Display certificate information
  gatehouse certs info app1.crt

  # Generate a throwaway certificate
  gatehouse certs generate --host app1.example.com`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
