package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gatehouse-hq/gatehouse/pkg/certs"
	"gatehouse-hq/gatehouse/pkg/cli"
)

var certsValidateFlags struct {
	cert       string
	key        string
	serverName string
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a certificate / key pair",
	Long: `Validate runs the same checks the proxy applies at load time: the
chain and the PKCS8 key must parse, the key must match the leaf, and
when --server-name is given the leaf's SAN list must cover it.

Examples:
  gatehouse certs validate --cert app1.crt --key app1.key
  gatehouse certs validate --cert app1.crt --key app1.key --server-name app1.example.com`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := certsValidateFlags.serverName
		var (
			entry *certs.Entry
			err   error
		)
		if name != "" {
			entry, err = certs.LoadEntry(name, certsValidateFlags.cert, certsValidateFlags.key)
		} else {
			entry, err = certs.LoadEntryUnchecked(certsValidateFlags.cert, certsValidateFlags.key)
		}
		if err != nil {
			return cli.ConfigError(err)
		}

		fmt.Printf("✓ certificate and key match\n")
		if name != "" {
			fmt.Printf("✓ SAN list covers %s\n", name)
		}
		fmt.Printf("  subject:  %s\n", entry.Leaf.Subject)
		fmt.Printf("  expires:  %s (%d days)\n",
			entry.Leaf.NotAfter.Format(time.RFC3339), entry.DaysUntilExpiry(time.Now()))
		return nil
	},
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.cert, "cert", "", "certificate chain file (PEM)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.key, "key", "", "private key file (PEM, PKCS8)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.serverName, "server-name", "", "server name the SAN list must cover")
	certsValidateCmd.MarkFlagRequired("cert")
	certsValidateCmd.MarkFlagRequired("key")
}
