package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var certsInfoCmd = &cobra.Command{
	Use:   "info [cert-file]",
	Short: "Display certificate details",
	Long: `Display the fields the proxy cares about: subject, issuer, validity
window, and the SAN list SNI lookups are matched against.

Examples:
  gatehouse certs info app1.crt`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         displayCertInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	certPEM, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("no PEM block in %s", args[0])
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	fmt.Printf("Certificate: %s\n\n", args[0])
	fmt.Printf("Subject:    %s\n", cert.Subject)
	fmt.Printf("Issuer:     %s\n", cert.Issuer)
	fmt.Printf("Serial:     %x\n", cert.SerialNumber)
	fmt.Printf("Not Before: %s\n", cert.NotBefore.Format(time.RFC3339))
	fmt.Printf("Not After:  %s\n", cert.NotAfter.Format(time.RFC3339))
	if len(cert.DNSNames) > 0 {
		fmt.Printf("DNS SANs:   %s\n", strings.Join(cert.DNSNames, ", "))
	}
	for _, ip := range cert.IPAddresses {
		fmt.Printf("IP SAN:     %s\n", ip)
	}
	fmt.Printf("Algorithms: %s / %s\n", cert.SignatureAlgorithm, cert.PublicKeyAlgorithm)
	return nil
}
