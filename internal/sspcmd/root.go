// Package sspcmd assembles ssp-backend's cobra commands.
package sspcmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the ssp-backend root command with every
// subcommand attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ssp-backend",
		Short: "Sports Science Platform delegation and certificate backend",
		Long: `ssp-backend - session-delegation and certificate issuance API.

Provides nonce-bound session delegation, JWKS caching, and
witness-anchored certificate issuance and retrieval.

API Endpoints:
  /healthz                            - Liveness probe
  /v1/delegations                     - Prepare/fetch a signed session delegation
  /v1/me                              - Caller's user directory record
  /v1/certificates                    - Create/list certificates
  /v1/certificates/{id}                - Get a certificate
  /v1/admin/jwks                      - Get the cached JWKS, or set it once while none is configured (controller only)
  /v1/admin/jwks/sync                 - Refresh the JWKS from the configured URI; the only way to rotate keys after the first set (controller only)
  /v1/admin/config                    - Get/set the backend principal (controller only)`,
	}

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewHealthCommand())

	return rootCmd
}
