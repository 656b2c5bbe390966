package sspcmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewHealthCommand builds the "health" subcommand that polls a running
// instance's /healthz endpoint and reports readiness.
func NewHealthCommand() *cobra.Command {
	var addr string

	var timeoutStr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check health of a running ssp-backend instance",
		Long: `Poll /healthz and report readiness.
Exit 0 if healthy, exit 1 otherwise.

Examples:
  ssp-backend health --addr http://127.0.0.1:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := time.ParseDuration(timeoutStr)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/healthz", nil)
			if err != nil {
				return fmt.Errorf("failed to build health request: %w", err)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("ssp-backend unreachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("ssp-backend reported unhealthy status %d", resp.StatusCode)
			}

			fmt.Printf("ssp-backend healthy at %s\n", addr)

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "base address of the running instance")
	cmd.Flags().StringVar(&timeoutStr, "timeout", "5s", "health check timeout")

	return cmd
}
