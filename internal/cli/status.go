package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tunlink/internal/core/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Cross-check against the server before printing; a stale local
		// view is exactly what this command exists to reveal.
		reconcile, _ := cmd.Flags().GetBool("reconcile")
		if reconcile {
			if err := appInstance.Reconciler.Reconcile(ctx); err != nil {
				fmt.Printf("Warning: could not reach session API: %v\n\n", err)
			}
		}

		snap := appInstance.Store.Snapshot()

		fmt.Printf("Status\n")
		fmt.Printf("══════\n\n")
		fmt.Printf("State:        %s\n", snap.State)

		if snap.Session == nil {
			return nil
		}

		fmt.Printf("Session:      %d\n", snap.Session.ID)
		fmt.Printf("Server:       %d\n", snap.Session.ServerID)
		fmt.Printf("Protocol:     %s\n", snap.Session.Protocol)
		fmt.Printf("Encryption:   %s\n", snap.Session.Encryption)
		fmt.Printf("Address:      %s\n", snap.Session.VirtualAddress)
		if snap.State == types.StateConnected {
			fmt.Printf("Uptime:       %s\n", time.Since(snap.Session.StartTime).Round(time.Second))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("reconcile", true, "cross-check local state against the session API")
}
