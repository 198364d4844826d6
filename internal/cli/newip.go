package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var newIPCmd = &cobra.Command{
	Use:   "newip",
	Short: "Rotate the virtual address",
	Long: `End the current session and start a new one on the same server,
yielding a fresh server-assigned virtual address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		seedFromServer(ctx)

		before := appInstance.Store.Snapshot()
		if before.Session != nil {
			fmt.Printf("Current address: %s\n", before.Session.VirtualAddress)
		}

		result, err := appInstance.Controller.ChangeAddress(ctx)
		if err != nil {
			return err
		}
		if !result.Accepted {
			return guardRejection(result.Cooldown, result.RemainingWait)
		}

		fmt.Printf("New address:     %s (session %d)\n", result.Session.VirtualAddress, result.Session.ID)
		return nil
	},
}
