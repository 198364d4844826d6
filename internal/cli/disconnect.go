package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"tunlink/internal/core/types"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the current session",
	Long: `Disconnect the current session.
The end request is retried a bounded number of times; the client always
finishes disconnected, even if the server never acknowledges.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		seedFromServer(ctx)

		snap := appInstance.Store.Snapshot()
		if snap.State == types.StateDisconnected {
			fmt.Println("Already disconnected.")
			return nil
		}

		fmt.Println("Disconnecting...")
		result, err := appInstance.Controller.Disconnect(ctx)
		if err != nil {
			return err
		}
		if !result.Accepted {
			return guardRejection(result.Cooldown, result.RemainingWait)
		}

		fmt.Println("Disconnected.")
		return nil
	},
}
