package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"tunlink/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Background reconciliation keeps the dashboard honest while it
		// is open.
		if err := appInstance.Reconciler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reconciler: %w", err)
		}

		return tui.Run(appInstance)
	},
}
