package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show local connection history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			if err := appInstance.Storage.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := appInstance.Storage.GetHistory(ctx, limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No history.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tEVENT\tSESSION\tADDRESS\tDETAIL\t")
		for _, event := range events {
			session := ""
			if event.SessionID != 0 {
				session = fmt.Sprintf("%d", event.SessionID)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				event.OccurredAt.Format("2006-01-02 15:04:05"),
				event.Kind, session, event.VirtualAddress, event.Detail)
		}
		w.Flush()
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum entries to show")
	historyCmd.Flags().Bool("clear", false, "clear the history")
}
