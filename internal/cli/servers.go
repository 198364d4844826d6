package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"tunlink/internal/catalog"
	"tunlink/internal/storage"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage the server catalog",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := appInstance.Catalog.Load(ctx); err != nil {
			return fmt.Errorf("failed to load server catalog: %w", err)
		}

		selected, _ := appInstance.Catalog.Current()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tLATENCY\tLOAD\t")
		for _, server := range appInstance.Catalog.Servers() {
			marker := ""
			if selected != nil && server.ID == selected.ID {
				marker = " *"
			}
			fmt.Fprintf(w, "%d\t%s%s\t%s\t%.0f ms\t%.0f%%\t\n",
				server.ID, server.Name, marker, server.Country, server.LatencyMs, server.LoadPercent)
		}
		w.Flush()

		fmt.Printf("\nTotal: %d servers\n", len(appInstance.Catalog.Servers()))
		return nil
	},
}

var serversSelectCmd = &cobra.Command{
	Use:   "select <server-id-or-name>",
	Short: "Select the default server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := appInstance.Catalog.Load(ctx); err != nil {
			return fmt.Errorf("failed to load server catalog: %w", err)
		}

		server, err := resolveServerArg(args[0])
		if err != nil {
			return err
		}
		if err := appInstance.Catalog.Select(server.ID); err != nil {
			return err
		}
		if err := appInstance.Storage.SetSetting(ctx, storage.SettingSelectedServer,
			strconv.FormatInt(server.ID, 10)); err != nil {
			return err
		}

		fmt.Printf("Selected: %s (ID %d)\n", server.Name, server.ID)
		return nil
	},
}

var serversProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Measure latency to all servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := appInstance.Catalog.Load(ctx); err != nil {
			return fmt.Errorf("failed to load server catalog: %w", err)
		}

		fmt.Printf("Probing %d servers...\n\n", len(appInstance.Catalog.Servers()))

		results := appInstance.Catalog.Probe(ctx, catalog.ProbeConfig{
			Workers: int64(appInstance.Config.ProbeWorkers),
			Timeout: appInstance.Config.ProbeTimeout(),
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLATENCY\t")
		for _, result := range results {
			if result.Err != nil {
				fmt.Fprintf(w, "%d\t%s\tfailed (%v)\t\n", result.Server.ID, result.Server.Name, result.Err)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%.1f ms\t\n", result.Server.ID, result.Server.Name, result.LatencyMs)
		}
		w.Flush()
		return nil
	},
}

func init() {
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversSelectCmd)
	serversCmd.AddCommand(serversProbeCmd)
}
