package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"tunlink/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tunlink",
	Short: "Tunlink - VPN session manager CLI",
	Long: `Tunlink - VPN session manager CLI

  Manage virtual private connection sessions from your terminal.

  Quick start:
    tunlink servers list
    tunlink connect
    tunlink status
    tunlink newip
    tunlink disconnect

  Core features:
    • Connect, disconnect and rotate your virtual address
    • Server catalog with client-side latency probing
    • Background reconciliation against the session API
    • Local connection history`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		var err error
		appInstance, err = app.New(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance != nil {
			return appInstance.Close()
		}
		return nil
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(newIPCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

// seedFromServer adopts the server's current session into this
// invocation's fresh store. One-shot commands start from an empty
// Disconnected store each run; without a pass here they would act on
// that instead of the server's view.
func seedFromServer(ctx context.Context) {
	if err := appInstance.Reconciler.Reconcile(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not reach session API: %v\n", err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Tunlink %s\n", version)
	},
}
