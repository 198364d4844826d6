package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"tunlink/internal/core/types"
	"tunlink/internal/storage"
	pkgerrors "tunlink/pkg/errors"
)

var connectCmd = &cobra.Command{
	Use:   "connect [server-id-or-name]",
	Short: "Connect to a server",
	Long: `Connect to a server by ID or name.
If no argument is provided, the current selection (or the first server
in the catalog) is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		seedFromServer(ctx)

		if err := appInstance.Catalog.Load(ctx); err != nil {
			return fmt.Errorf("failed to load server catalog: %w", err)
		}

		var serverID int64
		if len(args) > 0 {
			server, err := resolveServerArg(args[0])
			if err != nil {
				return err
			}
			serverID = server.ID
		} else if stored, err := appInstance.Storage.GetSetting(ctx, storage.SettingSelectedServer); err == nil {
			if id, parseErr := strconv.ParseInt(stored, 10, 64); parseErr == nil {
				if err := appInstance.Catalog.Select(id); err == nil {
					serverID = id
				}
			}
		}

		server, err := appInstance.Catalog.Resolve(ctx, serverID)
		if err != nil {
			return err
		}

		protocol, _ := cmd.Flags().GetString("protocol")
		encryption, _ := cmd.Flags().GetString("encryption")
		if protocol == "" {
			protocol, _ = appInstance.Storage.GetSetting(ctx, storage.SettingProtocol)
		}
		if encryption == "" {
			encryption, _ = appInstance.Storage.GetSetting(ctx, storage.SettingEncryption)
		}

		fmt.Printf("Connecting to %s (%s)...\n", server.Name, server.Country)
		fmt.Printf("  Protocol:   %s\n", protocol)
		fmt.Printf("  Encryption: %s\n", encryption)
		fmt.Println()

		result, err := appInstance.Controller.Connect(ctx, types.Selection{
			ServerID:   server.ID,
			Protocol:   protocol,
			Encryption: encryption,
		})
		if err != nil {
			return err
		}
		if !result.Accepted {
			return guardRejection(result.Cooldown, result.RemainingWait)
		}

		fmt.Printf("Connected!\n")
		fmt.Printf("  Session:    %d\n", result.Session.ID)
		fmt.Printf("  Address:    %s\n", result.Session.VirtualAddress)

		// Remember the selection for next time.
		appInstance.Catalog.Select(server.ID)
		appInstance.Storage.SetSetting(ctx, storage.SettingSelectedServer, strconv.FormatInt(server.ID, 10))
		return nil
	},
}

func init() {
	connectCmd.Flags().StringP("protocol", "p", "", "tunnel protocol (wireguard, openvpn, ikev2)")
	connectCmd.Flags().StringP("encryption", "e", "", "encryption suite (aes_256_gcm, chacha20_poly1305)")
}

// resolveServerArg parses an argument as a server ID or name.
func resolveServerArg(arg string) (*types.ServerDescriptor, error) {
	servers := appInstance.Catalog.Servers()

	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		for i := range servers {
			if servers[i].ID == id {
				return &servers[i], nil
			}
		}
	}
	for i := range servers {
		if servers[i].Name == arg {
			return &servers[i], nil
		}
	}
	return nil, fmt.Errorf("server not found: %s", arg)
}

// guardRejection maps a guard or cooldown rejection onto the error
// taxonomy so callers can match with errors.Is.
func guardRejection(cooldown bool, remaining time.Duration) error {
	if cooldown {
		return &pkgerrors.CooldownError{Remaining: remaining}
	}
	return pkgerrors.ErrConcurrentOperation
}
