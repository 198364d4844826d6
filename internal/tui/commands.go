package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"tunlink/internal/app"
	"tunlink/internal/core/types"
)

// loadServers fetches the server catalog.
func loadServers(a *app.App) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		err := a.Catalog.Load(ctx)
		return serversLoadedMsg{servers: a.Catalog.Servers(), err: err}
	}
}

// probeServers measures latency to all cached servers.
func probeServers(a *app.App) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		results := a.Catalog.Probe(ctx, probeConfig(a))
		return probeDoneMsg{results: results}
	}
}

// connect runs the connect operation for the given server.
func connect(a *app.App, server types.ServerDescriptor, protocol, encryption string) tea.Cmd {
	return func() tea.Msg {
		result, err := a.Controller.Connect(context.Background(), types.Selection{
			ServerID:   server.ID,
			Protocol:   protocol,
			Encryption: encryption,
		})
		return operationResultMsg{op: "connect", result: result, err: err}
	}
}

// disconnect runs the disconnect operation.
func disconnect(a *app.App) tea.Cmd {
	return func() tea.Msg {
		result, err := a.Controller.Disconnect(context.Background())
		return operationResultMsg{op: "disconnect", result: result, err: err}
	}
}

// changeAddress rotates the virtual address.
func changeAddress(a *app.App) tea.Cmd {
	return func() tea.Msg {
		result, err := a.Controller.ChangeAddress(context.Background())
		return operationResultMsg{op: "new ip", result: result, err: err}
	}
}

// snapshotTick schedules the next store poll. The reconciler corrects the
// store in the background; polling keeps the view honest without wiring
// push notifications through the coordinator.
func snapshotTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return snapshotTickMsg{}
	})
}

// readSnapshot reads the current effective state.
func readSnapshot(a *app.App) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snap: a.Store.Snapshot()}
	}
}
