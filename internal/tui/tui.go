package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tunlink/internal/app"
	"tunlink/internal/catalog"
	"tunlink/internal/core"
	"tunlink/internal/core/types"
	"tunlink/internal/storage"
)

// Model is the root BubbleTea model: a single-screen dashboard showing
// the connection state and the server catalog.
type Model struct {
	app *app.App

	width  int
	height int

	snap    core.Snapshot
	servers []types.ServerDescriptor
	cursor  int

	busy    bool
	probing bool

	notification    string
	notificationErr bool

	spinner spinner.Model
}

// NewModel creates a new root Model.
func NewModel(a *app.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPurple)

	return &Model{
		app:     a,
		snap:    a.Store.Snapshot(),
		spinner: s,
	}
}

// Run starts the TUI program.
func Run(a *app.App) error {
	program := tea.NewProgram(NewModel(a), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		loadServers(m.app),
		m.spinner.Tick,
		snapshotTick(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case serversLoadedMsg:
		if msg.err != nil {
			m.notify(fmt.Sprintf("Failed to load servers: %v", msg.err), true)
			return m, nil
		}
		m.servers = msg.servers
		if m.cursor >= len(m.servers) {
			m.cursor = 0
		}
		return m, nil

	case probeDoneMsg:
		m.probing = false
		m.servers = m.app.Catalog.Servers()
		m.notify(fmt.Sprintf("Probed %d servers", len(msg.results)), false)
		return m, nil

	case operationResultMsg:
		m.busy = false
		m.snap = m.app.Store.Snapshot()
		switch {
		case msg.err != nil:
			m.notify(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
		case !msg.result.Accepted && msg.result.Cooldown:
			m.notify(fmt.Sprintf("Cooldown: retry in %s", msg.result.RemainingWait.Round(100*time.Millisecond)), true)
		case !msg.result.Accepted:
			m.notify("Another operation is in progress", true)
		default:
			m.notify(fmt.Sprintf("%s done", msg.op), false)
		}
		return m, nil

	case snapshotTickMsg:
		return m, tea.Batch(readSnapshot(m.app), snapshotTick())

	case snapshotMsg:
		m.snap = msg.snap
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.servers)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Refresh):
		return m, loadServers(m.app)

	case key.Matches(msg, keys.Probe):
		if !m.probing {
			m.probing = true
			return m, probeServers(m.app)
		}

	case key.Matches(msg, keys.Connect):
		if m.busy || len(m.servers) == 0 {
			return m, nil
		}
		m.busy = true
		server := m.servers[m.cursor]
		protocol, encryption := m.tunnelDefaults()
		return m, connect(m.app, server, protocol, encryption)

	case key.Matches(msg, keys.Disconnect):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, disconnect(m.app)

	case key.Matches(msg, keys.NewIP):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, changeAddress(m.app)
	}

	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(m.viewSession())
	b.WriteString("\n")
	b.WriteString(m.viewServers())
	b.WriteString("\n")

	if m.notification != "" {
		if m.notificationErr {
			b.WriteString(errorStyle.Render(m.notification))
		} else {
			b.WriteString(dimStyle.Render(m.notification))
		}
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("c connect · d disconnect · n new ip · p probe · r refresh · q quit"))
	return b.String()
}

func (m *Model) viewHeader() string {
	pill := disconnectedPillStyle
	label := m.snap.State.String()
	switch m.snap.State {
	case types.StateConnected:
		pill = connectedPillStyle
	case types.StateConnecting, types.StateDisconnecting:
		pill = transitioningPillStyle
		label = m.spinner.View() + " " + label
	}
	return lipgloss.JoinHorizontal(lipgloss.Center,
		logoStyle.Render("tunlink"),
		pill.Render(label),
	)
}

func (m *Model) viewSession() string {
	if m.snap.Session == nil {
		return cardStyle.Render(dimStyle.Render("No session. Pick a server and press 'c'."))
	}

	s := m.snap.Session
	lines := []string{
		fmt.Sprintf("Session:  %d", s.ID),
		fmt.Sprintf("Address:  %s", s.VirtualAddress),
		fmt.Sprintf("Tunnel:   %s / %s", s.Protocol, s.Encryption),
	}
	if s.Provisional {
		lines = append(lines, dimStyle.Render("(awaiting server confirmation)"))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) viewServers() string {
	if len(m.servers) == 0 {
		return dimStyle.Render("Loading servers...")
	}

	var rows []string
	for i, server := range m.servers {
		row := fmt.Sprintf("%-20s %-12s %6.0f ms %5.0f%%",
			server.Name, server.Country, server.LatencyMs, server.LoadPercent)
		if i == m.cursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

// tunnelDefaults reads the stored protocol/encryption preferences.
func (m *Model) tunnelDefaults() (string, string) {
	ctx := context.Background()
	protocol, err := m.app.Storage.GetSetting(ctx, storage.SettingProtocol)
	if err != nil || protocol == "" {
		protocol = "wireguard"
	}
	encryption, err := m.app.Storage.GetSetting(ctx, storage.SettingEncryption)
	if err != nil || encryption == "" {
		encryption = "aes_256_gcm"
	}
	return protocol, encryption
}

func (m *Model) notify(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
}

// probeConfig builds probe settings from app configuration.
func probeConfig(a *app.App) catalog.ProbeConfig {
	return catalog.ProbeConfig{
		Workers: int64(a.Config.ProbeWorkers),
		Timeout: a.Config.ProbeTimeout(),
	}
}
