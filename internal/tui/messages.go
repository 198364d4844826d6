package tui

import (
	"tunlink/internal/catalog"
	"tunlink/internal/core"
	"tunlink/internal/core/types"
)

// Data loading messages.

type serversLoadedMsg struct {
	servers []types.ServerDescriptor
	err     error
}

type probeDoneMsg struct {
	results []catalog.ProbeResult
}

// Connection lifecycle messages.

type operationResultMsg struct {
	op     string
	result core.Result
	err    error
}

// Status polling messages.

type snapshotTickMsg struct{}

type snapshotMsg struct {
	snap core.Snapshot
}
