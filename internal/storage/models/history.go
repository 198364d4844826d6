package models

import "time"

// Event kinds recorded in the connection history.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventAddressChange = "address_change"
	EventFailure       = "failure"
)

// HistoryEvent is one entry in the local connection history. History is
// client-side bookkeeping only; the coordinator never reads it back to
// make decisions.
type HistoryEvent struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"` // connect, disconnect, address_change, failure
	SessionID      int64     `json:"session_id,omitempty"`
	ServerID       int64     `json:"server_id,omitempty"`
	VirtualAddress string    `json:"virtual_address,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
