package types

import "time"

// ConnectionState represents the derived state of the virtual private
// connection. Exactly one state holds at any instant.
type ConnectionState int

const (
	// StateDisconnected indicates no session, locally or (as far as we
	// know) server-side. Initial state, always re-enterable.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates a start request is outstanding.
	StateConnecting
	// StateConnected indicates an active session with an assigned
	// virtual address.
	StateConnected
	// StateDisconnecting indicates an end request is outstanding.
	StateDisconnecting
)

// String returns a human-readable representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Session is the record of an active connection. The authoritative copy
// lives server-side; local copies are either provisional (written
// optimistically before a start call resolves) or adopted verbatim from
// an API response.
type Session struct {
	ID             int64      `json:"id"`
	ServerID       int64      `json:"serverId"`
	Protocol       string     `json:"protocol"`   // wireguard, openvpn, ikev2
	Encryption     string     `json:"encryption"` // aes_256_gcm, chacha20_poly1305
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	VirtualAddress string     `json:"virtualAddress"`

	// Provisional marks a locally fabricated session that has not been
	// confirmed by the API yet.
	Provisional bool `json:"-"`
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s != nil && s.EndTime == nil
}

// Clone returns a copy so callers can hold a snapshot without racing
// later writes.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// Selection names what to connect with: a server plus the tunnel
// parameters sent to the start endpoint.
type Selection struct {
	ServerID   int64  `json:"serverId"`
	Protocol   string `json:"protocol"`
	Encryption string `json:"encryption"`
}

// ServerDescriptor is an immutable snapshot of one connection endpoint
// from the server catalog.
type ServerDescriptor struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	Endpoint    string  `json:"endpoint"` // host:port, used for client-side latency probes
	LatencyMs   float64 `json:"latencyMs"`
	LoadPercent float64 `json:"loadPercent"`
}
