package notify

import (
	"log"

	"tunlink/internal/core/types"
)

// Sink surfaces human-readable connection outcomes. The coordinator calls
// it from controller and reconciler paths; implementations must be safe
// for concurrent use and must not block.
type Sink interface {
	// Connected reports a session became active.
	Connected(session *types.Session)
	// Disconnected reports the connection ended. acknowledged is false
	// when the server never confirmed the end request and the client
	// degraded to a local-only disconnect.
	Disconnected(acknowledged bool)
	// AddressChanged reports a successful change-address operation.
	AddressChanged(oldAddress, newAddress string)
	// Failure reports a failed operation after rollback.
	Failure(op string, err error)
}

// LogSink writes outcomes to the standard logger.
type LogSink struct{}

func (LogSink) Connected(session *types.Session) {
	log.Printf("Connected: session %d, address %s", session.ID, session.VirtualAddress)
}

func (LogSink) Disconnected(acknowledged bool) {
	if acknowledged {
		log.Printf("Disconnected")
		return
	}
	log.Printf("Disconnected locally; server did not acknowledge")
}

func (LogSink) AddressChanged(oldAddress, newAddress string) {
	log.Printf("Address changed: %s -> %s", oldAddress, newAddress)
}

func (LogSink) Failure(op string, err error) {
	log.Printf("Operation %s failed: %v", op, err)
}

// Multi fans outcomes out to several sinks.
type Multi []Sink

func (m Multi) Connected(session *types.Session) {
	for _, s := range m {
		s.Connected(session)
	}
}

func (m Multi) Disconnected(acknowledged bool) {
	for _, s := range m {
		s.Disconnected(acknowledged)
	}
}

func (m Multi) AddressChanged(oldAddress, newAddress string) {
	for _, s := range m {
		s.AddressChanged(oldAddress, newAddress)
	}
}

func (m Multi) Failure(op string, err error) {
	for _, s := range m {
		s.Failure(op, err)
	}
}
