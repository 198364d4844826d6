package core

import (
	"sync"

	"tunlink/internal/core/types"
)

// Snapshot is a read-only view of the effective connection state.
type Snapshot struct {
	State   types.ConnectionState
	Session *types.Session
}

// StateStore is the single source of local truth for the connection.
//
// It holds two layers: the confirmed state (last value acknowledged by the
// session API or adopted from it) and an optional pending overlay written
// optimistically by the controller before a network call resolves. Readers
// always see the overlay when one is staged, so the UI reflects intent
// immediately; the overlay is then committed or discarded atomically when
// the call settles.
//
// Writers are the ConnectionController (Stage/Commit/Discard) and the
// SessionReconciler (Adopt/Clear, guarded by the controller's in-flight
// check). Everything else reads snapshots.
type StateStore struct {
	mu sync.RWMutex

	confirmedState   types.ConnectionState
	confirmedSession *types.Session

	pending        bool
	pendingState   types.ConnectionState
	pendingSession *types.Session

	// userDisconnected records that the user explicitly asked to
	// disconnect, so reconciliation must not resurrect a server-side
	// session they ended. Client-session scoped, never persisted.
	userDisconnected bool
}

// NewStateStore creates a store in the Disconnected state.
func NewStateStore() *StateStore {
	return &StateStore{
		confirmedState: types.StateDisconnected,
	}
}

// Snapshot returns the effective view: the pending overlay when one is
// staged, otherwise the confirmed state. The session is cloned.
func (s *StateStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pending {
		return Snapshot{State: s.pendingState, Session: s.pendingSession.Clone()}
	}
	return Snapshot{State: s.confirmedState, Session: s.confirmedSession.Clone()}
}

// Confirmed returns the confirmed state, ignoring any pending overlay.
func (s *StateStore) Confirmed() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{State: s.confirmedState, Session: s.confirmedSession.Clone()}
}

// Stage writes an optimistic overlay. The confirmed state underneath is
// untouched until Commit or Discard.
func (s *StateStore) Stage(state types.ConnectionState, session *types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, session = normalize(state, session)
	s.pending = true
	s.pendingState = state
	s.pendingSession = session.Clone()
}

// Commit promotes authoritative values to the confirmed state and drops
// any pending overlay in the same critical section.
func (s *StateStore) Commit(state types.ConnectionState, session *types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, session = normalize(state, session)
	s.confirmedState = state
	s.confirmedSession = session.Clone()
	s.pending = false
	s.pendingSession = nil
}

// Discard drops the pending overlay, reverting readers to the confirmed
// state. No-op when nothing is staged.
func (s *StateStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = false
	s.pendingSession = nil
}

// Adopt overwrites the confirmed state with a server-reported session and
// marks the connection Connected. Used by reconciliation.
func (s *StateStore) Adopt(session *types.Session) {
	s.Commit(types.StateConnected, session)
}

// Clear forces the confirmed state to Disconnected with no session.
func (s *StateStore) Clear() {
	s.Commit(types.StateDisconnected, nil)
}

// SetUserDisconnected records or resets the explicit-disconnect flag.
func (s *StateStore) SetUserDisconnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userDisconnected = v
}

// UserDisconnected reports whether the user explicitly disconnected since
// the last successful connect.
func (s *StateStore) UserDisconnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userDisconnected
}

// normalize enforces the state/session invariants: Disconnected carries no
// session, and a session without a virtual address cannot count as
// Connected.
func normalize(state types.ConnectionState, session *types.Session) (types.ConnectionState, *types.Session) {
	if state == types.StateDisconnected {
		return state, nil
	}
	if state == types.StateConnected && (session == nil || session.VirtualAddress == "") {
		return types.StateDisconnected, nil
	}
	return state, session
}
