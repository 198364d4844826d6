package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"tunlink/internal/api"
	"tunlink/internal/core/types"
	"tunlink/internal/notify"
	pkgerrors "tunlink/pkg/errors"
)

// SessionAPI is the slice of the session API the controller needs.
type SessionAPI interface {
	StartSession(ctx context.Context, req api.StartRequest) (*types.Session, error)
	EndSession(ctx context.Context, req api.EndRequest) error
	CurrentSession(ctx context.Context) (*types.Session, error)
}

// ServerResolver resolves a server ID to its catalog descriptor, loading
// the catalog first when it is empty.
type ServerResolver interface {
	Resolve(ctx context.Context, serverID int64) (*types.ServerDescriptor, error)
}

// Options holds controller tuning knobs.
type Options struct {
	// CooldownWindow is the minimum interval between the starts of two
	// guarded operations.
	CooldownWindow time.Duration
	// SettleDelay defers guard release after a failed connect so
	// duplicate UI events land on the guard instead of the network.
	SettleDelay time.Duration
	// EndAttempts bounds the sequential retry loop for end requests
	// during disconnect.
	EndAttempts int
	// EndRetryDelay is the pause between end attempts.
	EndRetryDelay time.Duration
	// RequestTimeout bounds each outbound API call.
	RequestTimeout time.Duration
	// Clock is the time source. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultOptions returns default controller options
func DefaultOptions() Options {
	return Options{
		CooldownWindow: 5 * time.Second,
		SettleDelay:    1 * time.Second,
		EndAttempts:    3,
		EndRetryDelay:  500 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
	}
}

// Result is the structured outcome of a guarded operation. Guard and
// cooldown rejections come back here with a nil error so callers need no
// special rejection handling; network failures on connect and
// change-address come back as a non-nil error after rollback.
type Result struct {
	// Accepted is false when the guard or cooldown rejected the call
	// before any network request was issued.
	Accepted bool
	// Cooldown is true when the rejection was the cooldown window.
	Cooldown bool
	// RemainingWait is the time left in the cooldown window.
	RemainingWait time.Duration
	// State and Session are the effective view after the operation.
	State   types.ConnectionState
	Session *types.Session
}

// Controller orchestrates connect, disconnect and change-address against
// the session API. It is the only writer of ConnectionState: every
// transition flows through its guard, which admits at most one operation
// at a time and enforces the cooldown between attempt starts.
type Controller struct {
	api     SessionAPI
	servers ServerResolver
	store   *StateStore
	sink    notify.Sink
	opts    Options
	clock   clockwork.Clock

	guardMu       sync.Mutex
	inFlight      bool
	lastAttemptAt time.Time

	onFailure func()
}

// NewController creates a new connection controller
func NewController(sessionAPI SessionAPI, servers ServerResolver, store *StateStore, sink notify.Sink, opts Options) *Controller {
	if opts.CooldownWindow <= 0 {
		opts.CooldownWindow = DefaultOptions().CooldownWindow
	}
	if opts.EndAttempts <= 0 {
		opts.EndAttempts = DefaultOptions().EndAttempts
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions().RequestTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &Controller{
		api:     sessionAPI,
		servers: servers,
		store:   store,
		sink:    sink,
		opts:    opts,
		clock:   clock,
	}
}

// Store returns the state store for read-only snapshot access.
func (c *Controller) Store() *StateStore {
	return c.store
}

// Busy reports whether an operation is currently in flight. The
// reconciler consults this before touching the store; nothing outside the
// controller may mutate the guard.
func (c *Controller) Busy() bool {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()
	return c.inFlight
}

// OnFailure registers a hook invoked (on its own goroutine) after any
// operation fails, so reconciliation can run immediately.
func (c *Controller) OnFailure(fn func()) {
	c.onFailure = fn
}

// Connect starts a session with the given selection.
func (c *Controller) Connect(ctx context.Context, sel types.Selection) (Result, error) {
	res, ok := c.begin()
	if !ok {
		return c.fill(res), nil
	}

	if snap := c.store.Confirmed(); snap.State == types.StateConnected {
		c.release(0)
		return c.fill(res), &pkgerrors.OperationError{Op: "connect", Err: pkgerrors.ErrAlreadyConnected}
	}

	server, err := c.servers.Resolve(ctx, sel.ServerID)
	if err != nil {
		c.release(c.opts.SettleDelay)
		return c.fill(res), &pkgerrors.OperationError{Op: "connect", Err: err}
	}

	c.store.Stage(types.StateConnecting, provisionalSession(sel, c.clock.Now()))

	session, err := c.startSession(ctx, sel)
	if err != nil {
		c.store.Discard()
		c.releaseAfterFailure()
		c.sink.Failure("connect", err)
		return c.fill(res), &pkgerrors.OperationError{Op: "connect", Err: err}
	}

	c.store.Commit(types.StateConnected, session)
	c.store.SetUserDisconnected(false)
	c.release(0)
	c.sink.Connected(session)
	log.Printf("Connected to %s (server %d), address %s", server.Name, server.ID, session.VirtualAddress)
	return c.fill(res), nil
}

// Disconnect ends the current session. The end request is retried a
// bounded number of times; whether or not the server ever acknowledges,
// local state finishes at Disconnected. Exhausting the retry budget is
// logged, not surfaced: the user asked to be disconnected and, from the
// client's point of view, is.
func (c *Controller) Disconnect(ctx context.Context) (Result, error) {
	if snap := c.store.Snapshot(); snap.State == types.StateDisconnected {
		// Idempotent no-op; consumes neither guard nor cooldown.
		return Result{Accepted: true, State: types.StateDisconnected}, nil
	}

	res, ok := c.begin()
	if !ok {
		return c.fill(res), nil
	}

	// Re-read under the guard; an operation may have settled between
	// the pre-guard check and begin.
	snap := c.store.Snapshot()
	if snap.State == types.StateDisconnected {
		c.release(0)
		return c.fill(res), nil
	}

	c.store.SetUserDisconnected(true)

	// Clear the address immediately so the UI stops showing an address
	// the user asked to give up.
	staged := snap.Session.Clone()
	if staged != nil {
		staged.VirtualAddress = ""
	}
	c.store.Stage(types.StateDisconnecting, staged)

	acknowledged := false
	var lastErr error
	for attempt := 0; attempt < c.opts.EndAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-c.clock.After(c.opts.EndRetryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		err := c.api.EndSession(reqCtx, api.EndRequest{})
		cancel()
		if err == nil {
			acknowledged = true
			break
		}
		lastErr = err
	}

	c.store.Commit(types.StateDisconnected, nil)
	c.release(0)
	c.sink.Disconnected(acknowledged)
	if !acknowledged {
		log.Printf("Disconnect: server never acknowledged after %d attempts: %v", c.opts.EndAttempts, lastErr)
		c.failed()
	}
	return c.fill(res), nil
}

// ChangeAddress ends the current session and starts a new one with the
// same selection, yielding a fresh server-assigned virtual address. On
// any mid-sequence failure the controller re-queries the server for
// ground truth instead of guessing which half took effect.
func (c *Controller) ChangeAddress(ctx context.Context) (Result, error) {
	res, ok := c.begin()
	if !ok {
		return c.fill(res), nil
	}

	snap := c.store.Confirmed()
	if snap.State != types.StateConnected || snap.Session == nil {
		c.release(0)
		return c.fill(res), &pkgerrors.OperationError{Op: "change-address", Err: pkgerrors.ErrNotConnected}
	}

	sel := types.Selection{
		ServerID:   snap.Session.ServerID,
		Protocol:   snap.Session.Protocol,
		Encryption: snap.Session.Encryption,
	}
	oldAddress := snap.Session.VirtualAddress

	c.store.Stage(types.StateConnecting, provisionalSession(sel, c.clock.Now()))

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	err := c.api.EndSession(reqCtx, api.EndRequest{})
	cancel()
	if err != nil {
		return c.recoverChangeAddress(ctx, res, err)
	}

	session, err := c.startSession(ctx, sel)
	if err != nil {
		return c.recoverChangeAddress(ctx, res, err)
	}

	c.store.Commit(types.StateConnected, session)
	c.release(0)
	c.sink.AddressChanged(oldAddress, session.VirtualAddress)
	return c.fill(res), nil
}

// recoverChangeAddress resolves a half-completed end/start sequence by
// adopting whatever the server reports as current.
func (c *Controller) recoverChangeAddress(ctx context.Context, res Result, cause error) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	current, queryErr := c.api.CurrentSession(reqCtx)
	cancel()

	switch {
	case queryErr != nil:
		// Can't even learn ground truth; assume the pessimistic side.
		c.store.Commit(types.StateDisconnected, nil)
	case current.Active():
		c.store.Commit(types.StateConnected, current)
	default:
		c.store.Commit(types.StateDisconnected, nil)
	}

	c.releaseAfterFailure()
	c.sink.Failure("change-address", cause)
	return c.fill(res), &pkgerrors.OperationError{Op: "change-address", Err: cause}
}

// startSession issues the start request with a bounded wait.
func (c *Controller) startSession(ctx context.Context, sel types.Selection) (*types.Session, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	session, err := c.api.StartSession(reqCtx, api.StartRequest{
		ServerID:   sel.ServerID,
		Protocol:   sel.Protocol,
		Encryption: sel.Encryption,
	})
	if err != nil {
		return nil, err
	}
	if session.VirtualAddress == "" {
		return nil, fmt.Errorf("%w: response carried no virtual address", pkgerrors.ErrStartFailed)
	}
	return session, nil
}

// begin acquires the guard, enforcing mutual exclusion and the cooldown.
// A rejection issues no network request and is reported through the
// Result, not an error.
func (c *Controller) begin() (Result, bool) {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()

	if c.inFlight {
		return Result{}, false
	}

	now := c.clock.Now()
	if !c.lastAttemptAt.IsZero() {
		if wait := c.opts.CooldownWindow - now.Sub(c.lastAttemptAt); wait > 0 {
			return Result{Cooldown: true, RemainingWait: wait}, false
		}
	}

	c.inFlight = true
	c.lastAttemptAt = now
	return Result{Accepted: true}, true
}

// release clears the in-flight flag, after a settle delay when one is
// given.
func (c *Controller) release(settle time.Duration) {
	if settle <= 0 {
		c.guardMu.Lock()
		c.inFlight = false
		c.guardMu.Unlock()
		return
	}
	c.clock.AfterFunc(settle, func() {
		c.guardMu.Lock()
		c.inFlight = false
		c.guardMu.Unlock()
	})
}

// releaseAfterFailure holds the guard for the settle delay, releases it
// and only then fires the failure hook. The ordering matters: the hook
// triggers a reconcile pass, and that pass defers to Busy(), so firing
// it while the guard is still settling would skip the pass entirely.
func (c *Controller) releaseAfterFailure() {
	if c.opts.SettleDelay <= 0 {
		c.release(0)
		c.failed()
		return
	}
	c.clock.AfterFunc(c.opts.SettleDelay, func() {
		c.guardMu.Lock()
		c.inFlight = false
		c.guardMu.Unlock()
		c.failed()
	})
}

func (c *Controller) failed() {
	if c.onFailure != nil {
		go c.onFailure()
	}
}

// fill stamps the current effective view onto a result.
func (c *Controller) fill(res Result) Result {
	snap := c.store.Snapshot()
	res.State = snap.State
	res.Session = snap.Session
	return res
}

// provisionalSession fabricates the optimistic session staged while a
// start request is outstanding. The placeholder address is visibly not a
// real one and is always replaced by the server's answer.
func provisionalSession(sel types.Selection, now time.Time) *types.Session {
	return &types.Session{
		ServerID:       sel.ServerID,
		Protocol:       sel.Protocol,
		Encryption:     sel.Encryption,
		StartTime:      now,
		VirtualAddress: "pending-" + uuid.NewString()[:8],
		Provisional:    true,
	}
}
