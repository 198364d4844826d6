package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"tunlink/internal/api"
	"tunlink/internal/core/types"
	pkgerrors "tunlink/pkg/errors"
)

// fakeAPI is an in-memory session API with overridable behavior and call
// counters.
type fakeAPI struct {
	mu           sync.Mutex
	startCalls   int
	endCalls     int
	currentCalls int

	startFn   func(req api.StartRequest) (*types.Session, error)
	endFn     func() error
	currentFn func() (*types.Session, error)
}

func (f *fakeAPI) StartSession(ctx context.Context, req api.StartRequest) (*types.Session, error) {
	f.mu.Lock()
	f.startCalls++
	fn := f.startFn
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &types.Session{
		ID:             101,
		ServerID:       req.ServerID,
		Protocol:       req.Protocol,
		Encryption:     req.Encryption,
		StartTime:      time.Now(),
		VirtualAddress: "10.0.0.5",
	}, nil
}

func (f *fakeAPI) EndSession(ctx context.Context, req api.EndRequest) error {
	f.mu.Lock()
	f.endCalls++
	fn := f.endFn
	f.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

func (f *fakeAPI) CurrentSession(ctx context.Context) (*types.Session, error) {
	f.mu.Lock()
	f.currentCalls++
	fn := f.currentFn
	f.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil, nil
}

func (f *fakeAPI) calls() (start, end, current int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.endCalls, f.currentCalls
}

// fakeResolver resolves server IDs from a fixed map.
type fakeResolver map[int64]types.ServerDescriptor

func (f fakeResolver) Resolve(ctx context.Context, serverID int64) (*types.ServerDescriptor, error) {
	if server, ok := f[serverID]; ok {
		return &server, nil
	}
	return nil, pkgerrors.ErrServerNotFound
}

// nopSink discards notifications.
type nopSink struct{}

func (nopSink) Connected(*types.Session)      {}
func (nopSink) Disconnected(bool)             {}
func (nopSink) AddressChanged(string, string) {}
func (nopSink) Failure(string, error)         {}

func defaultSelection() types.Selection {
	return types.Selection{ServerID: 7, Protocol: "wireguard", Encryption: "aes_256_gcm"}
}

func newTestController(clock clockwork.Clock) (*Controller, *fakeAPI, *StateStore) {
	fake := &fakeAPI{}
	store := NewStateStore()
	resolver := fakeResolver{7: {ID: 7, Name: "fra-1", Country: "DE"}}
	controller := NewController(fake, resolver, store, nopSink{}, Options{
		CooldownWindow: 5 * time.Second,
		SettleDelay:    time.Second,
		EndAttempts:    3,
		EndRetryDelay:  500 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		Clock:          clock,
	})
	return controller, fake, store
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnect_Success(t *testing.T) {
	controller, fake, store := newTestController(clockwork.NewFakeClock())

	result, err := controller.Connect(context.Background(), defaultSelection())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !result.Accepted {
		t.Fatal("Connect() rejected")
	}
	if result.State != types.StateConnected {
		t.Errorf("state = %v, want Connected", result.State)
	}
	if result.Session.ID != 101 || result.Session.VirtualAddress != "10.0.0.5" {
		t.Errorf("session = %+v, want server-authoritative ID 101 / 10.0.0.5", result.Session)
	}
	if result.Session.Provisional {
		t.Error("committed session still marked provisional")
	}
	if store.UserDisconnected() {
		t.Error("user-disconnected flag should be cleared by a successful connect")
	}
	if start, _, _ := fake.calls(); start != 1 {
		t.Errorf("start calls = %d, want 1", start)
	}
}

func TestConnect_CooldownRejectsSecondAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, fake, _ := newTestController(clock)

	if _, err := controller.Connect(context.Background(), defaultSelection()); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}

	// Second start within the window: structured rejection, no request.
	result, err := controller.Connect(context.Background(), defaultSelection())
	if err != nil {
		t.Fatalf("second Connect() error = %v, want nil (structured rejection)", err)
	}
	if result.Accepted {
		t.Fatal("second Connect() accepted within cooldown window")
	}
	if !result.Cooldown {
		t.Error("rejection not marked as cooldown")
	}
	if result.RemainingWait <= 0 {
		t.Errorf("RemainingWait = %v, want > 0", result.RemainingWait)
	}
	if start, _, _ := fake.calls(); start != 1 {
		t.Errorf("start calls = %d, want 1 (rejected call must not hit the network)", start)
	}
}

func TestConnect_MutualExclusion(t *testing.T) {
	controller, fake, _ := newTestController(clockwork.NewFakeClock())

	block := make(chan struct{})
	fake.startFn = func(req api.StartRequest) (*types.Session, error) {
		<-block
		return &types.Session{ID: 101, ServerID: req.ServerID, VirtualAddress: "10.0.0.5"}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		controller.Connect(context.Background(), defaultSelection())
	}()

	waitFor(t, func() bool { s, _, _ := fake.calls(); return s == 1 }, "first connect never reached the API")

	result, err := controller.Connect(context.Background(), defaultSelection())
	if err != nil {
		t.Fatalf("concurrent Connect() error = %v, want nil (structured rejection)", err)
	}
	if result.Accepted {
		t.Fatal("concurrent Connect() accepted while another operation is in flight")
	}
	if result.Cooldown {
		t.Error("concurrent rejection misreported as cooldown")
	}
	if start, _, _ := fake.calls(); start != 1 {
		t.Errorf("start calls = %d, want 1", start)
	}

	close(block)
	<-done
}

func TestConnect_FailureRollsBackAndSettles(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, fake, store := newTestController(clock)

	fake.startFn = func(api.StartRequest) (*types.Session, error) {
		return nil, errors.New("connection refused")
	}

	_, err := controller.Connect(context.Background(), defaultSelection())
	if err == nil {
		t.Fatal("Connect() error = nil, want network failure")
	}

	snap := store.Snapshot()
	if snap.State != types.StateDisconnected {
		t.Errorf("state after failure = %v, want Disconnected", snap.State)
	}
	if snap.Session != nil {
		t.Errorf("provisional session survived rollback: %+v", snap.Session)
	}

	// Guard stays held through the settle delay to absorb duplicate UI
	// events, then releases.
	if !controller.Busy() {
		t.Fatal("guard released immediately; want settle delay")
	}
	clock.Advance(time.Second)
	waitFor(t, func() bool { return !controller.Busy() }, "guard never released after settle delay")
}

func TestConnect_AlreadyConnected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, _, _ := newTestController(clock)

	if _, err := controller.Connect(context.Background(), defaultSelection()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	clock.Advance(6 * time.Second) // clear the cooldown
	_, err := controller.Connect(context.Background(), defaultSelection())
	if !errors.Is(err, pkgerrors.ErrAlreadyConnected) {
		t.Errorf("error = %v, want ErrAlreadyConnected", err)
	}
}

func TestDisconnect_IdempotentWhenAlreadyDisconnected(t *testing.T) {
	controller, fake, _ := newTestController(clockwork.NewFakeClock())

	result, err := controller.Disconnect(context.Background())
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !result.Accepted {
		t.Error("no-op disconnect should be accepted")
	}
	if result.State != types.StateDisconnected {
		t.Errorf("state = %v, want Disconnected", result.State)
	}
	if _, end, _ := fake.calls(); end != 0 {
		t.Errorf("end calls = %d, want 0 for a no-op", end)
	}
}

func TestDisconnect_Success(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, fake, store := newTestController(clock)
	store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))

	result, err := controller.Disconnect(context.Background())
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !result.Accepted || result.State != types.StateDisconnected {
		t.Errorf("result = %+v, want accepted Disconnected", result)
	}
	if !store.UserDisconnected() {
		t.Error("user-disconnected flag not set")
	}
	if _, end, _ := fake.calls(); end != 1 {
		t.Errorf("end calls = %d, want 1", end)
	}
}

func TestDisconnect_RetryBudgetExhaustedForcesLocalDisconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, fake, store := newTestController(clock)
	store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))

	fake.endFn = func() error { return errors.New("network unreachable") }

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := controller.Disconnect(context.Background())
		done <- outcome{result, err}
	}()

	// Two retry pauses separate the three attempts.
	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(500 * time.Millisecond)
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("Disconnect() error = %v, want nil (failure is not surfaced)", got.err)
	}
	if got.result.State != types.StateDisconnected {
		t.Errorf("state = %v, want Disconnected despite every attempt failing", got.result.State)
	}
	if _, end, _ := fake.calls(); end != 3 {
		t.Errorf("end calls = %d, want 3", end)
	}
	if snap := store.Snapshot(); snap.State != types.StateDisconnected || snap.Session != nil {
		t.Errorf("store = %+v, want Disconnected with no session", snap)
	}
}

func TestDisconnect_ClearsAddressWhileInFlight(t *testing.T) {
	controller, fake, store := newTestController(clockwork.NewFakeClock())
	store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))

	addressDuringEnd := make(chan string, 1)
	fake.endFn = func() error {
		snap := store.Snapshot()
		address := ""
		if snap.Session != nil {
			address = snap.Session.VirtualAddress
		}
		addressDuringEnd <- address
		return nil
	}

	if _, err := controller.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if address := <-addressDuringEnd; address != "" {
		t.Errorf("virtual address during end request = %q, want cleared", address)
	}
}

func TestDisconnect_StagesSessionReadUnderGuard(t *testing.T) {
	controller, fake, store := newTestController(clockwork.NewFakeClock())
	store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))
	// A later commit supersedes the first; the Disconnecting overlay
	// must be built from the store as it stands once the guard admits
	// the operation, not from an earlier read.
	store.Commit(types.StateConnected, testSession(202, "10.0.0.9"))

	var stagedID int64
	fake.endFn = func() error {
		if snap := store.Snapshot(); snap.Session != nil {
			stagedID = snap.Session.ID
		}
		return nil
	}

	if _, err := controller.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if stagedID != 202 {
		t.Errorf("staged session = %d, want latest confirmed 202", stagedID)
	}
}

func TestChangeAddress_YieldsFreshSession(t *testing.T) {
	controller, fake, store := newTestController(clockwork.NewFakeClock())
	store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))

	fake.startFn = func(req api.StartRequest) (*types.Session, error) {
		return &types.Session{
			ID:             102,
			ServerID:       req.ServerID,
			Protocol:       req.Protocol,
			Encryption:     req.Encryption,
			StartTime:      time.Now(),
			VirtualAddress: "10.0.0.9",
		}, nil
	}

	result, err := controller.ChangeAddress(context.Background())
	if err != nil {
		t.Fatalf("ChangeAddress() error = %v", err)
	}
	if result.Session.ID != 102 || result.Session.VirtualAddress != "10.0.0.9" {
		t.Errorf("session = %+v, want ID 102 / 10.0.0.9", result.Session)
	}
	if result.Session.ID == 101 || result.Session.VirtualAddress == "10.0.0.5" {
		t.Error("change-address returned stale session values")
	}
	if result.Session.ServerID != 7 || result.Session.Protocol != "wireguard" {
		t.Errorf("selection not preserved: %+v", result.Session)
	}

	start, end, _ := fake.calls()
	if end != 1 || start != 1 {
		t.Errorf("calls = %d end, %d start, want 1 and 1", end, start)
	}
}

func TestChangeAddress_RequiresConnected(t *testing.T) {
	controller, fake, _ := newTestController(clockwork.NewFakeClock())

	_, err := controller.ChangeAddress(context.Background())
	if !errors.Is(err, pkgerrors.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
	if start, end, _ := fake.calls(); start != 0 || end != 0 {
		t.Errorf("calls issued for invalid change-address: start=%d end=%d", start, end)
	}
}

func TestChangeAddress_MidFailureAdoptsGroundTruth(t *testing.T) {
	tests := []struct {
		name        string
		current     *types.Session
		wantState   types.ConnectionState
		wantSession int64
	}{
		{
			name:      "server reports nothing",
			current:   nil,
			wantState: types.StateDisconnected,
		},
		{
			name:        "server reports surviving session",
			current:     testSession(150, "10.0.0.77"),
			wantState:   types.StateConnected,
			wantSession: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller, fake, store := newTestController(clockwork.NewFakeClock())
			store.Commit(types.StateConnected, testSession(101, "10.0.0.5"))

			fake.startFn = func(api.StartRequest) (*types.Session, error) {
				return nil, errors.New("gateway timeout")
			}
			fake.currentFn = func() (*types.Session, error) {
				return tt.current, nil
			}

			_, err := controller.ChangeAddress(context.Background())
			if err == nil {
				t.Fatal("ChangeAddress() error = nil, want failure")
			}

			snap := store.Snapshot()
			if snap.State != tt.wantState {
				t.Errorf("state = %v, want %v", snap.State, tt.wantState)
			}
			if tt.wantSession != 0 && (snap.Session == nil || snap.Session.ID != tt.wantSession) {
				t.Errorf("session = %+v, want ID %d", snap.Session, tt.wantSession)
			}

			if _, _, current := fake.calls(); current != 1 {
				t.Errorf("current-session queries = %d, want 1", current)
			}
		})
	}
}

func TestController_FailureHookFiresAfterSettle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	controller, fake, _ := newTestController(clock)

	fired := make(chan struct{}, 1)
	controller.OnFailure(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	fake.startFn = func(api.StartRequest) (*types.Session, error) {
		return nil, fmt.Errorf("boom")
	}

	if _, err := controller.Connect(context.Background(), defaultSelection()); err == nil {
		t.Fatal("Connect() error = nil, want failure")
	}

	// The hook must wait for the settle delay: the reconcile pass it
	// triggers defers to Busy(), so firing earlier would skip the pass.
	select {
	case <-fired:
		t.Fatal("failure hook fired while the guard was still settling")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook never fired after settle delay")
	}
	waitFor(t, func() bool { return !controller.Busy() }, "guard never released after settle delay")
}
