package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tunlink/internal/core"
	"tunlink/internal/core/types"
	"tunlink/internal/notify"
)

// Guard exposes the controller's in-flight state. The reconciler consults
// it and defers whenever an operation is outstanding; it never mutates it.
type Guard interface {
	Busy() bool
}

// SessionSource is the slice of the session API the reconciler needs.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*types.Session, error)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval between scheduled passes.
	Interval time.Duration
	// RequestTimeout bounds the current-session fetch.
	RequestTimeout time.Duration
}

// DefaultConfig returns default reconciler configuration
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Reconciler corrects drift between the local store and the server's view
// of the session: failed retries, missed responses, or another client
// acting on the same account. It runs on a fixed interval and immediately
// after controller failures.
type Reconciler struct {
	scheduler gocron.Scheduler
	source    SessionSource
	store     *core.StateStore
	guard     Guard
	sink      notify.Sink
	config    Config
	running   bool

	// passMu collapses overlapping passes: a triggered pass racing a
	// scheduled one simply finds the lock held and skips.
	passMu sync.Mutex
}

// New creates a new reconciler
func New(source SessionSource, store *core.StateStore, guard Guard, sink notify.Sink, config Config) (*Reconciler, error) {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if sink == nil {
		sink = notify.LogSink{}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Reconciler{
		scheduler: scheduler,
		source:    source,
		store:     store,
		guard:     guard,
		sink:      sink,
		config:    config,
	}, nil
}

// Start starts the periodic reconciliation job.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.running {
		return fmt.Errorf("reconciler is already running")
	}

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.config.Interval),
		gocron.NewTask(func() {
			if err := r.Reconcile(ctx); err != nil {
				log.Printf("Reconcile pass failed: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconcile job: %w", err)
	}

	r.scheduler.Start()
	r.running = true
	return nil
}

// Stop stops the periodic job.
func (r *Reconciler) Stop() error {
	if !r.running {
		return fmt.Errorf("reconciler is not running")
	}
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	r.running = false
	return nil
}

// IsRunning returns whether the periodic job is running.
func (r *Reconciler) IsRunning() bool {
	return r.running
}

// TriggerNow runs a pass on its own goroutine, typically right after a
// controller failure. Concurrent triggers collapse into one pass.
func (r *Reconciler) TriggerNow() {
	go func() {
		if err := r.Reconcile(context.Background()); err != nil {
			log.Printf("Triggered reconcile failed: %v", err)
		}
	}()
}

// Reconcile performs one pass: fetch the server's current session and
// correct the local store where they diverge. The pass is skipped while a
// controller operation is in flight; corrective writes must not race an
// optimistic update that is about to be committed or discarded.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.passMu.TryLock() {
		return nil
	}
	defer r.passMu.Unlock()

	if r.guard.Busy() {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	current, err := r.source.CurrentSession(reqCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch current session: %w", err)
	}

	// A pass that started before an operation must not write after it.
	if r.guard.Busy() {
		return nil
	}

	snap := r.store.Confirmed()

	switch {
	case current.Active() && snap.State == types.StateDisconnected:
		if r.store.UserDisconnected() {
			// The user asked for this session to end; leave it to the
			// next explicit connect rather than resurrecting it.
			return nil
		}
		log.Printf("Reconcile: server reports session %d while local state is Disconnected; adopting", current.ID)
		r.store.Adopt(current)
		r.sink.Connected(current)

	case !current.Active() && snap.State == types.StateConnected:
		log.Printf("Reconcile: server reports no session while local state is Connected; clearing")
		r.store.Clear()
		r.sink.Disconnected(true)

	case current.Active() && snap.State == types.StateConnected && snap.Session != nil && current.ID != snap.Session.ID:
		// Same state, different session: another client rotated it.
		log.Printf("Reconcile: local session %d superseded by %d; adopting", snap.Session.ID, current.ID)
		r.store.Adopt(current)
	}

	return nil
}
