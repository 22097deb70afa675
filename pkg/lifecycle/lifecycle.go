// Package lifecycle implements the five-state transport state machine. Its
// mutex doubles as the transport lock: rather than have the transport core
// keep a second mutex alongside a separate state machine, the FSM's own
// sync.Mutex is the single per-transport lock. The transport core takes
// this lock for every critical section that touches lifecycle state,
// attributes, the sender reference, or outbound control sends, via the
// exported Lock/Unlock pair below.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/relaymesh/bindrpc/pkg/status"
)

// State is one of the five transport lifecycle states.
type State int

const (
	NotStarted State = iota
	Setup
	Ready
	Shutdown
	ShutdownTerminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Setup:
		return "SETUP"
	case Ready:
		return "READY"
	case Shutdown:
		return "SHUTDOWN"
	case ShutdownTerminated:
		return "SHUTDOWN_TERMINATED"
	default:
		return "UNKNOWN"
	}
}

var legalTransitions = map[State]map[State]bool{
	NotStarted: {Setup: true, Ready: true, Shutdown: true},
	Setup:      {Ready: true, Shutdown: true},
	Ready:      {Shutdown: true},
	Shutdown:   {ShutdownTerminated: true},
}

// Hooks lets FSM.Shutdown drive the rest of the transport without importing
// it. The transport core implements this; FSM never touches the call table
// or the underlying channel directly.
type Hooks interface {
	// CallTableEmpty is consulted while the FSM lock is held to decide
	// whether a graceful shutdown can advance straight to termination.
	CallTableEmpty() bool
	// NotifyShutdown is invoked exactly once, for the first shutdown call,
	// while the FSM lock is held.
	NotifyShutdown(st status.Status)
	// DetachReceiver stops further inbound dispatch. Invoked while the FSM
	// lock is held, only on the transition into ShutdownTerminated.
	DetachReceiver()
	// EmitShutdownBestEffort sends SHUTDOWN_TRANSPORT to the peer,
	// swallowing any error. Invoked while the FSM lock is held.
	EmitShutdownBestEffort()
	// DrainAndCloseCalls snapshots and clears the call table and closes
	// every call abnormally with st, then calls NotifyTerminated. Invoked
	// AFTER the FSM lock has been released: closing a call takes the
	// call's own lock, which must never be acquired under the transport
	// lock.
	DrainAndCloseCalls(st status.Status)
}

// FSM is the transport lifecycle state machine and, by construction, the
// transport's single mutex.
type FSM struct {
	mu         sync.Mutex
	state      State
	status     *status.Status
	terminated bool
}

// New returns an FSM in NotStarted.
func New() *FSM { return &FSM{state: NotStarted} }

// Lock/Unlock expose the FSM's mutex as the transport lock for use by the
// transport core's own critical sections (attributes, sender reference,
// control sends) that have nothing to do with state transitions per se but
// must share the same lock domain.
func (f *FSM) Lock()   { f.mu.Lock() }
func (f *FSM) Unlock() { f.mu.Unlock() }

// CurrentState returns the current state, taking the lock itself. Do not
// call this while already holding the lock via Lock(); use
// CurrentStateLocked instead.
func (f *FSM) CurrentState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CurrentStateLocked returns the current state, assuming the caller already
// holds the lock.
func (f *FSM) CurrentStateLocked() State { return f.state }

// TransitionTo performs a guarded transition, taking the lock itself. Any
// transition not present in the legal table is a programming error and
// panics.
func (f *FSM) TransitionTo(next State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionToLocked(next)
}

// TransitionToLocked performs a guarded transition assuming the caller
// already holds the lock.
func (f *FSM) TransitionToLocked(next State) error {
	return f.transitionToLocked(next)
}

func (f *FSM) transitionToLocked(next State) error {
	if !legalTransitions[f.state][next] {
		panic(fmt.Sprintf("lifecycle: illegal transition %s -> %s", f.state, next))
	}
	f.state = next
	return nil
}

// FirstStatus returns the status recorded by the first Shutdown call, or
// false if the transport has never been shut down.
func (f *FSM) FirstStatus() (status.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		return status.Status{}, false
	}
	return *f.status, true
}

// IsTerminated reports whether ShutdownTerminated has been reached.
func (f *FSM) IsTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

// Shutdown implements the transport's shutdown sequence: the first status
// wins, the shutdown-notification hook fires exactly once, and termination
// (receiver detach, best-effort peer notification, call-table drain) is
// only reached once, either because forceTerminate was requested or because
// the call table was already empty. It manages its own locking so that the
// call-closing hook always runs with the FSM lock released.
func (f *FSM) Shutdown(hooks Hooks, st status.Status, forceTerminate bool) {
	f.mu.Lock()

	firstShutdown := f.status == nil
	if firstShutdown {
		recorded := st
		f.status = &recorded
		_ = f.transitionToLocked(Shutdown)
	}
	reported := *f.status

	shouldTerminate := !f.terminated && (forceTerminate || hooks.CallTableEmpty())

	if firstShutdown {
		hooks.NotifyShutdown(reported)
	}

	if shouldTerminate {
		f.terminated = true
		hooks.DetachReceiver()
		_ = f.transitionToLocked(ShutdownTerminated)
		hooks.EmitShutdownBestEffort()
	}

	f.mu.Unlock()

	if shouldTerminate {
		hooks.DrainAndCloseCalls(reported)
	}
}
