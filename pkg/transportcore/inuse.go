package transportcore

import (
	"sync"

	"github.com/relaymesh/bindrpc/pkg/binding"
)

// inUseTracker fires a ServiceBinding notification on the 0→1 active-call
// transition and another on the 1→0 transition, never once per call. The
// original Binder transport this is modeled on only documents the 1→0 edge
// explicitly; firing on both edges (rather than only ever decrementing) is
// needed for a ServiceBinding to know when to actually acquire a process
// keep-alive, not just when to release one.
type inUseTracker struct {
	mu      sync.Mutex
	count   int
	binding binding.ServiceBinding
	onInUse func(bool)
}

func newInUseTracker(b binding.ServiceBinding) *inUseTracker {
	if b == nil {
		b = binding.NoOp{}
	}
	return &inUseTracker{binding: b}
}

// setListenerHook registers a second callback fired on the same edges as
// the ServiceBinding, for a ClientListener that wants the signal directly
// instead of going through the binding collaborator. ServerTransport never
// calls this, since it has no ClientListener.
func (u *inUseTracker) setListenerHook(f func(bool)) {
	u.mu.Lock()
	u.onInUse = f
	u.mu.Unlock()
}

func (u *inUseTracker) increment() {
	u.mu.Lock()
	u.count++
	becameInUse := u.count == 1
	hook := u.onInUse
	u.mu.Unlock()
	if becameInUse {
		u.binding.OnTransportInUse()
		if hook != nil {
			hook(true)
		}
	}
}

func (u *inUseTracker) decrement() {
	u.mu.Lock()
	if u.count == 0 {
		u.mu.Unlock()
		return
	}
	u.count--
	becameIdle := u.count == 0
	hook := u.onInUse
	u.mu.Unlock()
	if becameIdle {
		u.binding.OnTransportNotInUse()
		if hook != nil {
			hook(false)
		}
	}
}

func (u *inUseTracker) value() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}
