// Package ping implements liveness probing: each ClientTransport.Ping call
// sends a PING transaction carrying a locally chosen id, and Tracker
// measures round-trip time when the peer's PING_RESPONSE for that id comes
// back; nothing sends pings on a timer. Completion
// callbacks are dispatched through an Executor so that Tracker never calls
// back into the transport core directly from whatever goroutine delivered
// the pong.
package ping

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/wire"
)

// Executor runs a callback asynchronously. TransportCore's offload helper
// satisfies this.
type Executor interface {
	Go(func())
}

// Result describes the outcome of one ping, delivered to whichever callback
// StartPing was given. CorrelationID is a local-only tracing aid — never
// put on the wire, where the ping is identified by the 32-bit id alone —
// for stitching a result back to the log line that reported the send.
type Result struct {
	ID            int32
	CorrelationID string
	RTT           time.Duration
	Err           error
}

type outstandingPing struct {
	sentAt        time.Time
	correlationID string
	cb            func(Result)
}

// Tracker tracks outstanding pings for one transport.
type Tracker struct {
	exec     Executor
	onResult func(Result)

	nextID atomic.Int32

	mu          sync.Mutex
	outstanding map[int32]outstandingPing
}

// New returns a Tracker that dispatches completions through exec. onResult
// is the fallback sink for pings started without their own callback.
func New(exec Executor, onResult func(Result)) *Tracker {
	return &Tracker{
		exec:        exec,
		onResult:    onResult,
		outstanding: make(map[int32]outstandingPing),
	}
}

// StartPing allocates a fresh ping id, records the send time, and returns
// the wire payload for a PING transaction. cb, if non-nil, receives this
// specific ping's Result instead of the Tracker's default onResult sink,
// letting a caller observe its own round trip or cancellation.
func (t *Tracker) StartPing(cb func(Result)) (id int32, payload []byte) {
	id = t.nextID.Add(1)
	t.mu.Lock()
	t.outstanding[id] = outstandingPing{
		sentAt:        time.Now(),
		correlationID: uuid.New().String(),
		cb:            cb,
	}
	t.mu.Unlock()
	return id, wire.EncodePingID(id)
}

// OnPingResponse decodes a PING_RESPONSE payload, computes RTT for a
// matching outstanding ping, and dispatches the result via the executor. An
// id with no matching outstanding ping (duplicate or post-cancel response)
// is ignored.
func (t *Tracker) OnPingResponse(payload []byte) error {
	id, err := wire.DecodePingID(payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	entry, ok := t.outstanding[id]
	if ok {
		delete(t.outstanding, id)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	rtt := time.Since(entry.sentAt)
	t.dispatch(Result{ID: id, CorrelationID: entry.correlationID, RTT: rtt}, entry.cb)
	return nil
}

// Outstanding returns the number of pings sent but not yet answered, for
// metrics and tests.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outstanding)
}

// CancelAll fails every outstanding ping with st, as part of transport
// shutdown. Safe to call more than once; a second call finds nothing left.
func (t *Tracker) CancelAll(st status.Status) {
	t.mu.Lock()
	entries := t.outstanding
	t.outstanding = make(map[int32]outstandingPing)
	t.mu.Unlock()

	for id, entry := range entries {
		t.dispatch(Result{ID: id, CorrelationID: entry.correlationID, Err: st}, entry.cb)
	}
}

func (t *Tracker) dispatch(r Result, cb func(Result)) {
	handler := cb
	if handler == nil {
		handler = t.onResult
	}
	if handler == nil {
		return
	}
	if t.exec != nil {
		t.exec.Go(func() { handler(r) })
		return
	}
	handler(r)
}
