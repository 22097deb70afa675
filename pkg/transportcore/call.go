package transportcore

import (
	"sync"

	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/wire"
)

// call is the per-call-id bookkeeping the call table holds one of. Its
// mutex is the call lock: it must never be acquired while the transport
// lock is held, so call methods never call back into the transport while
// holding c.mu.
type call struct {
	id int32
	t  *transportCommon

	mu      sync.Mutex
	inbound Inbound
	closed  bool
}

func newCall(t *transportCommon, id int32, inbound Inbound) *call {
	return &call{id: id, t: t, inbound: inbound}
}

func (c *call) CallID() int32 { return c.id }

// SendData writes one application frame for this call. It takes only the
// call lock, never the transport lock, so it can run concurrently with
// setup/shutdown/ack handling on other calls. The frame is emitted first
// and only counted against the transmit window once the send has actually
// gone out, so a failed Transact never inflates bytes_sent against a peer
// that never received it.
func (c *call) SendData(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return status.Err(status.FailedPreconditionf("transportcore: call %d already closed", c.id))
	}
	c.mu.Unlock()

	if err := c.t.channel.Transact(c.id, wire.EncodeStreamFrame(0, data)); err != nil {
		return err
	}
	c.t.flow.RecordSent(len(data))
	return nil
}

// IsReady reports whether the transport's transmit window currently has
// room, so a caller can check before SendData without taking any lock
// beyond what flowctl.Controller itself uses internally.
func (c *call) IsReady() bool { return c.t.flow.IsReady() }

// Close ends the call locally: it is removed from the call table and an
// out-of-band close frame is sent best-effort so the peer learns about it
// without carrying an application status on the wire.
func (c *call) Close(st status.Status) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.t.unregisterCall(c.id)
	c.t.sendControlBestEffort(c.id, wire.EncodeStreamFrame(wire.FlagOutOfBandClose, nil))
	return nil
}

// deliverData reads the call's state under the call lock, then dispatches
// one inbound frame to the Inbound with the lock released. Called
// directly from the channel's receive path, which already serializes
// frames for a given call-id, so no further queuing is needed to preserve
// order.
func (c *call) deliverData(data []byte) {
	c.mu.Lock()
	closed := c.closed
	inbound := c.inbound
	c.mu.Unlock()
	if closed || inbound == nil {
		return
	}
	_ = inbound.OnStreamData(data)
}

// deliverClose marks the call closed under the call lock, then dispatches
// terminal closure to the Inbound with the lock released. Safe to call more
// than once; only the first delivery reaches the Inbound.
func (c *call) deliverClose(st status.Status, outOfBand bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	inbound := c.inbound
	c.mu.Unlock()
	if inbound != nil {
		inbound.OnStreamClose(st, outOfBand)
	}
}

// notifyTransportReady reads the call's state under the call lock, then
// dispatches the transmit-window-cleared hint with the lock released.
func (c *call) notifyTransportReady() {
	c.mu.Lock()
	closed := c.closed
	inbound := c.inbound
	c.mu.Unlock()
	if !closed && inbound != nil {
		inbound.OnTransportReady()
	}
}

// failedOutbound is handed back by registerOutboundCall when the call-id it
// was given collides with one already live: the transport is already being
// shut down at that point, so every operation on the handle just reports
// the same failure instead of touching a call table it was never inserted
// into.
type failedOutbound struct {
	id  int32
	err error
}

func (f *failedOutbound) CallID() int32             { return f.id }
func (f *failedOutbound) SendData([]byte) error     { return f.err }
func (f *failedOutbound) Close(status.Status) error { return f.err }
func (f *failedOutbound) IsReady() bool             { return false }
