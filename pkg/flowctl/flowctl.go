// Package flowctl implements byte-granular sliding-window flow control: it
// tracks sent/received/acked byte counters, decides when the transmit
// window is full, and decides when an acknowledgement is owed to the peer.
//
// The four counters follow the same shape as an atomic-counters-under-a-
// narrow-lock store: bumped off a private lock scoped to just the acked
// values, using signed byte counters so WrapAwareMax's subtraction is
// well-defined.
package flowctl

import (
	"sync"
	"sync/atomic"
)

// Default window sizes.
const (
	TransmitWindowBytes = int64(128 * 1024) // W_OUT
	AckThresholdBytes   = int64(16 * 1024)  // W_ACK
)

// Controller owns the four monotonically increasing byte counters for one
// transport. bytesSent and bytesReceived are updated from the stream fast
// path without the transport lock, so they are plain atomics. The acked
// counters are written only by OnPeerAck and EmitAck and are protected by a
// private mutex, not the transport's own lock; RecordSent/RecordReceived
// take that private mutex briefly to read the acked value, so the per-call
// fast path never reaches for the transport lock and the acked fields are
// never read torn.
type Controller struct {
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64

	mu                 sync.Mutex
	bytesSentAcked     int64
	bytesReceivedAcked int64

	transmitWindowFull atomic.Bool
}

// New returns a Controller with all counters at zero.
func New() *Controller { return &Controller{} }

// RecordSent adds n to bytes_sent and updates the transmit-window-full flag.
// Called from the outbound send path with no transport lock held: the
// caller holds only its own per-call lock.
func (c *Controller) RecordSent(n int) int64 {
	newVal := c.bytesSent.Add(int64(n))
	c.mu.Lock()
	acked := c.bytesSentAcked
	c.mu.Unlock()
	if newVal-acked > TransmitWindowBytes {
		c.transmitWindowFull.Store(true)
	}
	return newVal
}

// RecordReceived adds n to bytes_received and reports whether the received-
// but-unacked delta now exceeds the ack threshold.
func (c *Controller) RecordReceived(n int) (newVal int64, shouldAck bool) {
	newVal = c.bytesReceived.Add(int64(n))
	c.mu.Lock()
	acked := c.bytesReceivedAcked
	c.mu.Unlock()
	return newVal, newVal-acked > AckThresholdBytes
}

// OnPeerAck advances bytes_sent_acked using WrapAwareMax and reports whether
// the transmit window just transitioned from full to not-full. The caller
// (TransportCore) is responsible for waking calls outside the transport
// lock when this returns true — FlowController has no notion of CallTable.
func (c *Controller) OnPeerAck(peerReported int64) (windowJustCleared bool) {
	c.mu.Lock()
	c.bytesSentAcked = WrapAwareMax(c.bytesSentAcked, peerReported)
	acked := c.bytesSentAcked
	c.mu.Unlock()

	sent := c.bytesSent.Load()
	stillFull := sent-acked > TransmitWindowBytes
	if !stillFull {
		return c.transmitWindowFull.CompareAndSwap(true, false)
	}
	return false
}

// EmitAck snapshots bytes_received into bytes_received_acked and returns the
// snapshot to be encoded into the outbound ACKNOWLEDGE_BYTES transaction.
// Called under the transport lock.
func (c *Controller) EmitAck() int64 {
	v := c.bytesReceived.Load()
	c.mu.Lock()
	c.bytesReceivedAcked = v
	c.mu.Unlock()
	return v
}

// IsReady reports whether the transmit window currently has room. Readable
// from any goroutine without holding any lock.
func (c *Controller) IsReady() bool { return !c.transmitWindowFull.Load() }

// BytesSent, BytesReceived, BytesSentAcked and BytesReceivedAcked expose the
// raw counters for logging/metrics/tests.
func (c *Controller) BytesSent() int64     { return c.bytesSent.Load() }
func (c *Controller) BytesReceived() int64 { return c.bytesReceived.Load() }
func (c *Controller) BytesSentAcked() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesSentAcked
}
func (c *Controller) BytesReceivedAcked() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesReceivedAcked
}

// WrapAwareMax implements a monotone update rule: signed subtraction
// tolerates ack reordering while still never regressing.
func WrapAwareMax(a, b int64) int64 {
	if a-b < 0 {
		return b
	}
	return a
}
