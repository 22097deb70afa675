// Package bchan defines the abstract underlying channel the transport core
// is built on: an ordered, one-way message-passing primitive between two
// endpoints, with receiver-object handoff at setup time and peer-death
// observation. This package only names the interfaces the transport core
// depends on, plus the in-process reference implementation in
// bchan/localchan.
package bchan

import "errors"

// ErrClosed is a sentinel a Channel implementation can return from Transact
// once the channel has been closed. localchan does not use it: its Transact
// reports the pipe's own write error. WatchPeerDeath does not return it for
// an already-dead peer; it runs the callback instead (see DeathWatcher).
var ErrClosed = errors.New("bchan: channel closed")

// Receiver dispatches inbound transactions delivered on a Channel. A
// Channel holds at most one Receiver at a time; TransportCore installs
// itself when the transport is constructed, before Start.
type Receiver interface {
	// OnTransaction is invoked once per inbound transaction, in the order
	// the peer sent them. code distinguishes control transactions
	// (wire.CodeSetupTransport and friends) from ordinary stream frames.
	OnTransaction(code int32, data []byte) error
}

// DeathWatcher lets a caller register for notification when the remote end
// of a Channel is gone, mirroring Android Binder's death-recipient model.
type DeathWatcher interface {
	// WatchPeerDeath registers cb to run once, asynchronously, when the
	// peer becomes unreachable. If the peer is already dead, cb still
	// fires exactly once, asynchronously. The returned cancel function
	// removes the registration; it is a no-op after cb has already run.
	WatchPeerDeath(cb func()) (cancel func(), err error)
}

// UIDSource is an optional interface a Channel implementation can satisfy
// to expose the peer's caller uid the way the kernel supplies it for a real
// Binder transaction: out-of-band from the payload, and not something the
// peer process can spoof by writing a different value into a message.
// TransportCore's setup handshake consults this, when present, instead of
// trusting any uid carried in the SETUP_TRANSPORT payload itself.
type UIDSource interface {
	CallingUID() int32
}

// LocalUIDSource is the local-identity counterpart to UIDSource: a Channel
// implementation can expose the uid it presents to its peer, so the
// transport core can compare "who is the peer" against "who am I" when
// attributing a PRIVACY_AND_INTEGRITY-vs-INTEGRITY security level to the
// connection. Optional for the same reason UIDSource is: not every Channel
// has a uid concept at all.
type LocalUIDSource interface {
	LocalUID() int32
}

// Channel is the ordered, one-way transport primitive the transport core
// multiplexes RPC calls over. A Transport is built on one Channel: it sends
// with Transact and receives through the installed Receiver. The two
// Channels of a localchan.NewPair are the two ends of one connection.
type Channel interface {
	DeathWatcher

	// Transact sends one message carrying an opaque transaction code and
	// payload. Transact does not block on the peer's processing of the
	// message; it only blocks as long as it takes to hand the message to
	// the channel's own send path.
	Transact(code int32, data []byte) error

	// SetReceiver installs the Receiver that OnTransaction deliveries are
	// dispatched to. Deliveries are not ordered against the moment
	// SetReceiver is called; TransportCore installs its Receiver before
	// any setup traffic can arrive.
	SetReceiver(r Receiver)

	// LocalHandle returns an opaque, implementation-defined encoding of a
	// reference to this Channel's receiver-object, suitable for embedding
	// in a SETUP_TRANSPORT payload and decoding back into a Channel by the
	// peer. What the bytes mean is entirely up to the implementation; the
	// wire codec never interprets them.
	LocalHandle() []byte

	// Close tears down the channel. Close is idempotent.
	Close() error
}
