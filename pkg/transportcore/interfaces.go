package transportcore

import "github.com/relaymesh/bindrpc/pkg/status"

// Inbound receives events for one call, whichever side initiated it. A
// caller gets its own Inbound registered against a call-id it allocated; a
// callee gets one handed back from its ServerListener.NewInbound.
type Inbound interface {
	// OnStreamData delivers one application-level frame for this call, in
	// the order the peer sent them.
	OnStreamData(data []byte) error
	// OnStreamClose delivers terminal closure for this call. outOfBand is
	// true when the peer tore the call down with an out-of-band close frame,
	// without an application-level status; a call closed by the transport's
	// own shutdown drain gets the shutdown status with outOfBand false.
	OnStreamClose(st status.Status, outOfBand bool)
	// OnTransportReady is called when the transport's transmit window
	// transitions from full back to having room, a hint this call may want
	// to resume sending.
	OnTransportReady()
}

// Outbound is the send-side handle a caller uses to drive one call.
type Outbound interface {
	CallID() int32
	SendData(data []byte) error
	Close(st status.Status) error
	// IsReady reports whether the transport's transmit window currently
	// has room. A caller with a lot to send should check this under its
	// own lock before calling SendData rather than discovering backpressure
	// only after the fact; when it returns false, wait for
	// Inbound.OnTransportReady before trying again.
	IsReady() bool
}

// ClientListener receives lifecycle notifications for a client-role
// transport.
type ClientListener interface {
	OnTransportReady()
	OnTransportShutdown(st status.Status)
	OnTransportTerminated()
	// TransportInUse reports the 0→1 and 1→0 edges of the transport's
	// active-call count, the same edges its ServiceBinding is notified of,
	// for a caller that wants to react to in-use state without owning the
	// binding itself.
	TransportInUse(inUse bool)
}

// ServerListener receives lifecycle notifications for a server-role
// transport, plus the hook that creates an Inbound the first time a fresh
// peer-allocated call-id is observed.
type ServerListener interface {
	OnTransportReady()
	OnTransportShutdown(st status.Status)
	OnTransportTerminated()
	// NewInbound is called when a stream frame arrives for a call-id with
	// no existing registration. A non-nil return is registered, so later
	// frames for that id go to it. A nil return drops the frame, and the
	// next frame for the same id calls NewInbound again.
	NewInbound(callID int32) Inbound
}
