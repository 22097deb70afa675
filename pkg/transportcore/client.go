package transportcore

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/attrs"
	"github.com/relaymesh/bindrpc/pkg/bchan"
	"github.com/relaymesh/bindrpc/pkg/binding"
	"github.com/relaymesh/bindrpc/pkg/lifecycle"
	"github.com/relaymesh/bindrpc/pkg/ping"
	"github.com/relaymesh/bindrpc/pkg/security"
	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/wire"
)

// ClientTransport is the caller-role side of a transport: it initiates the
// setup handshake and allocates call-ids for calls it starts.
type ClientTransport struct {
	*transportCommon

	listener   ClientListener
	nextCallID atomic.Int32
}

// NewClientTransport wraps ch as the client side of a transport. Start must
// be called before any calls can be issued.
func NewClientTransport(ch bchan.Channel, policy security.Policy, b binding.ServiceBinding, listener ClientListener, log *zap.Logger) *ClientTransport {
	c := &ClientTransport{listener: listener}
	c.transportCommon = newTransportCommon(ch, policy, b, log)
	c.nextCallID.Store(wire.FirstCallID - 1)
	c.hooks = setupHooks{
		onPeerSetup:              c.onPeerSetup,
		newInboundForUnknownCall: nil,
		notifyReady:              c.listenerOrNop(func(l ClientListener) { l.OnTransportReady() }),
		notifyShutdown:           func(st status.Status) { c.notifyShutdownListener(st) },
		notifyTerminated:         func() { c.notifyTerminatedListener() },
	}
	c.inUse.setListenerHook(func(inUse bool) {
		if c.listener != nil {
			c.listener.TransportInUse(inUse)
		}
	})
	return c
}

func (c *ClientTransport) listenerOrNop(f func(ClientListener)) func() {
	return func() {
		if c.listener != nil {
			f(c.listener)
		}
	}
}

func (c *ClientTransport) notifyShutdownListener(st status.Status) {
	if c.listener != nil {
		c.listener.OnTransportShutdown(st)
	}
}

func (c *ClientTransport) notifyTerminatedListener() {
	if c.listener != nil {
		c.listener.OnTransportTerminated()
	}
}

// onPeerSetup authorizes the server's SETUP_TRANSPORT: the client is the
// only side of the handshake that runs a security.Policy check, mirroring
// Android Binder's client transport, which alone overrides
// handleSetupTransport to call checkSecurityPolicy against the peer it is
// binding to. The server never authorizes the client at setup time.
func (c *ClientTransport) onPeerSetup(peerVersion int32, peerHandle []byte) status.Status {
	if peerVersion != wire.WireFormatVersion {
		return status.Unavailablef("Wire format version mismatch")
	}

	uid, haveUID := c.remoteUID()
	if haveUID {
		if st := c.policy.Check(uid); !st.IsOK() {
			return st
		}
		c.fsm.Lock()
		c.attrs.Set(attrs.KeyRemoteUID, uid)
		c.attrs.Set(attrs.KeySecurityLevel, c.securityLevelFor(uid))
		c.fsm.Unlock()
	}
	return status.OKStatus()
}

// Ping sends a liveness probe to the peer: it allocates a fresh ping id via
// the tracker, then sends it as a PING transaction. callback, if non-nil,
// is invoked with this ping's ping.Result once the peer's PING_RESPONSE
// arrives, or when Shutdown cancels every outstanding ping; a nil callback
// leaves the outcome to the transport's own debug logging. Ping fails with
// FailedPrecondition outside the Ready state.
func (c *ClientTransport) Ping(callback func(ping.Result)) (id int32, err error) {
	if c.CurrentState() != lifecycle.Ready {
		return 0, status.Err(status.FailedPreconditionf("transportcore: ping issued outside Ready state"))
	}
	id, payload := c.ping.StartPing(callback)
	if err := c.sendControlOrFail(wire.CodePing, payload); err != nil {
		return id, err
	}
	return id, nil
}

// Start sends the local SETUP_TRANSPORT and moves the transport into Setup.
// The transition to Ready happens asynchronously once the peer's own
// SETUP_TRANSPORT is observed.
func (c *ClientTransport) Start() error {
	c.watchPeerDeath()
	if err := c.fsm.TransitionTo(lifecycle.Setup); err != nil {
		return err
	}
	payload := wire.EncodeSetup(wire.WireFormatVersion, c.channel.LocalHandle())
	if err := c.sendControlOrFail(wire.CodeSetupTransport, payload); err != nil {
		c.Shutdown(status.Unavailablef("transportcore: failed to send SETUP_TRANSPORT: %v", err), true)
		return err
	}
	return nil
}

// NewCall allocates a fresh outbound call-id and registers inbound as its
// reply sink.
func (c *ClientTransport) NewCall(inbound Inbound) Outbound {
	id := c.allocateCallID()
	return c.registerOutboundCall(id, inbound)
}

func (c *ClientTransport) allocateCallID() int32 {
	for {
		old := c.nextCallID.Load()
		next := old + 1
		if next > wire.LastCallID || next < wire.FirstCallID {
			next = wire.FirstCallID
		}
		if c.nextCallID.CompareAndSwap(old, next) {
			return next
		}
	}
}
