package transportcore

import (
	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/bchan"
	"github.com/relaymesh/bindrpc/pkg/binding"
	"github.com/relaymesh/bindrpc/pkg/lifecycle"
	"github.com/relaymesh/bindrpc/pkg/security"
	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/wire"
)

// ServerTransport is the callee-role side of a transport: unlike
// ClientTransport, it never authorizes its peer at setup time — it sends
// its own SETUP_TRANSPORT unconditionally and moves straight to Ready,
// mirroring Android Binder's server transport, which has no
// handleSetupTransport override at all. It creates an Inbound the first
// time it observes a fresh peer-allocated call-id.
type ServerTransport struct {
	*transportCommon

	listener ServerListener
}

// NewServerTransport wraps ch as the server side of a transport. Start
// sends this side's SETUP_TRANSPORT and makes the transport Ready.
func NewServerTransport(ch bchan.Channel, policy security.Policy, b binding.ServiceBinding, listener ServerListener, log *zap.Logger) *ServerTransport {
	s := &ServerTransport{listener: listener}
	s.transportCommon = newTransportCommon(ch, policy, b, log)
	s.hooks = setupHooks{
		onPeerSetup:              s.onPeerSetup,
		newInboundForUnknownCall: s.newInboundForUnknownCall,
		notifyReady:              func() { s.notifyReadyListener() },
		notifyShutdown:           func(st status.Status) { s.notifyShutdownListener(st) },
		notifyTerminated:         func() { s.notifyTerminatedListener() },
	}
	return s
}

func (s *ServerTransport) notifyReadyListener() {
	if s.listener != nil {
		s.listener.OnTransportReady()
	}
}

func (s *ServerTransport) notifyShutdownListener(st status.Status) {
	if s.listener != nil {
		s.listener.OnTransportShutdown(st)
	}
}

func (s *ServerTransport) notifyTerminatedListener() {
	if s.listener != nil {
		s.listener.OnTransportTerminated()
	}
}

func (s *ServerTransport) newInboundForUnknownCall(callID int32) Inbound {
	if s.listener == nil {
		return nil
	}
	return s.listener.NewInbound(callID)
}

// onPeerSetup only checks the wire version; the server never authorizes
// its peer (that's the client's job, checking the server's uid instead).
func (s *ServerTransport) onPeerSetup(peerVersion int32, peerHandle []byte) status.Status {
	if peerVersion != wire.WireFormatVersion {
		return status.Unavailablef("Wire format version mismatch")
	}
	return status.OKStatus()
}

// Start sends this side's SETUP_TRANSPORT unconditionally and moves
// straight to Ready, without waiting for the peer's own SETUP_TRANSPORT.
// The peer's setup, once it arrives, still runs through onPeerSetup to
// record its version, but by then the server transport is already usable.
func (s *ServerTransport) Start() error {
	s.watchPeerDeath()
	if err := s.fsm.TransitionTo(lifecycle.Setup); err != nil {
		return err
	}
	payload := wire.EncodeSetup(wire.WireFormatVersion, s.channel.LocalHandle())
	if err := s.sendControlOrFail(wire.CodeSetupTransport, payload); err != nil {
		s.Shutdown(status.Unavailablef("transportcore: failed to send SETUP_TRANSPORT: %v", err), true)
		return err
	}
	if s.advanceToReady() && s.hooks.notifyReady != nil {
		s.off.Go(s.hooks.notifyReady)
	}
	return nil
}
