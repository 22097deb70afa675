// Package transportcore implements the ordered, multiplexed, flow-controlled
// RPC transport built on top of a bchan.Channel pair: setup handshake,
// per-call dispatch, credit-based flow control and the five-state lifecycle,
// generalized from ClientTransport/ServerTransport role asymmetry into one
// shared transportCommon core.
package transportcore

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/attrs"
	"github.com/relaymesh/bindrpc/pkg/bchan"
	"github.com/relaymesh/bindrpc/pkg/binding"
	"github.com/relaymesh/bindrpc/pkg/calltable"
	"github.com/relaymesh/bindrpc/pkg/flowctl"
	"github.com/relaymesh/bindrpc/pkg/lifecycle"
	"github.com/relaymesh/bindrpc/pkg/observability"
	"github.com/relaymesh/bindrpc/pkg/ping"
	"github.com/relaymesh/bindrpc/pkg/security"
	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/wire"
)

// setupHooks lets ClientTransport/ServerTransport plug their
// role-asymmetric behavior into the shared core without transportCommon
// needing to know which role it's running.
type setupHooks struct {
	// onPeerSetup validates the peer's SETUP_TRANSPORT payload (version,
	// decoded handle) and returns the status to report if it's rejected.
	onPeerSetup func(peerVersion int32, peerHandle []byte) status.Status
	// newInboundForUnknownCall creates the Inbound for a call-id seen for
	// the first time. The client role returns nil (replies always target
	// a call-id the client itself allocated); the server role delegates to
	// its ServerListener.
	newInboundForUnknownCall func(callID int32) Inbound
	// notifyReady, notifyShutdown and notifyTerminated adapt the shared
	// core's lifecycle events to whichever *Listener interface the role
	// exposes publicly.
	notifyReady      func()
	notifyShutdown   func(status.Status)
	notifyTerminated func()
}

// transportCommon is embedded by both ClientTransport and ServerTransport.
type transportCommon struct {
	fsm    *lifecycle.FSM
	flow   *flowctl.Controller
	calls  *calltable.Table[*call]
	ping   *ping.Tracker
	inUse  *inUseTracker
	attrs  *attrs.Set
	log    *zap.Logger
	off    *offloader
	policy security.Policy

	channel bchan.Channel

	localVersion atomic.Int32
	peerVersion  atomic.Int32

	hooks       setupHooks
	cancelDeath func()
}

func newTransportCommon(ch bchan.Channel, policy security.Policy, b binding.ServiceBinding, log *zap.Logger) *transportCommon {
	if log == nil {
		log = zap.NewNop()
	}
	if policy == nil {
		policy = security.AllowAll{}
	}
	t := &transportCommon{
		fsm:     lifecycle.New(),
		flow:    flowctl.New(),
		calls:   calltable.New[*call](),
		attrs:   attrs.New(),
		log:     log,
		off:     newOffloader(log),
		policy:  policy,
		channel: ch,
	}
	t.inUse = newInUseTracker(b)
	t.localVersion.Store(wire.WireFormatVersion)
	t.ping = ping.New(t.off, t.onPingResult)
	ch.SetReceiver((*transactionReceiver)(t))
	return t
}

// Attrs exposes the transport's attribute set, e.g. the peer's uid once
// setup has completed.
func (t *transportCommon) Attrs() *attrs.Set { return t.attrs }

// CurrentState reports the lifecycle state.
func (t *transportCommon) CurrentState() lifecycle.State { return t.fsm.CurrentState() }

// remoteUID resolves the peer's caller uid via bchan.UIDSource when the
// concrete Channel implementation supports it. Channels that don't (e.g. a
// transport over a medium with no notion of process identity) leave the
// security check with nothing to authorize against, so it is skipped.
func (t *transportCommon) remoteUID() (int32, bool) {
	src, ok := t.channel.(bchan.UIDSource)
	if !ok {
		return 0, false
	}
	return src.CallingUID(), true
}

// localUID resolves this side's own uid via bchan.LocalUIDSource, when the
// concrete Channel implementation supports it. Used only to attribute a
// security level once the peer's uid is known; a Channel with no uid
// concept at all leaves the comparison unresolvable, not an error.
func (t *transportCommon) localUID() (int32, bool) {
	src, ok := t.channel.(bchan.LocalUIDSource)
	if !ok {
		return 0, false
	}
	return src.LocalUID(), true
}

// securityLevelFor attributes PRIVACY_AND_INTEGRITY when the peer's uid
// equals this side's own uid (the two ends are the same principal) and
// INTEGRITY otherwise — the same distinction a Binder transport draws
// between same-uid and cross-uid connections.
func (t *transportCommon) securityLevelFor(remoteUID int32) attrs.SecurityLevel {
	if local, ok := t.localUID(); ok && local == remoteUID {
		return attrs.SecurityLevelPrivacyAndIntegrity
	}
	return attrs.SecurityLevelIntegrity
}

// advanceToReady moves the FSM straight from Setup to Ready, used by
// ServerTransport.Start to become usable without waiting on the peer's own
// SETUP_TRANSPORT. Guarded against the peer's setup racing in and reaching
// Ready first via completeSetup: only the call that actually performs the
// transition should announce it.
func (t *transportCommon) advanceToReady() bool {
	t.fsm.Lock()
	defer t.fsm.Unlock()
	if t.fsm.CurrentStateLocked() != lifecycle.Setup {
		return false
	}
	_ = t.fsm.TransitionToLocked(lifecycle.Ready)
	return true
}

// watchPeerDeath links the underlying channel's death notification to a
// forced shutdown, mirroring a Binder death recipient. If the watcher can't
// even be installed — the peer is already gone before Start ever runs — the
// transport has no other way to learn that, since nothing else times it out
// of Setup, so it shuts itself down right here instead of waiting forever.
func (t *transportCommon) watchPeerDeath() {
	cancel, err := t.channel.WatchPeerDeath(func() {
		t.Shutdown(status.Unavailablef("transportcore: peer process died"), true)
	})
	if err != nil {
		t.Shutdown(status.Unavailablef("transportcore: failed to watch peer death: %v", err), true)
		return
	}
	t.cancelDeath = cancel
}

// transactionReceiver adapts transportCommon to bchan.Receiver without
// exporting HandleTransaction as part of transportCommon's own method set
// (which would otherwise be reachable from outside the package through an
// embedding ClientTransport/ServerTransport).
type transactionReceiver transportCommon

func (r *transactionReceiver) OnTransaction(code int32, data []byte) error {
	return (*transportCommon)(r).handleTransaction(code, data)
}

func (t *transportCommon) handleTransaction(code int32, data []byte) error {
	switch {
	case code == wire.CodeSetupTransport:
		return t.handleSetup(data)
	case code == wire.CodeShutdownTransport:
		return t.handlePeerShutdown()
	case code == wire.CodeAcknowledgeBytes:
		return t.handleAck(data)
	case code == wire.CodePing:
		return t.handlePing(data)
	case code == wire.CodePingResponse:
		return t.ping.OnPingResponse(data)
	case code >= wire.FirstCallID:
		return t.handleStream(code, data)
	default:
		return status.Err(status.Internalf("transportcore: unrecognized transaction code %d", code))
	}
}

func (t *transportCommon) handleSetup(payload []byte) error {
	peerVersion, peerHandle, err := wire.DecodeSetup(payload)
	if err != nil {
		t.Shutdown(status.Internalf("transportcore: malformed SETUP_TRANSPORT: %v", err), true)
		return err
	}
	t.peerVersion.Store(peerVersion)

	if t.hooks.onPeerSetup == nil {
		t.completeSetup(status.OKStatus())
		return nil
	}

	// A SecurityPolicy that declares itself NonBlocking runs inline, right
	// here on the channel's own dispatch goroutine, saving a hop through
	// the executor for the common case of a cheap in-memory check. Anything
	// else is dispatched off this goroutine so a slow policy can never
	// stall delivery of other transactions.
	if nb, ok := t.policy.(security.NonBlocking); ok && nb.NonBlocking() {
		t.completeSetup(t.hooks.onPeerSetup(peerVersion, peerHandle))
		return nil
	}

	t.off.Go(func() {
		t.completeSetup(t.hooks.onPeerSetup(peerVersion, peerHandle))
	})
	return nil
}

func (t *transportCommon) completeSetup(st status.Status) {
	if !st.IsOK() {
		t.Shutdown(st, true)
		return
	}

	t.fsm.Lock()
	cur := t.fsm.CurrentStateLocked()
	reachedReady := false
	if cur == lifecycle.NotStarted || cur == lifecycle.Setup {
		if cur == lifecycle.NotStarted {
			_ = t.fsm.TransitionToLocked(lifecycle.Setup)
		}
		_ = t.fsm.TransitionToLocked(lifecycle.Ready)
		reachedReady = true
	}
	t.fsm.Unlock()

	// Only fire notifyReady for the transition this call actually drove.
	// A server transport reaches Ready straight from Start and fires the
	// notification itself; the client's SETUP_TRANSPORT arriving afterward
	// still runs through here (to record its version) but must not
	// re-announce readiness.
	if reachedReady && t.hooks.notifyReady != nil {
		t.off.Go(t.hooks.notifyReady)
	}
}

func (t *transportCommon) handlePeerShutdown() error {
	t.Shutdown(status.Unavailablef("transportcore: peer sent SHUTDOWN_TRANSPORT"), true)
	return nil
}

func (t *transportCommon) handleAck(payload []byte) error {
	total, err := wire.DecodeAcknowledgeBytes(payload)
	if err != nil {
		return err
	}
	if t.flow.OnPeerAck(total) {
		snapshot := t.calls.Snapshot()
		t.off.Go(func() {
			for _, c := range snapshot {
				c.notifyTransportReady()
			}
		})
	}
	return nil
}

func (t *transportCommon) handlePing(payload []byte) error {
	id, err := wire.DecodePingID(payload)
	if err != nil {
		return err
	}
	t.sendControlBestEffort(wire.CodePingResponse, wire.EncodePingID(id))
	return nil
}

func (t *transportCommon) onPingResult(r ping.Result) {
	if r.Err != nil {
		t.log.Debug("ping cancelled", zap.Int32("ping_id", r.ID))
		return
	}
	t.log.Debug("ping rtt", zap.Int32("ping_id", r.ID), zap.Duration("rtt", r.RTT))
}

func (t *transportCommon) handleStream(callID int32, payload []byte) error {
	flags, body, err := wire.DecodeStreamFrame(payload)
	if err != nil {
		return err
	}

	c, ok := t.calls.Get(callID)
	if !ok {
		if t.hooks.newInboundForUnknownCall == nil {
			return nil
		}
		// A fresh call-id must not spawn a new Inbound once shutdown is
		// under way: the drain in DrainAndCloseCalls may already have run
		// its snapshot, and anything created after that would never be
		// notified or closed. Re-check under the transport lock, which
		// serializes against Shutdown's own state transition.
		t.fsm.Lock()
		st := t.fsm.CurrentStateLocked()
		t.fsm.Unlock()
		if st != lifecycle.NotStarted && st != lifecycle.Setup && st != lifecycle.Ready {
			return nil
		}
		inbound := t.hooks.newInboundForUnknownCall(callID)
		if inbound == nil {
			return nil
		}
		created := newCall(t, callID, inbound)
		existing, existed := t.calls.PutIfAbsent(callID, created)
		if existed {
			c = existing
		} else {
			c = created
			t.inUse.increment()
		}
	}

	if flags&wire.FlagOutOfBandClose != 0 {
		t.unregisterCall(callID)
		c.deliverClose(status.Unavailablef("transportcore: peer closed call %d out-of-band", callID), true)
		return nil
	}

	if _, shouldAck := t.flow.RecordReceived(len(body)); shouldAck {
		t.sendControlBestEffort(wire.CodeAcknowledgeBytes, wire.EncodeAcknowledgeBytes(t.flow.EmitAck()))
	}

	c.deliverData(body)
	return nil
}

// registerOutboundCall inserts a freshly allocated outbound call, used by
// ClientTransport.NewCall. A collision with a still-live id is a protocol
// invariant violation, not a recoverable per-call error: it shuts the whole
// transport down with Internal and hands the caller a stub Outbound that
// reports the same failure, rather than panicking on the caller's own
// goroutine (this path never runs through the offloader, so nothing would
// recover a panic here).
func (t *transportCommon) registerOutboundCall(id int32, inbound Inbound) Outbound {
	c := newCall(t, id, inbound)
	if _, existed := t.calls.PutIfAbsent(id, c); existed {
		st := status.Internalf("transportcore: call-id collision on outbound allocation for id %d", id)
		t.Shutdown(st, true)
		return &failedOutbound{id: id, err: status.Err(st)}
	}
	t.inUse.increment()
	return c
}

// unregisterCall removes id from the call table, decrementing the in-use
// count if it was present. Graceful shutdown's decision to terminate is
// driven solely by this path observing the table become empty, not by a
// periodic re-check of a table snapshot.
func (t *transportCommon) unregisterCall(id int32) {
	if _, ok := t.calls.Remove(id); ok {
		t.inUse.decrement()
		t.maybeAdvanceShutdown()
	}
}

// maybeAdvanceShutdown re-drives the shutdown algorithm after the call
// table shrinks, so a graceful shutdown that started with calls still
// outstanding can still reach termination once the last one unregisters.
func (t *transportCommon) maybeAdvanceShutdown() {
	if first, ok := t.fsm.FirstStatus(); ok && !t.fsm.IsTerminated() {
		t.fsm.Shutdown(t, first, false)
	}
}

// sendControlBestEffort sends a control transaction under the transport
// lock, discarding any error. Used for responses that must never recurse
// into shutdown on failure (a ping response or ack lost to a dying peer is
// not itself a reason to tear the transport down).
func (t *transportCommon) sendControlBestEffort(code int32, payload []byte) {
	t.fsm.Lock()
	defer t.fsm.Unlock()
	t.sendControlLocked(code, payload)
}

// sendControlLocked assumes the caller already holds the transport lock.
func (t *transportCommon) sendControlLocked(code int32, payload []byte) {
	_ = t.channel.Transact(code, payload)
}

// sendControlOrFail sends a control transaction under the transport lock
// and reports any error, for callers (setup) that must know whether the
// send actually went out.
func (t *transportCommon) sendControlOrFail(code int32, payload []byte) error {
	t.fsm.Lock()
	defer t.fsm.Unlock()
	return t.channel.Transact(code, payload)
}

// Shutdown starts (or advances) the shutdown sequence. See lifecycle.FSM
// for the exact algorithm; this just wires transportCommon up as its Hooks.
func (t *transportCommon) Shutdown(st status.Status, forceTerminate bool) {
	t.fsm.Shutdown(t, st, forceTerminate)
}

// --- lifecycle.Hooks implementation -------------------------------------

func (t *transportCommon) CallTableEmpty() bool { return t.calls.IsEmpty() }

func (t *transportCommon) NotifyShutdown(st status.Status) {
	t.log.Info("transport shutting down",
		zap.String("status", st.Error()),
		zap.String("bytes_sent", observability.FormatBytes(t.flow.BytesSent())),
		zap.String("bytes_received", observability.FormatBytes(t.flow.BytesReceived())),
	)
	if t.hooks.notifyShutdown != nil {
		t.off.Go(func() { t.hooks.notifyShutdown(st) })
	}
}

func (t *transportCommon) DetachReceiver() {
	t.channel.SetReceiver(nil)
	if t.cancelDeath != nil {
		t.cancelDeath()
	}
	// Closing here, before EmitShutdownBestEffort sends on the same
	// channel, would make that send fail. Defer the close to the offloaded
	// drain step instead, once nothing more will ever be sent.
}

func (t *transportCommon) EmitShutdownBestEffort() {
	t.sendControlLocked(wire.CodeShutdownTransport, nil)
}

func (t *transportCommon) DrainAndCloseCalls(st status.Status) {
	snapshot := t.calls.SnapshotAndClear()
	for range snapshot {
		t.inUse.decrement()
	}
	t.ping.CancelAll(st)
	t.off.Go(func() {
		for _, c := range snapshot {
			c.deliverClose(st, false)
		}
		_ = t.channel.Close()
		if t.hooks.notifyTerminated != nil {
			t.hooks.notifyTerminated()
		}
	})
}
