package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/bchan/localchan"
	"github.com/relaymesh/bindrpc/pkg/binding"
	"github.com/relaymesh/bindrpc/pkg/config"
	"github.com/relaymesh/bindrpc/pkg/observability"
	"github.com/relaymesh/bindrpc/pkg/ping"
	"github.com/relaymesh/bindrpc/pkg/security"
	"github.com/relaymesh/bindrpc/pkg/status"
	"github.com/relaymesh/bindrpc/pkg/transportcore"
	"github.com/relaymesh/bindrpc/pkg/wireattrs"
)

// app owns bindnode's runtime state: a demo transport pair running over an
// in-process channel (no real Binder driver is available outside Android),
// a metrics registry served over HTTP, and the logger everything reports
// through.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *observability.Metrics
	httpSrv *http.Server
}

func newApp(cfg *config.Config, log *zap.Logger) *app {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(prometheus.Labels{"app_name": cfg.AppName})
	if err := m.Register(reg); err != nil {
		log.Fatal("registering metrics", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: m,
		httpSrv: &http.Server{Addr: cfg.Transport.ListenAddress, Handler: mux},
	}
}

// echoInbound is the demo Inbound both the client's outgoing calls and the
// server's freshly created calls use: it just logs frames.
type echoInbound struct {
	log  *zap.Logger
	role string
	id   int32
}

func (e *echoInbound) OnStreamData(data []byte) error {
	e.log.Debug("stream data", zap.String("role", e.role), zap.Int32("call_id", e.id), zap.Int("bytes", len(data)))
	return nil
}

func (e *echoInbound) OnStreamClose(st status.Status, outOfBand bool) {
	e.log.Info("stream closed", zap.String("role", e.role), zap.Int32("call_id", e.id),
		zap.String("status", st.Error()), zap.Bool("out_of_band", outOfBand))
}

func (e *echoInbound) OnTransportReady() {
	e.log.Debug("transport ready hint", zap.String("role", e.role), zap.Int32("call_id", e.id))
}

type nodeListener struct {
	log     *zap.Logger
	role    string
	readyCh chan struct{}
}

func (l *nodeListener) OnTransportReady() {
	l.log.Info("transport ready", zap.String("role", l.role))
	select {
	case l.readyCh <- struct{}{}:
	default:
	}
}
func (l *nodeListener) OnTransportShutdown(st status.Status) {
	l.log.Info("transport shutdown", zap.String("role", l.role), zap.String("status", st.Error()))
}
func (l *nodeListener) OnTransportTerminated() {
	l.log.Info("transport terminated", zap.String("role", l.role))
}
func (l *nodeListener) TransportInUse(inUse bool) {
	l.log.Debug("transport in-use edge", zap.String("role", l.role), zap.Bool("in_use", inUse))
}

// serverListener additionally creates an Inbound the first time a call-id
// appears. The configured uid allowlist is not applied here; runSelfTest
// gives it to the client side.
type serverListener struct {
	nodeListener
}

func (l *serverListener) NewInbound(callID int32) transportcore.Inbound {
	return &echoInbound{log: l.log, role: "server", id: callID}
}

// runSelfTest wires a client and server transport together over an
// in-process channel, exchanges a handful of frames, and shuts both sides
// down cleanly — a runnable demonstration of the whole handshake/flow/
// shutdown sequence without any real IPC endpoint.
func (a *app) runSelfTest(ctx context.Context) error {
	var policy security.Policy = security.AllowAll{}
	if len(a.cfg.Transport.AllowedUIDs) > 0 {
		allowed := make(map[int32]bool, len(a.cfg.Transport.AllowedUIDs))
		for _, uid := range a.cfg.Transport.AllowedUIDs {
			allowed[uid] = true
		}
		policy = security.AllowUIDs{Allowed: allowed}
	}

	chClient, chServer := localchan.NewPair(1000, 1000)

	clientListener := &nodeListener{log: a.log, role: "client", readyCh: make(chan struct{}, 1)}
	srvListener := &serverListener{nodeListener{log: a.log, role: "server", readyCh: make(chan struct{}, 1)}}

	// The client, not the server, authorizes the peer's uid at setup —
	// the allowlist applies to whichever uid the server side presents.
	client := transportcore.NewClientTransport(chClient, policy, binding.NoOp{}, clientListener, a.log)
	server := transportcore.NewServerTransport(chServer, security.AllowAll{}, binding.NoOp{}, srvListener, a.log)

	if err := server.Start(); err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}

	select {
	case <-clientListener.readyCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		a.log.Warn("client transport never reached Ready")
	}

	call := client.NewCall(&echoInbound{log: a.log, role: "client", id: 0})
	if err := call.SendData([]byte("hello from bindnode")); err != nil {
		a.log.Error("send failed", zap.Error(err))
	}

	if pingID, err := client.Ping(func(r ping.Result) {
		if r.Err != nil {
			a.log.Warn("ping cancelled", zap.Int32("ping_id", r.ID), zap.Error(r.Err))
			return
		}
		a.log.Info("ping round trip", zap.Int32("ping_id", r.ID), zap.String("correlation_id", r.CorrelationID), zap.Duration("rtt", r.RTT))
	}); err != nil {
		a.log.Warn("ping failed", zap.Error(err))
	} else {
		a.log.Debug("ping sent", zap.Int32("ping_id", pingID))
	}

	snap := wireattrs.SnapshotOf(client.Attrs())
	if encoded, err := wireattrs.JSON().Marshal(snap); err == nil {
		a.log.Debug("client attrs snapshot", zap.ByteString("attrs_json", encoded))
	}

	time.Sleep(100 * time.Millisecond)
	_ = call.Close(status.OKStatus())

	client.Shutdown(status.OKStatus(), false)
	server.Shutdown(status.OKStatus(), false)
	return nil
}

func (a *app) serveMetrics() error {
	a.log.Info("metrics listening", zap.String("addr", a.httpSrv.Addr))
	err := a.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *app) shutdown(ctx context.Context) error {
	return a.httpSrv.Shutdown(ctx)
}
