// Command bindnode runs a demonstration bindrpc transport pair and serves
// its Prometheus metrics over HTTP. It has no real Binder driver to talk
// to outside Android, so its "node" is a self-contained client/server
// transport pair wired together over an in-process channel — enough to
// exercise the full setup/flow-control/shutdown sequence end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/config"
	"github.com/relaymesh/bindrpc/pkg/observability"
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "bindnode: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "path to a bindrpc config file (yaml)")
	selfTest := flag.Bool("selftest", true, "run the demo client/server handshake once at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}

	log, err := observability.SetupLogger(cfg.Log, zap.String("app_name", cfg.AppName))
	if err != nil {
		fatalf("setting up logger: %v", err)
	}
	defer log.Sync()

	a := newApp(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *selfTest {
		selfTestCtx, cancelSelfTest := context.WithTimeout(ctx, 10*time.Second)
		if err := a.runSelfTest(selfTestCtx); err != nil {
			log.Error("selftest failed", zap.Error(err))
		}
		cancelSelfTest()
	}

	go func() {
		if err := a.serveMetrics(); err != nil {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := a.shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
