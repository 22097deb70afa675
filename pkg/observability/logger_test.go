package observability

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/relaymesh/bindrpc/pkg/config"
)

func TestSetupLoggerStdout(t *testing.T) {
	log, err := SetupLogger(config.LogConfig{
		Level:   "debug",
		Format:  "json",
		Outputs: []string{"stdout"},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer log.Sync()
	log.Info("hello", zap.String("k", "v"))
}

func TestSetupLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.log")

	log, err := SetupLogger(config.LogConfig{
		Level:   "info",
		Format:  "console",
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Info("written to file")
	log.Sync()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestSetupLoggerWithExtraFields(t *testing.T) {
	log, err := SetupLogger(config.LogConfig{Level: "info", Outputs: []string{"stdout"}},
		zap.String("app_name", "bindctl"))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer log.Sync()
	log.Info("tagged entry")
}

func TestClampMin(t *testing.T) {
	if got := clampMin(3, 10); got != 10 {
		t.Fatalf("expected floor to win, got %d", got)
	}
	if got := clampMin(20, 10); got != 20 {
		t.Fatalf("expected value to win, got %d", got)
	}
}
