// Package observability contains logging, metrics and formatting helpers
// shared by the demo binaries and the transport core itself.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/relaymesh/bindrpc/pkg/config"
)

// SetupLogger builds a zap.Logger from the provided configuration, sets it
// as the global logger, and redirects the stdlib log package to it. extra
// fields are attached to every entry the returned logger emits, e.g. an
// app_name identifying which binary produced a given line. The caller
// should defer logger.Sync().
func SetupLogger(c config.LogConfig, extra ...zap.Field) (*zap.Logger, error) {
	level := parseLevel(c.Level)
	encoder := buildEncoder(c)

	cores := make([]zapcore.Core, 0, len(c.Outputs))
	for _, out := range c.Outputs {
		cores = append(cores, coreFor(out, c, encoder, level))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	if len(extra) > 0 {
		opts = append(opts, zap.Fields(extra...))
	}

	logger := zap.New(zapcore.NewTee(cores...), opts...)
	zap.ReplaceGlobals(logger)
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

func parseLevel(s string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(s) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func buildEncoder(c config.LogConfig) zapcore.Encoder {
	encCfg := defaultEncoderConfig(c.Development)
	if strings.ToLower(c.Format) == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// coreFor builds one core for a single configured output: stdout/stderr, a
// rotated file via lumberjack, or a plain append-only file.
func coreFor(out string, c config.LogConfig, encoder zapcore.Encoder, level zap.AtomicLevel) zapcore.Core {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	case "stderr":
		return zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	default:
		return zapcore.NewCore(encoder, fileWriter(out, c), level)
	}
}

func fileWriter(out string, c config.LogConfig) zapcore.WriteSyncer {
	if c.Rotation.Enable {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   chooseFilename(out, c),
			MaxSize:    clampMin(c.Rotation.MaxSizeMB, 10),
			MaxBackups: clampMin(c.Rotation.MaxBackups, 1),
			MaxAge:     clampMin(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		})
	}
	if dir := dirOf(out); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

func defaultEncoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	return zap.NewProductionEncoderConfig()
}

func clampMin(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

// chooseFilename returns the output filename: the rotation config's own
// filename when rotation is enabled and one is set, otherwise out itself.
func chooseFilename(out string, c config.LogConfig) string {
	if c.Rotation.Enable && strings.TrimSpace(c.Rotation.Filename) != "" {
		return c.Rotation.Filename
	}
	return out
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
