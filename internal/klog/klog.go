// Package klog wraps a single process-wide *zap.Logger, the ambient
// logging stack for the kernel core (SPEC_FULL.md AMBIENT STACK): one
// global with an explicit Init/Sync. Subsystems hold no logger of their
// own; each log site calls Sub (or Current) on this package-level state.
package klog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	current *zap.Logger
)

// Init builds the process-wide logger at the given level (e.g.
// zapcore.InfoLevel, zapcore.DebugLevel) and installs it as the current
// logger, returning it for callers that want to hold their own reference
// rather than calling Current() repeatedly.
func Init(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = logger
	mu.Unlock()
	return logger, nil
}

// Current returns the process-wide logger, or a no-op logger if Init has
// not been called -- kernel subsystems under test construct an
// Address/Task graph without ever calling Init, and must not panic on a
// nil logger.
func Current() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return zap.NewNop()
	}
	return current
}

// Sync flushes the process-wide logger's buffered entries.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	return current.Sync()
}

// Sub returns a child logger tagged with a "subsystem" field, for use by
// one kernel component (scheduler, VMM, AHCI driver, and
// so on) so every line it emits is attributable without callers having to
// repeat the field by hand.
func Sub(subsystem string) *zap.Logger {
	return Current().With(zap.String("subsystem", subsystem))
}
