package klog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCurrentReturnsNopBeforeInit(t *testing.T) {
	current = nil
	if Current() == nil {
		t.Fatal("Current() returned nil")
	}
}

func TestInitInstallsLogger(t *testing.T) {
	defer func() { current = nil }()
	logger, err := Init(zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Current() != logger {
		t.Fatal("Current() did not return the logger installed by Init")
	}
}

func TestSubTagsSubsystemField(t *testing.T) {
	defer func() { current = nil }()
	Init(zapcore.DebugLevel)
	sub := Sub("scheduler")
	if sub == nil {
		t.Fatal("Sub returned nil")
	}

	core, logs := observer.New(zapcore.DebugLevel)
	current = zap.New(core)
	Sub("scheduler").Info("tick")
	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["subsystem"] != "scheduler" {
		t.Fatalf("logged entries = %+v, want one tagged subsystem=scheduler", entries)
	}
}
