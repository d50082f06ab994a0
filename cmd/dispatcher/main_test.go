package main

import (
	"context"
	"strings"
	"testing"

	"fairground/internal/config"
	"fairground/internal/dispatch"
	"fairground/internal/scheduler"
	"fairground/internal/types"
)

// testLogger implements types.Logger for tests.
type testLogger struct{}

func (l *testLogger) Info(_ string, _ ...any)    {}
func (l *testLogger) Error(_ string, _ ...any)   {}
func (l *testLogger) Warn(_ string, _ ...any)    {}
func (l *testLogger) With(_ ...any) types.Logger { return l }

func TestSlogAdapter_ImplementsLogger(t *testing.T) {
	var logger types.Logger = &slogAdapter{logger: nil}
	if logger == nil {
		t.Fatal("slogAdapter should not be nil")
	}
}

func TestHandler_RejectsUnknownTask(t *testing.T) {
	handler := &Handler{
		dispatchers: map[scheduler.TaskType]*dispatch.Dispatcher{},
		logger:      &testLogger{},
	}

	err := handler.Handle(context.Background(), scheduler.MaintenancePayload{
		Task: scheduler.TaskArchiveAudit,
	})
	if err == nil {
		t.Fatal("expected error for task not owned by the dispatcher")
	}
	if !strings.Contains(err.Error(), "unexpected task") {
		t.Errorf("error should name the unexpected task, got: %v", err)
	}
}

func TestBuildEmailChannel_StubWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.AppBaseURL = "https://fairground.market"
	cfg.Email.FromAddress = "no-reply@fairground.market"
	cfg.Email.FromName = "Fairground"

	channel, err := buildEmailChannel(cfg, &testLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if channel == nil {
		t.Fatal("expected a channel backed by the stub provider")
	}
}

func TestBuildPushChannel_StubWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{}

	channel := buildPushChannel(cfg, &testLogger{})
	if channel == nil {
		t.Fatal("expected a channel backed by the stub provider")
	}
}
