package main

import (
	"context"
	"strings"
	"testing"

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

func TestHandler_RejectsForeignTask(t *testing.T) {
	handler := &Handler{logger: &testLogger{}}

	for _, task := range []scheduler.TaskType{
		scheduler.TaskProcessPending,
		scheduler.TaskDispatchEmail,
		scheduler.TaskType(""),
	} {
		err := handler.Handle(context.Background(), scheduler.MaintenancePayload{Task: task})
		if err == nil {
			t.Fatalf("task %q: expected error for task not owned by maintenance", task)
		}
		if !strings.Contains(err.Error(), "unexpected task") {
			t.Errorf("task %q: error should name the unexpected task, got: %v", task, err)
		}
	}
}
