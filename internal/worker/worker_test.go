package worker

import (
	"testing"

	"director/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	if err := database.InitializeForTest(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := &Worker{jobQueue: make(chan string, 2)}

	w.Enqueue("op-1")
	w.Enqueue("op-2")
	w.Enqueue("op-3") // dropped, queue is full

	if got := len(w.jobQueue); got != 2 {
		t.Errorf("expected 2 queued operations, got %d", got)
	}
}

func TestProcessOperationUnknownType(t *testing.T) {
	setupTestDB(t)

	if err := database.CreateOperation("op-x", "defragment", "svc"); err != nil {
		t.Fatalf("CreateOperation failed: %v", err)
	}

	w := New(nil)
	w.processOperation("op-x")

	op, err := database.GetOperation("op-x")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if op.Status != database.StatusFailed {
		t.Errorf("expected failed status for unknown type, got %s", op.Status)
	}
	if !op.ErrorMessage.Valid || op.ErrorMessage.String == "" {
		t.Error("expected error message to be recorded")
	}
}

func TestProcessOperationSkipsNonPending(t *testing.T) {
	setupTestDB(t)

	if err := database.CreateOperation("op-done", database.OpTypeStartService, "svc"); err != nil {
		t.Fatalf("CreateOperation failed: %v", err)
	}
	if err := database.UpdateOperationStatus("op-done", database.StatusCompleted, 100, "done", ""); err != nil {
		t.Fatalf("UpdateOperationStatus failed: %v", err)
	}

	w := New(nil)
	w.processOperation("op-done")

	op, err := database.GetOperation("op-done")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if op.Status != database.StatusCompleted {
		t.Errorf("completed operation must not be reprocessed, got status %s", op.Status)
	}
}

func TestOperationLoggerWritesRows(t *testing.T) {
	setupTestDB(t)

	if err := database.CreateOperation("op-log", database.OpTypeRunService, "svc"); err != nil {
		t.Fatalf("CreateOperation failed: %v", err)
	}

	logger := NewOperationLogger("op-log")
	logger.Info("first")
	logger.Error("second")

	logs, err := database.GetOperationLogs("op-log")
	if err != nil {
		t.Fatalf("GetOperationLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(logs))
	}
	if logs[0].Level != database.LogLevelInfo || logs[1].Level != database.LogLevelError {
		t.Errorf("unexpected log levels: %s, %s", logs[0].Level, logs[1].Level)
	}
}
