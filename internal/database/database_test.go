package database

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	if err := InitializeForTest(); err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
}

func TestConfigRoundTrip(t *testing.T) {
	setupTestDB(t)

	loaded, err := LoadConfig("frontier")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil config for unknown service, got %v", loaded)
	}

	config := map[string]interface{}{
		"env": map[string]interface{}{"TOKEN": "abc"},
		"pos": map[string]interface{}{"col": float64(2), "row": float64(3)},
	}
	if err := SaveConfig("frontier", config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err = LoadConfig("frontier")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	env, ok := loaded["env"].(map[string]interface{})
	if !ok || env["TOKEN"] != "abc" {
		t.Errorf("unexpected config loaded: %v", loaded)
	}

	// Upsert replaces the previous value
	config["env"] = map[string]interface{}{"TOKEN": "xyz"}
	if err := SaveConfig("frontier", config); err != nil {
		t.Fatalf("SaveConfig (update) failed: %v", err)
	}
	loaded, err = LoadConfig("frontier")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	env = loaded["env"].(map[string]interface{})
	if env["TOKEN"] != "xyz" {
		t.Errorf("expected updated token, got %v", env["TOKEN"])
	}

	names, err := ListConfigNames()
	if err != nil {
		t.Fatalf("ListConfigNames failed: %v", err)
	}
	if len(names) != 1 || names[0] != "frontier" {
		t.Errorf("unexpected config names %v", names)
	}
}

func TestStartupSet(t *testing.T) {
	setupTestDB(t)

	exists, err := StartupSetExists()
	if err != nil {
		t.Fatalf("StartupSetExists failed: %v", err)
	}
	if exists {
		t.Fatal("expected empty startup set")
	}

	if err := StartupSetAdd("frontier", "collector", "frontier"); err != nil {
		t.Fatalf("StartupSetAdd failed: %v", err)
	}

	set, err := StartupSet()
	if err != nil {
		t.Fatalf("StartupSet failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 entries (duplicate ignored), got %v", set)
	}

	if err := StartupSetRemove("collector"); err != nil {
		t.Fatalf("StartupSetRemove failed: %v", err)
	}
	set, err = StartupSet()
	if err != nil {
		t.Fatalf("StartupSet failed: %v", err)
	}
	if len(set) != 1 || set[0] != "frontier" {
		t.Errorf("unexpected startup set %v", set)
	}
}

func TestOperationLifecycle(t *testing.T) {
	setupTestDB(t)

	if err := CreateOperation("op-1", OpTypeRunService, "frontier"); err != nil {
		t.Fatalf("CreateOperation failed: %v", err)
	}

	pending, err := PendingOperationIDs()
	if err != nil {
		t.Fatalf("PendingOperationIDs failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "op-1" {
		t.Fatalf("unexpected pending operations %v", pending)
	}

	if err := UpdateOperationStatus("op-1", StatusInProgress, 40, "building image", ""); err != nil {
		t.Fatalf("UpdateOperationStatus failed: %v", err)
	}

	op, err := GetOperation("op-1")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if op.Status != StatusInProgress || op.Progress != 40 {
		t.Errorf("unexpected operation state %+v", op)
	}
	if op.CompletedAt.Valid {
		t.Error("completed_at should not be set while in progress")
	}

	if err := UpdateOperationStatus("op-1", StatusCompleted, 100, "done", ""); err != nil {
		t.Fatalf("UpdateOperationStatus failed: %v", err)
	}
	op, err = GetOperation("op-1")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if !op.CompletedAt.Valid {
		t.Error("completed_at should be set after completion")
	}

	if err := AppendOperationLog("op-1", "info", "started"); err != nil {
		t.Fatalf("AppendOperationLog failed: %v", err)
	}
	logs, err := GetOperationLogs("op-1")
	if err != nil {
		t.Fatalf("GetOperationLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "started" {
		t.Errorf("unexpected operation logs %v", logs)
	}
}

func TestEventStats(t *testing.T) {
	setupTestDB(t)

	for i := 0; i < 3; i++ {
		if err := RecordContainerEvent("frontier", "start", "cid1"); err != nil {
			t.Fatalf("RecordContainerEvent failed: %v", err)
		}
	}
	if err := RecordContainerEvent("frontier", "die", "cid1"); err != nil {
		t.Fatalf("RecordContainerEvent failed: %v", err)
	}

	stats, err := GetEventGroupStats(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GetEventGroupStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat groups, got %v", stats)
	}
	for _, s := range stats {
		switch s.Action {
		case "start":
			if s.Count != 3 {
				t.Errorf("expected 3 start events, got %d", s.Count)
			}
		case "die":
			if s.Count != 1 {
				t.Errorf("expected 1 die event, got %d", s.Count)
			}
		default:
			t.Errorf("unexpected action %s", s.Action)
		}
	}

	events, err := GetRecentEvents(2)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 recent events, got %d", len(events))
	}
}
