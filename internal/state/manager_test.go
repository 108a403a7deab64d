package state

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"director/internal/config"
	"director/internal/database"
	"director/internal/docker"
	"director/internal/images"
)

// activeInfo fakes a running container summary for a service.
func activeInfo(name string) *docker.ContainerInfo {
	return &docker.ContainerInfo{Name: name, ShortID: "abc123def456", State: "running", Status: "Up 5 seconds"}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	if err := database.InitializeForTest(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	imagesDir := t.TempDir()
	navigator := images.NewNavigator(imagesDir)
	if err := navigator.Load(); err != nil {
		t.Fatalf("Failed to load navigator: %v", err)
	}

	return &Manager{
		cols:         config.DefaultCols,
		rows:         config.DefaultRows,
		cfg:          &config.Config{},
		navigator:    navigator,
		services:     make(map[string]*Service),
		sharedConfig: make(map[string]interface{}),
		httpClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func addImage(t *testing.T, m *Manager, name, sidecar string) {
	t.Helper()
	dir := filepath.Join(m.navigator.Dir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create image dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("Failed to write Dockerfile: %v", err)
	}
	if sidecar != "" {
		if err := os.WriteFile(filepath.Join(dir, "director.yml"), []byte(sidecar), 0o644); err != nil {
			t.Fatalf("Failed to write sidecar: %v", err)
		}
	}
	if err := m.navigator.Load(); err != nil {
		t.Fatalf("Failed to reload navigator: %v", err)
	}
}

func TestGetLazyCreateMergesEnv(t *testing.T) {
	m := newTestManager(t)
	addImage(t, m, "svc", "env:\n  A: meta\n  B: meta\n  C: meta\n")

	if err := database.SaveConfig("svc", map[string]interface{}{
		"env": map[string]interface{}{"B": "config", "C": "config"},
	}); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	svc, err := m.Get("svc", GetOptions{Env: map[string]string{"C": "request"}})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	env := svc.Env()
	if env["A"] != "meta" {
		t.Errorf("expected A from metadata, got %q", env["A"])
	}
	if env["B"] != "config" {
		t.Errorf("expected config to override metadata for B, got %q", env["B"])
	}
	if env["C"] != "request" {
		t.Errorf("expected request to override config for C, got %q", env["C"])
	}
}

func TestGetPositionPrecedence(t *testing.T) {
	m := newTestManager(t)
	addImage(t, m, "meta-pos", "pos:\n  col: 1\n  row: 2\n")

	svc, err := m.Get("meta-pos", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pos := svc.Pos(); pos.Col != 1 || pos.Row != 2 {
		t.Errorf("expected metadata position 1x2, got %s", pos.Key())
	}

	if err := database.SaveConfig("config-pos", map[string]interface{}{
		"pos": map[string]interface{}{"col": 3.0, "row": 4.0},
	}); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	svc, err = m.Get("config-pos", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pos := svc.Pos(); pos.Col != 3 || pos.Row != 4 {
		t.Errorf("expected config position 3x4, got %s", pos.Key())
	}

	svc, err = m.Get("default-pos", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pos := svc.Pos(); pos.Col != config.DefaultCol || pos.Row != config.DefaultRow {
		t.Errorf("expected default position, got %s", pos.Key())
	}
}

func TestAllocateSkipsOccupiedCells(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Get("first", GetOptions{Pos: &Position{Col: 2, Row: 2}})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pos := first.Pos(); pos.Col != 2 || pos.Row != 2 {
		t.Fatalf("expected first service at 2x2, got %s", pos.Key())
	}

	second, err := m.Get("second", GetOptions{Pos: &Position{Col: 2, Row: 2}})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pos := second.Pos(); pos.Col != 3 || pos.Row != 2 {
		t.Errorf("expected second service pushed to 3x2, got %s", pos.Key())
	}
}

func TestSpaceWalkCoversGrid(t *testing.T) {
	cells := spaceWalk(3, 3, 1, 1)
	seen := make(map[string]bool)
	for _, c := range cells {
		seen[c.Key()] = true
	}
	// Forward sweep plus the wrap-around block above and left of the
	// start position.
	for _, key := range []string{"1x1", "2x1", "1x2", "2x2", "0x0"} {
		if !seen[key] {
			t.Errorf("expected space walk to visit %s", key)
		}
	}
	if cells[0].Key() != "1x1" {
		t.Errorf("expected walk to start at wanted cell, got %s", cells[0].Key())
	}
}

func TestUpdateConfigDottedKeys(t *testing.T) {
	m := newTestManager(t)

	updated, err := m.UpdateConfig("svc", map[string]string{"env.TOKEN": "abc"})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	env, ok := updated["env"].(map[string]interface{})
	if !ok || env["TOKEN"] != "abc" {
		t.Fatalf("expected nested env.TOKEN=abc, got %v", updated)
	}

	// Empty value deletes the key.
	updated, err = m.UpdateConfig("svc", map[string]string{"env.TOKEN": ""})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	env = updated["env"].(map[string]interface{})
	if _, present := env["TOKEN"]; present {
		t.Error("expected env.TOKEN to be deleted")
	}

	stored, err := database.LoadConfig("svc")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if stored == nil {
		t.Fatal("expected config to be persisted")
	}
}

func TestUpdateConfigSharedUpdatesCache(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.UpdateConfig(config.SharedConfigKey, map[string]string{"env.GLOBAL": "yes"}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	env := m.sharedEnv()
	if env["GLOBAL"] != "yes" {
		t.Errorf("expected shared env to carry GLOBAL=yes, got %v", env)
	}
}

func TestUpdateConfigRejectsScalarPath(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.UpdateConfig("svc", map[string]string{"env": "flat"}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if _, err := m.UpdateConfig("svc", map[string]string{"env.TOKEN": "abc"}); err == nil {
		t.Error("expected error when traversing through a scalar value")
	}
}

func TestCheckRegistrationsPushesOnChange(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var pushes []map[string]interface{}
	frontier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("bad push payload: %v", err)
		}
		mu.Lock()
		pushes = append(pushes, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer frontier.Close()
	m.cfg.FrontierURL = frontier.URL

	ctx := context.Background()

	svc, err := m.Get("svc", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	svc.SetDockerState(activeInfo("svc"))
	svc.SetAppState(nil, []Registration{{Service: "svc", Method: "ping"}})

	// First check: empty -> one method, must push.
	if err := m.CheckRegistrationsChanged(ctx); err != nil {
		t.Fatalf("CheckRegistrationsChanged failed: %v", err)
	}
	// Second check: nothing moved, no push.
	if err := m.CheckRegistrationsChanged(ctx); err != nil {
		t.Fatalf("CheckRegistrationsChanged failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pushes) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(pushes))
	}
	if pushes[0]["state_hash"] == "" {
		t.Error("expected state_hash in push payload")
	}
	regs, ok := pushes[0]["register"].([]interface{})
	if !ok || len(regs) != 1 {
		t.Errorf("expected one registration in push, got %v", pushes[0]["register"])
	}
}

func TestRegistrationsOnlyActiveServices(t *testing.T) {
	m := newTestManager(t)

	active, err := m.Get("active", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	active.SetDockerState(activeInfo("active"))
	active.SetAppState(nil, []Registration{{Service: "active", Method: "run"}})

	stopped, err := m.Get("stopped", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	stopped.SetAppState(nil, []Registration{{Service: "stopped", Method: "hidden"}})

	regs := m.Registrations()
	if len(regs) != 1 || regs[0].Method != "run" {
		t.Errorf("expected only the active service's registration, got %v", regs)
	}
}

func TestParseRegistrations(t *testing.T) {
	payload := map[string]interface{}{
		"register": []interface{}{
			map[string]interface{}{"method": "enrich", "role": "enricher"},
			map[string]interface{}{"method": "handle", "service": "other"},
			map[string]interface{}{"role": "no-method"},
			"not-an-object",
		},
	}

	regs := parseRegistrations("svc", payload)
	if len(regs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(regs))
	}
	if regs[0].Service != "svc" || regs[0].Role != "enricher" {
		t.Errorf("unexpected first registration: %+v", regs[0])
	}
	if regs[1].Service != "other" {
		t.Errorf("expected explicit service name kept, got %+v", regs[1])
	}
}

func TestServiceStatusOverride(t *testing.T) {
	svc := NewService("svc")

	if got := svc.Status(); got != "stopped" {
		t.Errorf("expected stopped before any state, got %s", got)
	}

	svc.SetDockerState(activeInfo("svc"))
	if got := svc.Status(); got != "running" {
		t.Errorf("expected running from docker state, got %s", got)
	}

	svc.SetStatusOverride(StatusRestarting)
	if got := svc.Status(); got != StatusRestarting {
		t.Errorf("expected override to mask docker state, got %s", got)
	}

	svc.ClearStatus()
	if got := svc.Status(); got != "running" {
		t.Errorf("expected docker state back after clear, got %s", got)
	}
}
