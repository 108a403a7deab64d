package images

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadDiscoversImages(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "frontier", "Dockerfile"), "FROM alpine\n")
	writeFile(t, filepath.Join(dir, "frontier", "director.yml"), `
ports: [8080, 9090]
env:
  MODE: production
pos:
  col: 1
  row: 2
`)
	writeFile(t, filepath.Join(dir, "stack", "docker-compose.yml"), "services: {}\n")
	writeFile(t, filepath.Join(dir, "junk", "readme.txt"), "not an image\n")
	writeFile(t, filepath.Join(dir, "stray-file"), "ignored\n")

	nav := NewNavigator(dir)
	if err := nav.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	list := nav.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 images, got %d", len(list))
	}

	frontier := nav.Get("frontier")
	if frontier == nil {
		t.Fatal("expected frontier image")
	}
	if frontier.Kind != KindDockerfile {
		t.Errorf("expected dockerfile kind, got %s", frontier.Kind)
	}
	if len(frontier.Meta.Ports) != 2 || frontier.Meta.Ports[0] != 8080 {
		t.Errorf("unexpected ports %v", frontier.Meta.Ports)
	}
	if frontier.Meta.Env["MODE"] != "production" {
		t.Errorf("unexpected env %v", frontier.Meta.Env)
	}
	if frontier.Meta.Pos == nil || frontier.Meta.Pos.Col == nil || *frontier.Meta.Pos.Col != 1 {
		t.Errorf("unexpected position %+v", frontier.Meta.Pos)
	}

	stack := nav.Get("stack")
	if stack == nil || stack.Kind != KindCompose {
		t.Errorf("expected compose image, got %+v", stack)
	}

	if nav.IsNative("junk") {
		t.Error("directory without Dockerfile should not be native")
	}
	if !nav.IsNative("frontier") {
		t.Error("expected frontier to be native")
	}
}

func TestLoadRemovedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "svc", "Dockerfile"), "FROM alpine\n")

	nav := NewNavigator(dir)
	if err := nav.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !nav.IsNative("svc") {
		t.Fatal("expected svc to be discovered")
	}

	if err := os.RemoveAll(filepath.Join(dir, "svc")); err != nil {
		t.Fatalf("failed to remove dir: %v", err)
	}
	if err := nav.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if nav.IsNative("svc") {
		t.Error("expected svc to be dropped after rescan")
	}
}

func TestLoadMissingImagesDir(t *testing.T) {
	nav := NewNavigator(filepath.Join(t.TempDir(), "missing"))
	if err := nav.Load(); err != nil {
		t.Fatalf("Load should tolerate a missing directory: %v", err)
	}
	if len(nav.List()) != 0 {
		t.Error("expected no images")
	}
}

func TestImageTag(t *testing.T) {
	img := &Image{Name: "frontier"}
	if img.Tag() != "director/frontier:latest" {
		t.Errorf("unexpected tag %s", img.Tag())
	}
}
