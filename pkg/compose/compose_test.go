package compose

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"director/internal/config"
)

func writeComposeFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write compose file: %v", err)
	}
}

func TestLoadProjectMissingFile(t *testing.T) {
	r := &Runner{}
	_, err := r.loadProject(context.Background(), Options{
		ProjectName: "ghost",
		WorkingDir:  t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for directory without compose file")
	}
}

func TestLoadProjectStampsLabels(t *testing.T) {
	dir := t.TempDir()
	writeComposeFile(t, dir, `
services:
  web:
    image: nginx:alpine
  db:
    image: postgres:16
`)

	r := &Runner{}
	project, err := r.loadProject(context.Background(), Options{
		ProjectName: "myapp",
		WorkingDir:  dir,
	})
	if err != nil {
		t.Fatalf("loadProject failed: %v", err)
	}

	if project.Name != "myapp" {
		t.Errorf("expected project name myapp, got %s", project.Name)
	}
	if len(project.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(project.Services))
	}
	for name, svc := range project.Services {
		if svc.Labels[config.ManagedLabel] != "1" {
			t.Errorf("service %s missing managed label", name)
		}
	}
}

func TestLoadProjectInjectsEnv(t *testing.T) {
	dir := t.TempDir()
	writeComposeFile(t, dir, `
services:
  app:
    image: busybox
    environment:
      MODE: fixed
`)

	r := &Runner{}
	project, err := r.loadProject(context.Background(), Options{
		ProjectName: "envtest",
		WorkingDir:  dir,
		Env:         map[string]string{"TOKEN": "abc", "MODE": "injected"},
	})
	if err != nil {
		t.Fatalf("loadProject failed: %v", err)
	}

	svc := project.Services["app"]
	if got := svc.Environment["TOKEN"]; got == nil || *got != "abc" {
		t.Errorf("expected TOKEN=abc injected into service env, got %v", got)
	}
	// Values set in the compose file win over injected ones.
	if got := svc.Environment["MODE"]; got == nil || *got != "fixed" {
		t.Errorf("expected MODE=fixed preserved, got %v", got)
	}
}

func TestLoadProjectYamlFallback(t *testing.T) {
	dir := t.TempDir()
	content := []byte("services:\n  app:\n    image: busybox\n")
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yaml"), content, 0o644); err != nil {
		t.Fatalf("failed to write compose file: %v", err)
	}

	r := &Runner{}
	project, err := r.loadProject(context.Background(), Options{
		ProjectName: "fallback",
		WorkingDir:  dir,
	})
	if err != nil {
		t.Fatalf("loadProject failed: %v", err)
	}
	if _, ok := project.Services["app"]; !ok {
		t.Error("expected service app from docker-compose.yaml")
	}
}
