package systemcheck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"director/internal/config"
)

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ImagesDir:    filepath.Join(dir, "images"),
		DatabasePath: filepath.Join(dir, "director.db"),
		StartPort:    8900,
		EndPort:      8999,
	}
}

func TestRunAllHealthy(t *testing.T) {
	r := NewRunner(testConfig(t), &fakePinger{})
	results := r.Run(context.Background())

	if !Healthy(results) {
		t.Errorf("expected all checks to pass, got %+v", results)
	}
	if len(results) != 4 {
		t.Errorf("expected 4 checks, got %d", len(results))
	}
}

func TestDockerUnreachable(t *testing.T) {
	r := NewRunner(testConfig(t), &fakePinger{err: errors.New("no daemon")})
	results := r.Run(context.Background())

	if Healthy(results) {
		t.Error("expected docker check to fail")
	}
	for _, result := range results {
		if result.ID == "docker" && result.Status != StatusError {
			t.Errorf("expected docker check error, got %s", result.Status)
		}
	}
}

func TestNilPinger(t *testing.T) {
	r := NewRunner(testConfig(t), nil)
	results := r.Run(context.Background())
	if Healthy(results) {
		t.Error("expected failure with no docker client")
	}
}

func TestPrivilegedPoolRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.StartPort = 80
	cfg.EndPort = 90

	r := NewRunner(cfg, &fakePinger{})
	for _, result := range r.Run(context.Background()) {
		if result.ID == "port_pool" && result.Status != StatusError {
			t.Errorf("expected port pool check to fail, got %s", result.Status)
		}
	}
}
