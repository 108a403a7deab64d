// Package systemcheck runs startup health checks for the director
// daemon's dependencies and configuration.
package systemcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"director/internal/config"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// CheckResult is the result of one system check.
type CheckResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Pinger reports whether the Docker daemon is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner executes the startup checks.
type Runner struct {
	cfg  *config.Config
	dock Pinger
}

// NewRunner creates a check runner. dock may be nil when Docker is not
// connected yet.
func NewRunner(cfg *config.Config, dock Pinger) *Runner {
	return &Runner{cfg: cfg, dock: dock}
}

// Run executes all checks and returns their results.
func (r *Runner) Run(ctx context.Context) []CheckResult {
	return []CheckResult{
		r.checkImagesDir(),
		r.checkDatabaseDir(),
		r.checkDocker(ctx),
		r.checkPortPool(),
	}
}

// Healthy reports whether every check passed.
func Healthy(results []CheckResult) bool {
	for _, result := range results {
		if result.Status != StatusOK {
			return false
		}
	}
	return true
}

func (r *Runner) checkImagesDir() CheckResult {
	result := CheckResult{ID: "images_dir", Name: "Images directory"}

	if err := os.MkdirAll(r.cfg.ImagesDir, 0o755); err != nil {
		result.Status = StatusError
		result.Message = "images directory is not usable"
		result.Detail = err.Error()
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("using %s", r.cfg.ImagesDir)
	return result
}

func (r *Runner) checkDatabaseDir() CheckResult {
	result := CheckResult{ID: "database", Name: "Database path"}

	dir := filepath.Dir(r.cfg.DatabasePath)
	if dir == "" || dir == "." {
		dir, _ = os.Getwd()
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		result.Status = StatusError
		result.Message = fmt.Sprintf("database directory %s does not exist", dir)
		if err != nil {
			result.Detail = err.Error()
		}
		return result
	}

	probe := filepath.Join(dir, ".director-write-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("database directory %s is not writable", dir)
		result.Detail = err.Error()
		return result
	}
	os.Remove(probe)

	result.Status = StatusOK
	result.Message = fmt.Sprintf("database at %s", r.cfg.DatabasePath)
	return result
}

func (r *Runner) checkDocker(ctx context.Context) CheckResult {
	result := CheckResult{ID: "docker", Name: "Docker daemon"}

	if r.dock == nil {
		result.Status = StatusError
		result.Message = "docker client not connected"
		return result
	}
	if err := r.dock.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Message = "docker daemon unreachable"
		result.Detail = err.Error()
		return result
	}

	result.Status = StatusOK
	result.Message = "docker daemon reachable"
	return result
}

func (r *Runner) checkPortPool() CheckResult {
	result := CheckResult{ID: "port_pool", Name: "Host port pool"}

	size := r.cfg.EndPort - r.cfg.StartPort + 1
	if r.cfg.StartPort <= 0 || size <= 0 {
		result.Status = StatusError
		result.Message = fmt.Sprintf("invalid pool bounds %d..%d", r.cfg.StartPort, r.cfg.EndPort)
		return result
	}
	if r.cfg.StartPort <= 1024 {
		result.Status = StatusError
		result.Message = fmt.Sprintf("pool start %d overlaps privileged ports", r.cfg.StartPort)
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d ports available (%d..%d)", size, r.cfg.StartPort, r.cfg.EndPort)
	return result
}
