// Package state keeps the in-memory picture of every managed service
// and drives their lifecycle against the Docker daemon.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"director/internal/config"
	"director/internal/database"
	"director/internal/docker"
	"director/internal/images"
	"director/internal/metrics"
	"director/internal/security"
	"director/pkg/compose"
)

// GetOptions carry per-request overrides when resolving a service.
type GetOptions struct {
	Env          map[string]string
	BuildOptions *BuildOptions
	Pos          *Position
}

// Manager owns the service records, the dashboard grid and the
// registration push towards the frontier.
type Manager struct {
	cols int
	rows int

	cfg       *config.Config
	dock      *docker.Manager
	navigator *images.Navigator
	composer  *compose.Runner
	recorder  *metrics.Recorder

	mu           sync.RWMutex
	services     map[string]*Service
	sharedConfig map[string]interface{}
	regsHash     uint64

	httpClient *http.Client
	cron       *cron.Cron
}

// NewManager wires the state manager over its collaborators. The
// compose runner may be nil when compose support is unavailable.
func NewManager(cfg *config.Config, dock *docker.Manager, navigator *images.Navigator, composer *compose.Runner, recorder *metrics.Recorder) *Manager {
	return &Manager{
		cols:         config.DefaultCols,
		rows:         config.DefaultRows,
		cfg:          cfg,
		dock:         dock,
		navigator:    navigator,
		composer:     composer,
		recorder:     recorder,
		services:     make(map[string]*Service),
		sharedConfig: make(map[string]interface{}),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		cron:         cron.New(cron.WithSeconds()),
	}
}

// Initialize loads persisted state, seeds the startup set on first
// boot, starts the periodic jobs and autostarts services.
func (m *Manager) Initialize(ctx context.Context) error {
	if _, err := m.loadConfig(config.SharedConfigKey); err != nil {
		return fmt.Errorf("failed to load shared config: %w", err)
	}

	if err := m.ResolveDockerStatusAll(ctx); err != nil {
		log.Printf("Initial container status resolve failed: %v", err)
	}

	seeded, err := database.StartupSetExists()
	if err != nil {
		return fmt.Errorf("failed to check startup set: %w", err)
	}
	if !seeded && len(m.cfg.InitialStartup) > 0 {
		log.Printf("Seeding startup set with %v", m.cfg.InitialStartup)
		if err := database.StartupSetAdd(m.cfg.InitialStartup...); err != nil {
			return fmt.Errorf("failed to seed startup set: %w", err)
		}
	}

	if err := m.startJobs(); err != nil {
		return err
	}

	m.autoStart(ctx)
	return nil
}

// startJobs registers the periodic maintenance jobs.
func (m *Manager) startJobs() error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{"@every 5s", "status refresh", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := m.ResolveDockerStatusAll(ctx); err != nil {
				log.Printf("Status refresh failed: %v", err)
			}
			if err := m.CheckRegistrationsChanged(ctx); err != nil {
				log.Printf("Registration check failed: %v", err)
			}
		}},
		{"@every 15s", "image reload", func() {
			if err := m.navigator.Load(); err != nil {
				log.Printf("Image reload failed: %v", err)
			}
		}},
		{"@hourly", "history cleanup", func() {
			if err := database.CleanupOldEvents(30 * 24 * time.Hour); err != nil {
				log.Printf("Event cleanup failed: %v", err)
			}
			if err := database.CleanupOldSystemVitals(7 * 24 * time.Hour); err != nil {
				log.Printf("Vitals cleanup failed: %v", err)
			}
		}},
	}

	for _, job := range jobs {
		if _, err := m.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
	}
	m.cron.Start()
	return nil
}

// Close stops the periodic jobs.
func (m *Manager) Close() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// autoStart runs every startup-set service that is native and not
// already active.
func (m *Manager) autoStart(ctx context.Context) {
	names, err := database.StartupSet()
	if err != nil {
		log.Printf("Failed to read startup set: %v", err)
		return
	}
	if len(names) > 0 {
		log.Printf("Autostarting services: %v", names)
	}
	for _, name := range names {
		svc, err := m.Get(name, GetOptions{})
		if err != nil {
			log.Printf("Autostart skipped %s: %v", name, err)
			continue
		}
		if svc.IsActive() || !m.navigator.IsNative(name) {
			continue
		}
		if _, err := m.RunService(ctx, name, GetOptions{}); err != nil {
			log.Printf("Autostart of %s failed: %v", name, err)
		}
	}
}

// Exists reports whether a service record is loaded.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.services[name]
	return ok
}

// Services returns snapshots of all known services sorted by name.
func (m *Manager) Services() []View {
	m.mu.RLock()
	services := make([]*Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.RUnlock()

	views := make([]View, 0, len(services))
	for _, svc := range services {
		views = append(views, svc.Snapshot())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// Get resolves a service record, lazily creating it from stored config
// and image metadata. Request options override both.
func (m *Manager) Get(name string, opts GetOptions) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(name, opts)
}

func (m *Manager) getLocked(name string, opts GetOptions) (*Service, error) {
	var envLayers []map[string]string
	wantedPos := opts.Pos

	svc, ok := m.services[name]
	if !ok {
		log.Printf("Loading state for service %s", name)
		stored, err := m.loadConfig(name)
		if err != nil {
			return nil, err
		}

		svc = NewService(name)

		var meta *images.Meta
		if img := m.navigator.Get(name); img != nil {
			meta = &img.Meta
			svc.SetMeta(meta)
			if len(meta.Env) > 0 {
				envLayers = append(envLayers, meta.Env)
			}
		}

		if env := configEnv(stored); len(env) > 0 {
			envLayers = append(envLayers, env)
		}

		if wantedPos == nil {
			wantedPos = configPos(stored)
		}
		if wantedPos == nil && meta != nil && meta.Pos != nil &&
			meta.Pos.Col != nil && meta.Pos.Row != nil {
			wantedPos = &Position{Col: *meta.Pos.Col, Row: *meta.Pos.Row}
		}
		if wantedPos == nil {
			wantedPos = &Position{Col: config.DefaultCol, Row: config.DefaultRow}
		}

		m.services[name] = svc
	}

	if len(opts.Env) > 0 {
		envLayers = append(envLayers, opts.Env)
	}
	if len(envLayers) > 0 {
		merged := make(map[string]string)
		for k, v := range svc.Env() {
			merged[k] = v
		}
		for _, layer := range envLayers {
			for k, v := range layer {
				merged[k] = v
			}
		}
		svc.SetEnv(merged)
	}

	if opts.BuildOptions != nil {
		svc.SetBuildOptions(*opts.BuildOptions)
	}

	if wantedPos != nil {
		svc.SetPos(m.allocate(name, *wantedPos))
	}

	return svc, nil
}

// configEnv extracts the env section of a stored config.
func configEnv(stored map[string]interface{}) map[string]string {
	if stored == nil {
		return nil
	}
	raw, ok := stored["env"].(map[string]interface{})
	if !ok {
		return nil
	}
	env := make(map[string]string, len(raw))
	for k, v := range raw {
		env[k] = fmt.Sprintf("%v", v)
	}
	return env
}

// configPos extracts the pos section of a stored config.
func configPos(stored map[string]interface{}) *Position {
	if stored == nil {
		return nil
	}
	raw, ok := stored["pos"].(map[string]interface{})
	if !ok {
		return nil
	}
	col, okCol := toInt(raw["col"])
	row, okRow := toInt(raw["row"])
	if !okCol || !okRow {
		return nil
	}
	return &Position{Col: col, Row: row}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// RunService rebuilds and starts a service and puts it on the startup
// set. The starting override masks the container state until the run
// settles.
func (m *Manager) RunService(ctx context.Context, name string, opts GetOptions) (*Service, error) {
	svc, err := m.Get(name, opts)
	if err != nil {
		return nil, err
	}
	svc.ClearStatus()
	svc.SetStatusOverride(StatusStarting)

	if err := m.doRun(ctx, svc); err != nil {
		svc.ClearStatus()
		m.recorder.CountServiceOp("run", "error")
		return nil, err
	}
	m.recorder.CountServiceOp("run", "ok")
	return svc, nil
}

func (m *Manager) doRun(ctx context.Context, svc *Service) error {
	env := m.sharedEnv()
	for k, v := range svc.Env() {
		env[k] = v
	}

	img := m.navigator.Get(svc.Name)
	if img == nil {
		return fmt.Errorf("unknown service image: %s", svc.Name)
	}

	if img.Kind == images.KindCompose {
		if m.composer == nil {
			return fmt.Errorf("compose support unavailable for %s", svc.Name)
		}
		if err := validateComposeDir(img.Path); err != nil {
			return err
		}
		err := m.composer.Up(ctx, compose.Options{
			ProjectName: svc.Name,
			WorkingDir:  img.Path,
			Env:         env,
		})
		if err != nil {
			return err
		}
	} else {
		opts := svc.BuildOptions()
		_, err := m.dock.RunContainer(ctx, svc.Name, docker.RunOptions{
			Env:        env,
			NoCache:    opts.NoCache,
			AutoRemove: opts.AutoRemove,
		})
		if err != nil {
			return err
		}
	}

	if err := database.StartupSetAdd(svc.Name); err != nil {
		log.Printf("Failed to add %s to startup set: %v", svc.Name, err)
	}
	m.saveServiceConfig(svc)
	return m.ResolveDockerStatus(ctx, svc.Name)
}

// StartService starts the existing container of a service.
func (m *Manager) StartService(ctx context.Context, name string) (*Service, error) {
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return nil, err
	}
	if m.navigator.IsNative(name) {
		if err := database.StartupSetAdd(name); err != nil {
			log.Printf("Failed to add %s to startup set: %v", name, err)
		}
	}
	svc.SetStatusOverride(StatusStarting)

	if err := m.dock.StartContainer(ctx, name); err != nil {
		svc.ClearStatus()
		m.recorder.CountServiceOp("start", "error")
		return nil, err
	}
	svc.ClearStatus()
	m.recorder.CountServiceOp("start", "ok")
	return svc, m.ResolveDockerStatus(ctx, name)
}

// StopService stops a service and drops it from the startup set.
func (m *Manager) StopService(ctx context.Context, name string) (*Service, error) {
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return nil, err
	}
	if err := database.StartupSetRemove(name); err != nil {
		log.Printf("Failed to remove %s from startup set: %v", name, err)
	}
	svc.SetStatusOverride(StatusStopping)

	if err := m.stopBackend(ctx, name); err != nil {
		svc.ClearStatus()
		m.recorder.CountServiceOp("stop", "error")
		return nil, err
	}
	svc.ClearStatus()
	m.recorder.CountServiceOp("stop", "ok")
	return svc, m.ResolveDockerStatus(ctx, name)
}

func (m *Manager) stopBackend(ctx context.Context, name string) error {
	if img := m.navigator.Get(name); img != nil && img.Kind == images.KindCompose {
		if m.composer == nil {
			return fmt.Errorf("compose support unavailable for %s", name)
		}
		return m.composer.Down(ctx, compose.Options{ProjectName: name, WorkingDir: img.Path}, false)
	}
	return m.dock.StopContainer(ctx, name)
}

// RestartService restarts the container of a service and re-checks
// registrations afterwards.
func (m *Manager) RestartService(ctx context.Context, name string) (*Service, error) {
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return nil, err
	}
	svc.SetStatusOverride(StatusRestarting)

	if err := m.dock.RestartContainer(ctx, name); err != nil {
		svc.ClearStatus()
		m.recorder.CountServiceOp("restart", "error")
		return nil, err
	}
	svc.ClearStatus()
	m.recorder.CountServiceOp("restart", "ok")

	if err := m.ResolveDockerStatus(ctx, name); err != nil {
		return svc, err
	}
	return svc, m.CheckRegistrationsChanged(ctx)
}

// RemoveService removes the container of a service and drops it from
// the startup set. The state record survives so its config and
// position are kept.
func (m *Manager) RemoveService(ctx context.Context, name string) (*Service, error) {
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return nil, err
	}
	if err := database.StartupSetRemove(name); err != nil {
		log.Printf("Failed to remove %s from startup set: %v", name, err)
	}
	svc.SetStatusOverride(StatusRemoving)

	if err := m.removeBackend(ctx, name); err != nil {
		svc.ClearStatus()
		m.recorder.CountServiceOp("remove", "error")
		return nil, err
	}
	svc.ClearStatus()
	svc.SetDockerState(nil)
	m.recorder.CountServiceOp("remove", "ok")
	return svc, nil
}

func (m *Manager) removeBackend(ctx context.Context, name string) error {
	if img := m.navigator.Get(name); img != nil && img.Kind == images.KindCompose {
		if m.composer == nil {
			return fmt.Errorf("compose support unavailable for %s", name)
		}
		return m.composer.Down(ctx, compose.Options{ProjectName: name, WorkingDir: img.Path}, true)
	}
	return m.dock.RemoveContainer(ctx, name)
}

// ResolveDockerStatus refreshes one service record from the daemon.
func (m *Manager) ResolveDockerStatus(ctx context.Context, name string) error {
	cont, err := m.dock.Get(ctx, name)
	if err != nil {
		return err
	}
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return err
	}
	if cont == nil {
		svc.SetDockerState(nil)
		return nil
	}
	info := cont.Info()
	svc.SetDockerState(&info)
	return nil
}

// ResolveDockerStatusAll refreshes every managed container and updates
// the running gauge.
func (m *Manager) ResolveDockerStatusAll(ctx context.Context) error {
	containers, err := m.dock.Containers(ctx, true)
	if err != nil {
		return err
	}

	running := 0
	for _, cont := range containers {
		svc, err := m.Get(cont.Name(), GetOptions{})
		if err != nil {
			return err
		}
		info := cont.Info()
		svc.SetDockerState(&info)
		if cont.Running() {
			running++
		}
	}
	m.recorder.SetRunningManaged(running)
	m.recorder.SetReservedPorts(m.dock.Pool().ReservedCount())
	return nil
}

// HandleContainerEvent records a daemon event and refreshes the
// affected service. Wired as the docker event watcher callback.
func (m *Manager) HandleContainerEvent(containerName, action, actorID string) {
	m.recorder.CountContainerEvent(action)
	if err := database.RecordContainerEvent(containerName, action, actorID); err != nil {
		log.Printf("Failed to record event %s/%s: %v", containerName, action, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := m.ResolveDockerStatus(ctx, containerName); err != nil {
		log.Printf("Failed to refresh %s after %s event: %v", containerName, action, err)
	}
}

// SetAppState stores the self-reported state a service posted,
// including its method registrations, and re-checks the frontier push.
func (m *Manager) SetAppState(ctx context.Context, name string, payload map[string]interface{}) error {
	svc, err := m.Get(name, GetOptions{})
	if err != nil {
		return err
	}
	svc.SetAppState(payload, parseRegistrations(name, payload))
	return m.CheckRegistrationsChanged(ctx)
}

// parseRegistrations pulls the register section out of a state payload.
func parseRegistrations(service string, payload map[string]interface{}) []Registration {
	raw, ok := payload["register"].([]interface{})
	if !ok {
		return nil
	}
	regs := make([]Registration, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		reg := Registration{Service: service}
		if v, ok := entry["service"].(string); ok && v != "" {
			reg.Service = v
		}
		if v, ok := entry["method"].(string); ok {
			reg.Method = v
		}
		if v, ok := entry["role"].(string); ok {
			reg.Role = v
		}
		if reg.Method != "" {
			regs = append(regs, reg)
		}
	}
	return regs
}

// Registrations collects the announced methods of all active services
// in a stable order.
func (m *Manager) Registrations() []Registration {
	m.mu.RLock()
	services := make([]*Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.RUnlock()

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })

	var regs []Registration
	for _, svc := range services {
		if !svc.IsActive() {
			continue
		}
		regs = append(regs, svc.Registrations()...)
	}
	return regs
}

// CheckRegistrationsChanged hashes the current registrations and, when
// the hash moved, pushes the new set to the frontier.
func (m *Manager) CheckRegistrationsChanged(ctx context.Context) error {
	regs := m.Registrations()
	encoded, err := json.Marshal(regs)
	if err != nil {
		return fmt.Errorf("failed to encode registrations: %w", err)
	}

	h := fnv.New64a()
	h.Write(encoded)
	newHash := h.Sum64()

	m.mu.Lock()
	changed := newHash != m.regsHash
	if changed {
		m.regsHash = newHash
	}
	m.mu.Unlock()

	if !changed {
		return nil
	}
	return m.pushRegistrations(ctx, regs, newHash)
}

// pushRegistrations notifies the frontier about the current method set.
func (m *Manager) pushRegistrations(ctx context.Context, regs []Registration, hash uint64) error {
	if m.cfg.FrontierURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"register":   regs,
		"state_hash": fmt.Sprintf("%x", hash),
	})
	if err != nil {
		return fmt.Errorf("failed to encode registration push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.FrontierURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build registration push: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push registrations to frontier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("frontier rejected registration push: %s", resp.Status)
	}
	log.Printf("Pushed %d registrations to frontier", len(regs))
	return nil
}

// sharedEnv returns a copy of the env section of the shared config.
func (m *Manager) sharedEnv() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env := make(map[string]string)
	for k, v := range m.cfg.DefaultEnv {
		env[k] = v
	}
	for k, v := range configEnv(m.sharedConfig) {
		env[k] = v
	}
	return env
}

// loadConfig reads a stored config, caching the shared one.
func (m *Manager) loadConfig(name string) (map[string]interface{}, error) {
	stored, err := database.LoadConfig(name)
	if err != nil {
		return nil, err
	}
	if name == config.SharedConfigKey && stored != nil {
		m.sharedConfig = stored
	}
	return stored, nil
}

// LoadConfigFor returns the stored config of a service, or nil.
func (m *Manager) LoadConfigFor(name string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadConfig(name)
}

// ConfigNames lists all stored config names.
func (m *Manager) ConfigNames() ([]string, error) {
	return database.ListConfigNames()
}

// UpdateConfig applies dot-path updates to a stored config. An empty
// value deletes the key. Returns the updated config.
func (m *Manager) UpdateConfig(name string, updates map[string]string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.loadConfig(name)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = make(map[string]interface{})
	}

	for key, value := range updates {
		if err := applyConfigUpdate(stored, key, value); err != nil {
			return nil, err
		}
	}

	if err := database.SaveConfig(name, stored); err != nil {
		return nil, err
	}
	if name == config.SharedConfigKey {
		m.sharedConfig = stored
	}
	return stored, nil
}

// applyConfigUpdate walks a dot-separated path, creating intermediate
// objects, and sets or deletes the leaf key.
func applyConfigUpdate(target map[string]interface{}, key, value string) error {
	parts := strings.Split(key, ".")
	leaf := parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		next, ok := target[part].(map[string]interface{})
		if !ok {
			if existing, present := target[part]; present {
				return fmt.Errorf("config key %s is not an object (%T)", part, existing)
			}
			next = make(map[string]interface{})
			target[part] = next
		}
		target = next
	}
	if value == "" {
		delete(target, leaf)
	} else {
		target[leaf] = value
	}
	return nil
}

// saveServiceConfig persists the env, build options and position of a
// service after a successful run.
func (m *Manager) saveServiceConfig(svc *Service) {
	stored := map[string]interface{}{
		"env": svc.Env(),
		"pos": map[string]interface{}{
			"col": svc.Pos().Col,
			"row": svc.Pos().Row,
		},
	}
	opts := svc.BuildOptions()
	if opts.NoCache || opts.AutoRemove {
		stored["build_options"] = map[string]interface{}{
			"nocache":     opts.NoCache,
			"auto_remove": opts.AutoRemove,
		}
	}
	if err := database.SaveConfig(svc.Name, stored); err != nil {
		log.Printf("Failed to save config for %s: %v", svc.Name, err)
	}
}

// StartupSet lists the services marked for autostart.
func (m *Manager) StartupSet() ([]string, error) {
	return database.StartupSet()
}

// validateComposeDir runs the security checks on the compose file of an
// image directory before it is handed to the compose runner.
func validateComposeDir(dir string) error {
	path := filepath.Join(dir, "docker-compose.yml")
	content, err := os.ReadFile(path)
	if err != nil {
		path = filepath.Join(dir, "docker-compose.yaml")
		content, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read compose file in %s: %w", dir, err)
		}
	}
	return security.NewValidator(dir).ValidateCompose(content)
}
