package state

import (
	"fmt"
	"sync"

	"director/internal/docker"
	"director/internal/images"
)

// Transient status overrides shown while a docker operation is in
// flight. They mask the container state until the operation settles.
const (
	StatusStarting   = "starting"
	StatusStopping   = "stopping"
	StatusRestarting = "restarting"
	StatusRemoving   = "removing"
)

// Position is an occupied dashboard cell.
type Position struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Key renders the cell as "COLxROW" for occupancy lookups.
func (p Position) Key() string {
	return fmt.Sprintf("%dx%d", p.Col, p.Row)
}

// BuildOptions are per-service container run preferences.
type BuildOptions struct {
	NoCache    bool `json:"nocache,omitempty"`
	AutoRemove bool `json:"auto_remove,omitempty"`
}

// Registration is one method a running service announces to the
// frontier via its state callback.
type Registration struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Role    string `json:"role,omitempty"`
}

// Service is the in-memory record for one managed service.
type Service struct {
	Name string

	mu             sync.RWMutex
	env            map[string]string
	buildOpts      BuildOptions
	pos            Position
	placed         bool
	meta           *images.Meta
	dockerInfo     *docker.ContainerInfo
	appState       map[string]interface{}
	registrations  []Registration
	statusOverride string
}

// NewService creates an empty service record.
func NewService(name string) *Service {
	return &Service{Name: name, env: make(map[string]string)}
}

// SetEnv replaces the service environment.
func (s *Service) SetEnv(env map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = make(map[string]string, len(env))
	for k, v := range env {
		s.env[k] = v
	}
}

// Env returns a copy of the service environment.
func (s *Service) Env() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return env
}

// SetBuildOptions replaces the run preferences.
func (s *Service) SetBuildOptions(opts BuildOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildOpts = opts
}

// BuildOptions returns the run preferences.
func (s *Service) BuildOptions() BuildOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildOpts
}

// SetMeta attaches the image metadata sidecar.
func (s *Service) SetMeta(meta *images.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
}

// Meta returns the attached image metadata, or nil.
func (s *Service) Meta() *images.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// SetPos records the allocated dashboard cell.
func (s *Service) SetPos(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.placed = true
}

// Placed reports whether the service has been given a cell yet.
func (s *Service) Placed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.placed
}

// Pos returns the allocated dashboard cell.
func (s *Service) Pos() Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

// SetDockerState records the latest container summary.
func (s *Service) SetDockerState(info *docker.ContainerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dockerInfo = info
}

// SetAppState records the payload a running service posted about
// itself, including its method registrations.
func (s *Service) SetAppState(payload map[string]interface{}, regs []Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appState = payload
	s.registrations = regs
}

// Registrations returns the methods the service announced.
func (s *Service) Registrations() []Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Registration(nil), s.registrations...)
}

// SetStatusOverride masks the container state with a transient status.
func (s *Service) SetStatusOverride(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusOverride = status
}

// ClearStatus drops the transient status override.
func (s *Service) ClearStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusOverride = ""
}

// IsActive reports whether the container backing the service is running.
func (s *Service) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dockerInfo != nil && s.dockerInfo.State == "running"
}

// Status returns the override when one is set, otherwise the container
// state, otherwise "stopped".
func (s *Service) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.statusOverride != "" {
		return s.statusOverride
	}
	if s.dockerInfo != nil {
		return s.dockerInfo.State
	}
	return "stopped"
}

// View is the JSON shape of a service in API responses.
type View struct {
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Pos      Position               `json:"pos"`
	Ports    []int                  `json:"ports,omitempty"`
	ShortID  string                 `json:"short_id,omitempty"`
	Env      map[string]string      `json:"env,omitempty"`
	AppState map[string]interface{} `json:"app_state,omitempty"`
}

// Snapshot renders the service for API responses.
func (s *Service) Snapshot() View {
	status := s.Status()
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := View{
		Name:     s.Name,
		Status:   status,
		Pos:      s.pos,
		Env:      s.env,
		AppState: s.appState,
	}
	if s.dockerInfo != nil {
		view.Ports = s.dockerInfo.Ports
		view.ShortID = s.dockerInfo.ShortID
	}
	return view
}
