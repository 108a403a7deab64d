package docker

import (
	"strings"

	"github.com/docker/docker/api/types/container"
)

// ContainerInfo is the short description of a managed container served
// by the API.
type ContainerInfo struct {
	Name    string `json:"name"`
	ShortID string `json:"short_id"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Ports   []int  `json:"ports,omitempty"`
}

// Managed wraps one container summary from the Docker API.
type Managed struct {
	summary container.Summary
}

func newManaged(summary container.Summary) *Managed {
	return &Managed{summary: summary}
}

// Name returns the primary container name without the API's leading slash.
func (m *Managed) Name() string {
	for _, name := range m.summary.Names {
		return strings.TrimPrefix(name, "/")
	}
	return ""
}

// ID returns the full container id.
func (m *Managed) ID() string {
	return m.summary.ID
}

// ShortID returns the first 12 characters of the container id.
func (m *Managed) ShortID() string {
	if len(m.summary.ID) > 12 {
		return m.summary.ID[:12]
	}
	return m.summary.ID
}

// State returns the container state (running, exited, ...).
func (m *Managed) State() string {
	return m.summary.State
}

// Running reports whether the container is in the running state.
func (m *Managed) Running() bool {
	return strings.ToLower(m.summary.State) == "running"
}

// HostPorts returns the published host ports of the container.
func (m *Managed) HostPorts() []int {
	var ports []int
	for _, p := range m.summary.Ports {
		if p.PublicPort > 0 {
			ports = append(ports, int(p.PublicPort))
		}
	}
	return ports
}

// Info returns the short API description of the container.
func (m *Managed) Info() ContainerInfo {
	return ContainerInfo{
		Name:    m.Name(),
		ShortID: m.ShortID(),
		State:   m.summary.State,
		Status:  m.summary.Status,
		Ports:   m.HostPorts(),
	}
}
