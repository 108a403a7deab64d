package docker

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"go.opentelemetry.io/otel/attribute"

	"director/internal/config"
	"director/internal/images"
	"director/internal/metrics"
	"director/internal/telemetry"
)

// RunOptions control a single container run.
type RunOptions struct {
	Env        map[string]string
	NoCache    bool
	AutoRemove bool
}

// Manager drives managed containers through the Docker API.
type Manager struct {
	client    *Client
	navigator *images.Navigator
	pool      *PortPool
	hub       *LogHub
	recorder  *metrics.Recorder
}

// NewManager creates a container manager over a live Docker connection.
func NewManager(navigator *images.Navigator, startPort, endPort int, recorder *metrics.Recorder) (*Manager, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}

	return &Manager{
		client:    client,
		navigator: navigator,
		pool:      NewPortPool(startPort, endPort),
		hub:       NewLogHub(),
		recorder:  recorder,
	}, nil
}

// Close releases the Docker connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Ping checks that the Docker daemon is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.client.dockerClient.Ping(ctx)
	return err
}

// Pool exposes the host port pool.
func (m *Manager) Pool() *PortPool {
	return m.pool
}

// Hub exposes the container log hub.
func (m *Manager) Hub() *LogHub {
	return m.hub
}

// Containers lists managed containers in all states. When all is false
// only containers carrying the managed label are returned.
func (m *Manager) Containers(ctx context.Context, onlyManaged bool) ([]*Managed, error) {
	opts := container.ListOptions{All: true}
	if onlyManaged {
		opts.Filters = filters.NewArgs(filters.Arg("label", config.ManagedLabel))
	}

	summaries, err := m.client.dockerClient.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	list := make([]*Managed, 0, len(summaries))
	for _, summary := range summaries {
		list = append(list, newManaged(summary))
	}
	return list, nil
}

// ContainersByName returns managed containers keyed by name.
func (m *Manager) ContainersByName(ctx context.Context) (map[string]*Managed, error) {
	list, err := m.Containers(ctx, true)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Managed, len(list))
	for _, c := range list {
		byName[c.Name()] = c
	}
	return byName, nil
}

// Get returns the managed container with the given name, or nil when no
// such container exists.
func (m *Manager) Get(ctx context.Context, name string) (*Managed, error) {
	conts, err := m.ContainersByName(ctx)
	if err != nil {
		return nil, err
	}
	return conts[name], nil
}

// UsedHostPorts returns every host port bound by a managed container.
func (m *Manager) UsedHostPorts(ctx context.Context) ([]int, error) {
	conts, err := m.Containers(ctx, true)
	if err != nil {
		return nil, err
	}
	var used []int
	for _, c := range conts {
		used = append(used, c.HostPorts()...)
	}
	return used, nil
}

// StartContainer starts a stopped managed container.
func (m *Manager) StartContainer(ctx context.Context, name string) error {
	ctx, span := telemetry.StartSpan(ctx, "docker.start_container")
	defer span.End()
	span.SetAttributes(attribute.String("container.name", name))

	log.Printf("Starting container %s", name)
	if err := m.client.dockerClient.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// StopContainer stops a running managed container.
func (m *Manager) StopContainer(ctx context.Context, name string) error {
	ctx, span := telemetry.StartSpan(ctx, "docker.stop_container")
	defer span.End()
	span.SetAttributes(attribute.String("container.name", name))

	log.Printf("Stopping container %s", name)
	if err := m.client.dockerClient.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// RestartContainer restarts a managed container.
func (m *Manager) RestartContainer(ctx context.Context, name string) error {
	ctx, span := telemetry.StartSpan(ctx, "docker.restart_container")
	defer span.End()
	span.SetAttributes(attribute.String("container.name", name))

	log.Printf("Restarting container %s", name)
	if err := m.client.dockerClient.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	return nil
}

// RemoveContainer stops and deletes the named container if it exists,
// then waits until the daemon reports it gone. Auto-remove containers
// delete themselves on stop.
func (m *Manager) RemoveContainer(ctx context.Context, name string) error {
	ctx, span := telemetry.StartSpan(ctx, "docker.remove_container")
	defer span.End()
	span.SetAttributes(attribute.String("container.name", name))

	inspect, err := m.client.dockerClient.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	autoRemove := inspect.HostConfig != nil && inspect.HostConfig.AutoRemove

	if inspect.State != nil && inspect.State.Running {
		log.Printf("Stopping container %s before removal", name)
		if err := m.client.dockerClient.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to stop container %s: %w", name, err)
		}
	}

	if !autoRemove {
		if err := m.client.dockerClient.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil && !errdefs.IsNotFound(err) {
			span.RecordError(err)
			return fmt.Errorf("failed to remove container %s: %w", name, err)
		}
	}

	// The daemon may already have forgotten the container; 404 on the
	// wait is fine.
	waitCh, errCh := m.client.dockerClient.ContainerWait(ctx, inspect.ID, container.WaitConditionRemoved)
	select {
	case <-waitCh:
	case err := <-errCh:
		if err != nil && !errdefs.IsNotFound(err) {
			span.RecordError(err)
			return fmt.Errorf("failed waiting for %s removal: %w", name, err)
		}
	case <-time.After(60 * time.Second):
		return fmt.Errorf("timed out waiting for %s removal", name)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// RunContainer builds the service image, replaces any previous
// container and starts a fresh one with published ports from the pool.
func (m *Manager) RunContainer(ctx context.Context, name string, opts RunOptions) (*ContainerInfo, error) {
	ctx, span := telemetry.StartSpan(ctx, "docker.run_container")
	defer span.End()
	span.SetAttributes(attribute.String("container.name", name))

	img := m.navigator.Get(name)
	if img == nil {
		return nil, fmt.Errorf("unknown service image: %s", name)
	}

	if _, err := m.BuildImage(ctx, img, opts.NoCache); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := m.RemoveContainer(ctx, name); err != nil {
		span.RecordError(err)
		return nil, err
	}

	used, err := m.UsedHostPorts(ctx)
	if err != nil {
		return nil, err
	}
	allocated, err := m.pool.Allocate(used, len(img.Meta.Ports))
	if err != nil {
		return nil, err
	}
	defer m.pool.Free(allocated)

	containerConfig := &container.Config{
		Image:  img.Tag(),
		Env:    envSlice(opts.Env),
		Labels: map[string]string{config.ManagedLabel: "1"},
	}
	hostConfig := &container.HostConfig{
		AutoRemove:   opts.AutoRemove,
		PortBindings: nat.PortMap{},
	}

	exposed := nat.PortSet{}
	for i, containerPort := range img.Meta.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return nil, fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		hostConfig.PortBindings[port] = []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(allocated[i]),
		}}
	}
	containerConfig.ExposedPorts = exposed

	log.Printf("Starting container %s with ports %v", name, allocated)
	created, err := m.client.dockerClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create container %s: %w", name, err)
	}

	if err := m.client.dockerClient.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to start container %s: %w", name, err)
	}

	cont, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if cont == nil {
		return nil, fmt.Errorf("container %s disappeared after start", name)
	}

	info := cont.Info()
	log.Printf("Started container %s [%s] %v", info.Name, info.ShortID, info.Ports)
	return &info, nil
}

// envSlice converts an env map into Docker's KEY=VALUE form.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
