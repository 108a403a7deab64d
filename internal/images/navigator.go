// Package images discovers and describes buildable service images.
package images

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Position is a preferred dashboard cell carried in image metadata.
type Position struct {
	Col *int `json:"col,omitempty" yaml:"col"`
	Row *int `json:"row,omitempty" yaml:"row"`
}

// Meta is the optional director.yml sidecar next to a Dockerfile.
type Meta struct {
	// Ports lists container ports the service exposes; each gets a
	// published host port from the pool at run time.
	Ports []int `json:"ports,omitempty" yaml:"ports"`
	// Env is the default environment for the service.
	Env map[string]string `json:"env,omitempty" yaml:"env"`
	// Pos is the preferred dashboard position.
	Pos *Position `json:"pos,omitempty" yaml:"pos"`
}

// Kind distinguishes how a service directory is run.
type Kind string

const (
	// KindDockerfile services are built from a Dockerfile and run as a
	// single managed container.
	KindDockerfile Kind = "dockerfile"
	// KindCompose services carry a docker-compose.yml and are driven
	// through the compose SDK.
	KindCompose Kind = "compose"
)

// Image describes one discovered service image.
type Image struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Meta Meta   `json:"meta"`
}

// Tag returns the image tag used for builds of this service.
func (i *Image) Tag() string {
	return fmt.Sprintf("director/%s:latest", i.Name)
}

// Navigator scans the images directory and answers image lookups.
type Navigator struct {
	dir string

	mu     sync.RWMutex
	images map[string]*Image
}

// NewNavigator creates a navigator over the given images directory.
func NewNavigator(dir string) *Navigator {
	return &Navigator{
		dir:    dir,
		images: make(map[string]*Image),
	}
}

// Dir returns the scanned images directory.
func (n *Navigator) Dir() string {
	return n.dir
}

// Load rescans the images directory. Existing entries for removed
// directories are dropped.
func (n *Navigator) Load() error {
	entries, err := os.ReadDir(n.dir)
	if err != nil {
		if os.IsNotExist(err) {
			n.mu.Lock()
			n.images = make(map[string]*Image)
			n.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read images directory: %w", err)
	}

	images := make(map[string]*Image)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(n.dir, entry.Name())
		img, err := describe(entry.Name(), path)
		if err != nil {
			return fmt.Errorf("failed to describe image %s: %w", entry.Name(), err)
		}
		if img == nil {
			// Neither Dockerfile nor compose file present; skip.
			continue
		}
		images[img.Name] = img
	}

	n.mu.Lock()
	n.images = images
	n.mu.Unlock()
	return nil
}

// describe inspects a single service directory.
func describe(name, path string) (*Image, error) {
	img := &Image{Name: name, Path: path}

	if _, err := os.Stat(filepath.Join(path, "Dockerfile")); err == nil {
		img.Kind = KindDockerfile
	} else if _, err := os.Stat(filepath.Join(path, "docker-compose.yml")); err == nil {
		img.Kind = KindCompose
	} else {
		return nil, nil
	}

	metaPath := filepath.Join(path, "director.yml")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return img, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", metaPath, err)
	}
	if err := yaml.Unmarshal(data, &img.Meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", metaPath, err)
	}
	return img, nil
}

// Get returns the image for a service name, or nil when unknown.
func (n *Navigator) Get(name string) *Image {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.images[name]
}

// IsNative reports whether the service is backed by a local image
// definition and therefore runnable by director.
func (n *Navigator) IsNative(name string) bool {
	return n.Get(name) != nil
}

// List returns all known images sorted by name.
func (n *Navigator) List() []*Image {
	n.mu.RLock()
	defer n.mu.RUnlock()

	list := make([]*Image, 0, len(n.images))
	for _, img := range n.images {
		list = append(list, img)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
