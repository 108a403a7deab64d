// Package docker manages the containers director owns: listing,
// lifecycle, image builds, published port allocation and the Docker
// event stream.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Client wraps the Docker client
type Client struct {
	dockerClient *client.Client
}

// NewClient creates a new Docker client
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Test connection
	ctx := context.Background()
	_, err = cli.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return &Client{
		dockerClient: cli,
	}, nil
}

// Close closes the Docker client connection
func (c *Client) Close() error {
	return c.dockerClient.Close()
}
