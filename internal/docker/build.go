package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/archive"
	"go.opentelemetry.io/otel/attribute"

	"director/internal/images"
	"director/internal/telemetry"
)

var buildStepRe = regexp.MustCompile(`Step\s(\d+)/(\d+)`)

// buildChunk is one JSON message of the Docker build stream.
type buildChunk struct {
	Stream string `json:"stream,omitempty"`
	Status string `json:"status,omitempty"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
	Aux    *struct {
		ID string `json:"ID"`
	} `json:"aux,omitempty"`
}

// parseBuildStep extracts the current and total step from a build
// stream line, returning ok=false when the line is not a step marker.
func parseBuildStep(line string) (current, total int, ok bool) {
	groups := buildStepRe.FindStringSubmatch(line)
	if groups == nil {
		return 0, 0, false
	}
	fmt.Sscanf(groups[1], "%d", &current)
	fmt.Sscanf(groups[2], "%d", &total)
	return current, total, true
}

// BuildImage builds the service image from its directory and returns
// the resulting image ID.
func (m *Manager) BuildImage(ctx context.Context, img *images.Image, noCache bool) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "docker.build_image")
	defer span.End()
	span.SetAttributes(
		attribute.String("image.name", img.Name),
		attribute.String("image.path", img.Path),
	)

	log.Printf("Building image %s from %s", img.Tag(), img.Path)
	buildStart := time.Now()

	buildContext, err := archive.TarWithOptions(img.Path, &archive.TarOptions{})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create build context for %s: %w", img.Name, err)
	}
	defer buildContext.Close()

	resp, err := m.client.dockerClient.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:    []string{img.Tag()},
		NoCache: noCache,
		Remove:  true,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to build image %s: %w", img.Name, err)
	}
	defer resp.Body.Close()

	imageID, err := consumeBuildStream(resp.Body, img.Name)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	m.recorder.ObserveBuildDuration(time.Since(buildStart))
	log.Printf("Docker image created: %s (%s)", img.Tag(), imageID)
	return imageID, nil
}

// consumeBuildStream drains the JSON build stream, logging progress and
// returning the built image ID.
func consumeBuildStream(body io.Reader, name string) (string, error) {
	decoder := json.NewDecoder(body)
	var imageID string
	last := time.Now()

	for {
		var chunk buildChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("failed to decode build stream for %s: %w", name, err)
		}

		switch {
		case chunk.Error != "":
			return "", fmt.Errorf("image build failed for %s: %s", name, chunk.Error)
		case chunk.Aux != nil && chunk.Aux.ID != "":
			imageID = chunk.Aux.ID
		case chunk.Stream != "":
			if current, total, ok := parseBuildStep(chunk.Stream); ok {
				log.Printf("Docker build step %d/%d for %s", current, total, name)
			}
		case chunk.Status != "" && chunk.ID != "":
			// Layer status lines arrive continuously; throttle logging.
			if time.Since(last) > time.Second {
				log.Printf("Docker build progress for %s: %s %s", name, chunk.ID, chunk.Status)
				last = time.Now()
			}
		}
	}

	if imageID == "" {
		return "", fmt.Errorf("build stream for %s ended without an image id", name)
	}
	return imageID, nil
}
