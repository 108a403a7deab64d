package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/cli/cli/command"
	"github.com/docker/cli/cli/flags"
	"github.com/docker/compose/v2/pkg/api"
	"github.com/docker/compose/v2/pkg/compose"

	"director/internal/config"
)

// Runner drives multi-container services through the Docker Compose SDK.
// Services whose image directory carries a docker-compose.yml are started
// as a compose project instead of a single container.
type Runner struct {
	service api.Service
}

// NewRunner creates a compose runner backed by a default Docker CLI instance.
func NewRunner() (*Runner, error) {
	dockerCli, err := command.NewDockerCli()
	if err != nil {
		return nil, fmt.Errorf("failed to create docker cli: %w", err)
	}

	if err := dockerCli.Initialize(flags.NewClientOptions()); err != nil {
		return nil, fmt.Errorf("failed to initialize docker cli: %w", err)
	}

	return &Runner{service: compose.NewComposeService(dockerCli)}, nil
}

// Options describe a single compose project run.
type Options struct {
	// ProjectName names the compose project; usually the service name.
	ProjectName string
	// WorkingDir is the directory holding docker-compose.yml.
	WorkingDir string
	// Env is interpolated into the compose file and injected into
	// every service container.
	Env map[string]string
}

// Up builds and starts the project in detached mode.
func (r *Runner) Up(ctx context.Context, opts Options) error {
	project, err := r.loadProject(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	upOptions := api.UpOptions{
		Create: api.CreateOptions{
			RemoveOrphans: true,
		},
		Start: api.StartOptions{
			Project: project,
			Wait:    false,
		},
	}

	return r.service.Up(ctx, project, upOptions)
}

// Down stops and removes the project's containers.
func (r *Runner) Down(ctx context.Context, opts Options, removeVolumes bool) error {
	project, err := r.loadProject(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	downOptions := api.DownOptions{
		RemoveOrphans: true,
		Volumes:       removeVolumes,
	}

	return r.service.Down(ctx, project.Name, downOptions)
}

// PS lists the project's containers.
func (r *Runner) PS(ctx context.Context, opts Options) ([]api.ContainerSummary, error) {
	project, err := r.loadProject(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	return r.service.Ps(ctx, project.Name, api.PsOptions{All: true})
}

// loadProject parses the compose file in opts.WorkingDir and stamps every
// service with the managed label so the container listing picks it up.
func (r *Runner) loadProject(ctx context.Context, opts Options) (*types.Project, error) {
	composeFile := filepath.Join(opts.WorkingDir, "docker-compose.yml")
	if _, err := os.Stat(composeFile); os.IsNotExist(err) {
		composeFile = filepath.Join(opts.WorkingDir, "docker-compose.yaml")
		if _, err := os.Stat(composeFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("no docker-compose.yml or docker-compose.yaml found in %s", opts.WorkingDir)
		}
	}

	configDetails := types.ConfigDetails{
		WorkingDir:  opts.WorkingDir,
		Environment: types.Mapping(opts.Env),
		ConfigFiles: []types.ConfigFile{
			{Filename: composeFile},
		},
	}

	project, err := loader.LoadWithContext(ctx, configDetails, func(options *loader.Options) {
		options.SetProjectName(opts.ProjectName, true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load compose file: %w", err)
	}

	for name, svc := range project.Services {
		if svc.Labels == nil {
			svc.Labels = types.Labels{}
		}
		svc.Labels[config.ManagedLabel] = "1"
		svc.Labels[api.ProjectLabel] = project.Name
		svc.Labels[api.ServiceLabel] = name
		svc.Labels[api.OneoffLabel] = "False"
		if svc.CustomLabels == nil {
			svc.CustomLabels = types.Labels{}
		}
		svc.CustomLabels[api.ProjectLabel] = project.Name
		svc.CustomLabels[api.ServiceLabel] = name
		svc.CustomLabels[api.WorkingDirLabel] = opts.WorkingDir
		svc.CustomLabels[api.ConfigFilesLabel] = composeFile
		svc.CustomLabels[api.OneoffLabel] = "False"

		if svc.Environment == nil {
			svc.Environment = types.MappingWithEquals{}
		}
		for k, v := range opts.Env {
			v := v
			if _, ok := svc.Environment[k]; !ok {
				svc.Environment[k] = &v
			}
		}

		project.Services[name] = svc
	}

	return project, nil
}
