// Package security validates service names and compose files before
// anything reaches the Docker daemon.
package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// serviceNamePattern matches names safe to use as container names and
// image directory names.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,62}$`)

// ValidateServiceName rejects names that could escape the images
// directory or collide with Docker naming rules.
func ValidateServiceName(name string) error {
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid service name %q: must match %s", name, serviceNamePattern.String())
	}
	return nil
}

// DangerousCapabilities are Docker capabilities a managed service may
// not request.
var DangerousCapabilities = []string{
	"SYS_ADMIN",
	"NET_ADMIN",
	"SYS_MODULE",
	"SYS_RAWIO",
	"SYS_PTRACE",
	"SYS_BOOT",
	"MAC_ADMIN",
	"MAC_OVERRIDE",
	"DAC_READ_SEARCH",
	"SETFCAP",
}

// composeFile is the minimal shape needed for validation.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Privileged bool          `yaml:"privileged"`
	CapAdd     []string      `yaml:"cap_add"`
	Volumes    []interface{} `yaml:"volumes"`
}

// ValidationError describes a rejected compose directive.
type ValidationError struct {
	Service string
	Rule    string
	Detail  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for service %q: %s - %s", e.Service, e.Rule, e.Detail)
}

// Validator checks a compose file of one managed service.
type Validator struct {
	// imageDir is the only directory bind mounts may come from.
	imageDir string
}

// NewValidator creates a validator for the service rooted at imageDir.
func NewValidator(imageDir string) *Validator {
	return &Validator{imageDir: filepath.Clean(imageDir)}
}

// ValidateCompose rejects privileged containers, dangerous capabilities
// and bind mounts outside the service's image directory.
func (v *Validator) ValidateCompose(yamlContent []byte) error {
	var file composeFile
	if err := yaml.Unmarshal(yamlContent, &file); err != nil {
		return fmt.Errorf("failed to parse compose file: %w", err)
	}

	for name, svc := range file.Services {
		if svc.Privileged {
			return ValidationError{Service: name, Rule: "privileged mode", Detail: "privileged containers are not allowed"}
		}
		if err := v.validateCapabilities(name, svc); err != nil {
			return err
		}
		if err := v.validateBindMounts(name, svc); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateCapabilities(name string, svc composeService) error {
	for _, capability := range svc.CapAdd {
		normalized := strings.TrimPrefix(strings.ToUpper(capability), "CAP_")
		for _, dangerous := range DangerousCapabilities {
			if normalized == dangerous {
				return ValidationError{
					Service: name,
					Rule:    "dangerous capabilities",
					Detail:  fmt.Sprintf("capability %q is not allowed", capability),
				}
			}
		}
	}
	return nil
}

func (v *Validator) validateBindMounts(name string, svc composeService) error {
	for _, volume := range svc.Volumes {
		var source string
		switch vol := volume.(type) {
		case string:
			parts := strings.SplitN(vol, ":", 3)
			if len(parts) < 2 {
				continue
			}
			source = parts[0]
		case map[string]interface{}:
			volumeType, _ := vol["type"].(string)
			if volumeType != "bind" {
				continue
			}
			source, _ = vol["source"].(string)
		default:
			continue
		}

		// Named volumes need no path check.
		if source == "" || (!strings.HasPrefix(source, "/") && !strings.HasPrefix(source, ".")) {
			continue
		}

		resolved := source
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(v.imageDir, resolved)
		}
		resolved = filepath.Clean(resolved)

		if resolved != v.imageDir && !strings.HasPrefix(resolved, v.imageDir+string(filepath.Separator)) {
			return ValidationError{
				Service: name,
				Rule:    "bind mount path",
				Detail:  fmt.Sprintf("bind mount %q must stay inside %s; use named volumes for anything else", source, v.imageDir),
			}
		}
	}
	return nil
}
