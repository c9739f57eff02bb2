// ABOUTME: Deployment manifest describing one voice application
// ABOUTME: Loaded from YAML and validated before anything goes on the wire

package deploy

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrManifestInvalid wraps all manifest validation failures.
var ErrManifestInvalid = errors.New("deploy: invalid manifest")

// appNameRe constrains application names to DNS-label shape.
var appNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

const maxAppNameLen = 63

// Manifest describes a voice application to the deployment service.
type Manifest struct {
	// Name is the application identifier, unique per workspace.
	Name string `yaml:"name" json:"name"`

	// Description is free-form text shown in listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Entry is the application entrypoint inside the artifact. Defaults to
	// "main" when empty.
	Entry string `yaml:"entry,omitempty" json:"entry,omitempty"`

	// Env is injected into the application environment at run time.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest is deployable. Returns an error wrapping
// ErrManifestInvalid on the first problem found.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: manifest is nil", ErrManifestInvalid)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrManifestInvalid)
	}
	if len(m.Name) > maxAppNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrManifestInvalid, maxAppNameLen)
	}
	if !appNameRe.MatchString(m.Name) {
		return fmt.Errorf("%w: name %q must be lowercase alphanumeric with hyphens", ErrManifestInvalid, m.Name)
	}
	for k := range m.Env {
		if k == "" {
			return fmt.Errorf("%w: env contains an empty variable name", ErrManifestInvalid)
		}
	}
	return nil
}
