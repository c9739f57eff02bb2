// ABOUTME: Tests for manifest loading and validation
// ABOUTME: Covers YAML parsing, name constraints, and env var checks

package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fonoster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
name: ivr-demo
description: Demo IVR application
entry: main
env:
  GREETING: hello
  LANGUAGE: en-US
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "ivr-demo", m.Name)
	assert.Equal(t, "Demo IVR application", m.Description)
	assert.Equal(t, "main", m.Entry)
	assert.Equal(t, "hello", m.Env["GREETING"])
	assert.Equal(t, "en-US", m.Env["LANGUAGE"])
}

func TestLoadManifest_MinimalFile(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "name: tiny\n"))
	require.NoError(t, err)
	assert.Equal(t, "tiny", m.Name)
	assert.Empty(t, m.Entry)
	assert.Empty(t, m.Env)
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading manifest")
}

func TestLoadManifest_BadYAML(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing manifest")
}

func TestLoadManifest_InvalidContent(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "description: no name here\n"))
	require.ErrorIs(t, err, ErrManifestInvalid)
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
		wantErr  string
	}{
		{
			name:     "valid",
			manifest: &Manifest{Name: "my-app-2"},
		},
		{
			name:     "valid single char",
			manifest: &Manifest{Name: "a"},
		},
		{
			name:     "nil manifest",
			manifest: nil,
			wantErr:  "manifest is nil",
		},
		{
			name:     "empty name",
			manifest: &Manifest{},
			wantErr:  "name is required",
		},
		{
			name:     "uppercase name",
			manifest: &Manifest{Name: "MyApp"},
			wantErr:  "lowercase alphanumeric",
		},
		{
			name:     "spaces in name",
			manifest: &Manifest{Name: "my app"},
			wantErr:  "lowercase alphanumeric",
		},
		{
			name:     "leading hyphen",
			manifest: &Manifest{Name: "-app"},
			wantErr:  "lowercase alphanumeric",
		},
		{
			name:     "name too long",
			manifest: &Manifest{Name: strings.Repeat("a", 64)},
			wantErr:  "exceeds 63 characters",
		},
		{
			name:     "name at limit",
			manifest: &Manifest{Name: strings.Repeat("a", 63)},
		},
		{
			name:     "empty env key",
			manifest: &Manifest{Name: "app", Env: map[string]string{"": "x"}},
			wantErr:  "empty variable name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrManifestInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
