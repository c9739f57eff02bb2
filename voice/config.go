// ABOUTME: Server configuration with explicit defaults and construction-time validation
// ABOUTME: Immutable once handed to NewServer; no dynamic merging at request time

package voice

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied by WithDefaults for unset Config fields.
const (
	DefaultPath            = "/"
	DefaultPort            = 3000
	DefaultBind            = "0.0.0.0"
	DefaultAssetsDir       = "assets"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config holds the voice server settings. The zero value plus WithDefaults
// yields a working local server. Config is treated as immutable after
// NewServer returns.
type Config struct {
	// Path is the route shared by the webhook POST and the realtime
	// WebSocket upgrade.
	Path string

	// Port is the TCP listen port.
	Port int

	// Bind is the listen address.
	Bind string

	// AssetsDir is the directory served under /tts/{file}. Synthesized
	// speech artifacts are written here as well.
	AssetsDir string

	// AuthSecret, when set, requires a valid HS256 bearer token on the
	// webhook route.
	AuthSecret string

	// EnableMetrics mounts a Prometheus endpoint at /metrics.
	EnableMetrics bool

	// ShutdownTimeout bounds graceful shutdown, including in-flight
	// handlers suspended in WaitForEvent.
	ShutdownTimeout time.Duration
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Bind == "" {
		c.Bind = DefaultBind
	}
	if c.AssetsDir == "" {
		c.AssetsDir = DefaultAssetsDir
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Validate checks the configuration. Called by NewServer after defaults are
// applied, so a hand-built Config should be passed through WithDefaults
// first.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /: %q", c.Path)
	}
	if strings.ContainsAny(c.Path, " \t") {
		return fmt.Errorf("path must not contain whitespace: %q", c.Path)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range 1-65535: %d", c.Port)
	}
	if c.Bind == "" || strings.ContainsAny(c.Bind, " :/") {
		return fmt.Errorf("bind must be a bare IP or hostname: %q", c.Bind)
	}
	if c.AssetsDir == "" {
		return fmt.Errorf("assets dir must not be empty")
	}
	return nil
}
