// ABOUTME: Configuration loading for the deployment CLI
// ABOUTME: Loads TOML config from the XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

const defaultServerAddr = "localhost:50051"

type Config struct {
	Server ServerConfig `toml:"server"`
}

type ServerConfig struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

// getCLIConfigPath returns the default CLI config location.
// Priority: XDG_CONFIG_HOME/fonoster/cli.toml > ~/.config/fonoster/cli.toml
func getCLIConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "cli.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "fonoster", "cli.toml")
}

// loadCLIConfig resolves the effective CLI config: the TOML file when
// present, then flag overrides, then defaults. A --config path that does
// not exist is an error; the default path is optional.
func loadCLIConfig(cmd *cobra.Command) (*Config, error) {
	var cfg Config

	path, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")
	if !explicit {
		path = getCLIConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := expandEnvVars(string(data))
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file; flags and defaults carry everything.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		cfg.Server.Token = token
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
