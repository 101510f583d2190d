// Package config loads rigkit settings from an HCL file with environment
// fallbacks.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/rigkit/api"
)

// Config holds every setting the CLI and library entry points understand.
type Config struct {
	UniverseSize    int      `hcl:"universe_size,optional"`
	Workers         int      `hcl:"workers,optional"`
	GDTFSearchPaths []string `hcl:"gdtf_search_paths,optional"`
	MVRMaxVersion   string   `hcl:"mvr_max_version,optional"`
	GDTFMaxVersion  string   `hcl:"gdtf_max_version,optional"`
	LogLevel        string   `hcl:"log_level,optional"`
	LogFormat       string   `hcl:"log_format,optional"`
	GeometryEager   bool     `hcl:"geometry_eager,optional"`
}

// Environment variables consulted before the config file is applied.
const (
	EnvGDTFPath = "RIGKIT_GDTF_PATH"
	EnvLogLevel = "RIGKIT_LOG_LEVEL"
)

//go:embed sample_config.hcl
var sampleConfig string

// Load resolves the config path, layers defaults, environment and file, then
// normalizes and validates the result. The returned path is where the file
// was looked for; exists reports whether it was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	cfg.applyEnv()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := false
	if _, statErr := os.Stat(resolved); statErr == nil {
		exists = true
		if err := hclsimple.DecodeFile(resolved, nil, &cfg); err != nil {
			return nil, resolved, true, fmt.Errorf("decode config %s: %w", resolved, err)
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, resolved, false, fmt.Errorf("stat config %s: %w", resolved, statErr)
	} else if path != "" {
		return nil, resolved, false, fmt.Errorf("config %s: %w", resolved, statErr)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, resolved, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, exists, err
	}
	return &cfg, resolved, exists, nil
}

// Parse decodes HCL source on top of the defaults. filename only labels
// diagnostics and selects the syntax by extension.
func Parse(filename string, src []byte) (*Config, error) {
	cfg := Default()
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvGDTFPath)); v != "" {
		for _, p := range filepath.SplitList(v) {
			if p = strings.TrimSpace(p); p != "" {
				c.GDTFSearchPaths = append(c.GDTFSearchPaths, p)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

// Versions returns the parsed schema version limits.
func (c *Config) Versions() (mvrMax, gdtfMax api.Version, err error) {
	if mvrMax, err = api.ParseVersion(c.MVRMaxVersion); err != nil {
		return api.Version{}, api.Version{}, fmt.Errorf("mvr_max_version: %w", err)
	}
	if gdtfMax, err = api.ParseVersion(c.GDTFMaxVersion); err != nil {
		return api.Version{}, api.Version{}, fmt.Errorf("gdtf_max_version: %w", err)
	}
	return mvrMax, gdtfMax, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return ExpandPath(path)
	}
	candidate, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	if cwd, err := os.Getwd(); err == nil {
		project := filepath.Join(cwd, "rigkit.hcl")
		if _, err := os.Stat(project); err == nil {
			return project, nil
		}
	}
	return candidate, nil
}

// DefaultConfigPath returns ~/.config/rigkit/config.hcl.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "rigkit", "config.hcl"), nil
}

// CreateSample writes the sample configuration to path. Existing files are
// left alone.
func CreateSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
