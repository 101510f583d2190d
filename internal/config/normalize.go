package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize trims string settings, lower-cases enums and expands search
// paths to absolute paths.
func (c *Config) Normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.MVRMaxVersion = strings.TrimSpace(c.MVRMaxVersion)
	c.GDTFMaxVersion = strings.TrimSpace(c.GDTFMaxVersion)
	if c.MVRMaxVersion == "" {
		c.MVRMaxVersion = defaultMVRMaxVersion
	}
	if c.GDTFMaxVersion == "" {
		c.GDTFMaxVersion = defaultGDTFMaxVersion
	}

	seen := make(map[string]bool, len(c.GDTFSearchPaths))
	paths := c.GDTFSearchPaths[:0]
	for _, p := range c.GDTFSearchPaths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		expanded, err := ExpandPath(p)
		if err != nil {
			return fmt.Errorf("gdtf_search_paths: %w", err)
		}
		if seen[expanded] {
			continue
		}
		seen[expanded] = true
		paths = append(paths, expanded)
	}
	c.GDTFSearchPaths = paths
	return nil
}

// ExpandPath resolves a leading ~ and makes the path absolute.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determine home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
