package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/rigkit/api"
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateVersions(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateSearchPaths()
}

func (c *Config) validateLimits() error {
	if c.UniverseSize < 1 || c.UniverseSize > 65536 {
		return fmt.Errorf("universe_size: must be between 1 and 65536, got %d", c.UniverseSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers: must be positive, got %d", c.Workers)
	}
	return nil
}

func (c *Config) validateVersions() error {
	if _, err := api.ParseVersion(c.MVRMaxVersion); err != nil {
		return fmt.Errorf("mvr_max_version: %w", err)
	}
	if _, err := api.ParseVersion(c.GDTFMaxVersion); err != nil {
		return fmt.Errorf("gdtf_max_version: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unsupported level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported format %q", c.LogFormat)
	}
	return nil
}

func (c *Config) validateSearchPaths() error {
	for _, p := range c.GDTFSearchPaths {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("gdtf_search_paths: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("gdtf_search_paths: %s is not a directory", p)
		}
	}
	return nil
}
