package cmd

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/rigkit/internal/config"
	"github.com/agentic-research/rigkit/internal/ingest"
	"github.com/agentic-research/rigkit/internal/logging"
)

// commandContext carries the persistent flags and the lazily loaded config
// and logger shared by every subcommand.
type commandContext struct {
	configPath   string
	logLevel     string
	logFormat    string
	gdtfPaths    []string
	universeSize int
	output       string

	configOnce sync.Once
	config     *config.Config
	logger     *zap.Logger
	configErr  error
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = c.logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = c.logFormat
		}
		if flags.Changed("gdtf-path") {
			cfg.GDTFSearchPaths = append(cfg.GDTFSearchPaths, c.gdtfPaths...)
		}
		if flags.Changed("universe-size") {
			cfg.UniverseSize = c.universeSize
		}
		if err := cfg.Normalize(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// engine builds an ingest engine from the loaded configuration.
func (c *commandContext) engine(cmd *cobra.Command) (*ingest.Engine, error) {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return nil, err
	}
	mvrMax, gdtfMax, err := cfg.Versions()
	if err != nil {
		return nil, err
	}
	return ingest.NewEngine(ingest.Options{
		UniverseSize:   cfg.UniverseSize,
		Workers:        cfg.Workers,
		MVRMaxVersion:  mvrMax,
		GDTFMaxVersion: gdtfMax,
		SearchPaths:    cfg.GDTFSearchPaths,
		EagerGeometry:  cfg.GeometryEager,
		Logger:         c.logger,
	}), nil
}

// open loads one archive with the configured engine.
func (c *commandContext) open(ctx context.Context, cmd *cobra.Command, path string) (*ingest.Result, error) {
	eng, err := c.engine(cmd)
	if err != nil {
		return nil, err
	}
	return eng.Open(ctx, path)
}
