package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	config  *core.ConfigManager
	workDir string
}

// newDeps creates shared dependencies. Called lazily by commands that need them.
func newDeps() (*deps, error) {
	config, err := core.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return &deps{config: config, workDir: wd}, nil
}

// projectConfig loads the project config, or defaults when there is none.
func (d *deps) projectConfig() (*core.Config, error) {
	cfg, path, err := d.config.Load(d.workDir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debug().Str("path", path).Msg("config loaded")
	}
	return cfg, nil
}

// history opens the ask history. History is best effort: nil is returned
// and logged when the database cannot be opened.
func (d *deps) history(ctx context.Context) *core.History {
	h, err := core.OpenHistory(ctx, d.config.HistoryPath())
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		return nil
	}
	return h
}
