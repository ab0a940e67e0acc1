package main

import (
	"fmt"
	"os"

	"github.com/openaccesstools/oar/internal/config"
	"github.com/openaccesstools/oar/internal/registry"
	"github.com/openaccesstools/oar/internal/remote"
	"github.com/openaccesstools/oar/internal/storage"
)

// openBackend loads the workspace config and opens the configured registry
// backend. The returned closer is a no-op for the HTTP backend.
func openBackend() (registry.Client, *config.Config, func() error, error) {
	root, exitCode := getWorkRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	wsRoot, err := config.FindWorkspace(root)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(wsRoot)
	if err != nil {
		return nil, nil, nil, err
	}

	switch cfg.Registry.Mode {
	case config.ModeHTTP:
		client := remote.NewClient(cfg.Registry.URL, remote.WithToken(config.APIToken()))
		return client, cfg, func() error { return nil }, nil
	case config.ModeSQLite, "":
		db, err := storage.Open(cfg.DBPath(wsRoot))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening registry database: %w", err)
		}
		return db, cfg, db.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown registry mode %q", cfg.Registry.Mode)
}
